package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/muster/internal/lock"
	"github.com/steveyegge/muster/internal/ui"
)

var acquireOperation string

var acquireCmd = &cobra.Command{
	Use:     "acquire <path> <sessionId> [ownerName]",
	GroupID: GroupLocks,
	Short:   "Acquire an advisory lock on a file",
	Long: `Acquire an advisory lock on a file for a session.

Grants are reentrant: a session that already holds the lock is granted
again without resetting the lock's age. A lock older than the expiry
window counts as abandoned and is reclaimed on the spot.

Exit code 0 means the lock is yours; 1 means someone else holds it (the
holder and the lock's age are printed).

EXAMPLES:
  mu acquire src/main.go session-42
  mu acquire src/main.go session-42 rust-fixer --operation refactor`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runAcquire,
}

var releaseCmd = &cobra.Command{
	Use:     "release <path> <sessionId>",
	GroupID: GroupLocks,
	Short:   "Release a held lock",
	Long: `Release a lock held by a session.

Only the holding session may release; a mismatched session leaves the
lock untouched and exits 1.`,
	Args: cobra.ExactArgs(2),
	RunE: runRelease,
}

var cleanupCmd = &cobra.Command{
	Use:     "cleanup [timeoutMinutes]",
	GroupID: GroupLocks,
	Short:   "Remove locks older than the expiry window",
	Long: `Remove every lock older than the expiry window.

The window defaults to locks.expiry_minutes from config (10 minutes
unless overridden); pass a minute count to use a different cutoff for
this run only.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCleanup,
}

var listCmd = &cobra.Command{
	Use:     "list",
	GroupID: GroupLocks,
	Short:   "List held locks",
	Args:    cobra.NoArgs,
	RunE:    runList,
}

var releaseAgentCmd = &cobra.Command{
	Use:     "release-agent <agentName>",
	GroupID: GroupLocks,
	Short:   "Release every lock an agent's session holds",
	Long: `Release every lock held by the named agent's session.

The agent stays registered; only its locks are dropped. Use this after
an agent hands off work, or from cleanup scripts before recycling a
session.`,
	Args: cobra.ExactArgs(1),
	RunE: runReleaseAgent,
}

var locksCmd = &cobra.Command{
	Use:     "locks",
	GroupID: GroupLocks,
	Short:   "Lock store maintenance",
	RunE:    requireSubcommand,
}

var locksMigrateCmd = &cobra.Command{
	Use:   "migrate <registry.json>",
	Short: "Import locks from a single-file registry",
	Long: `Import locks from an old single-file JSON registry.

Each entry becomes a sentinel file under .muster/locks/. Entries whose
path is already locked are skipped, so migration is safe to re-run.`,
	Args: cobra.ExactArgs(1),
	RunE: runLocksMigrate,
}

func init() {
	acquireCmd.Flags().StringVar(&acquireOperation, "operation", "edit",
		"Intent recorded on the lock (edit, refactor, review, ...)")

	locksCmd.AddCommand(locksMigrateCmd)

	rootCmd.AddCommand(acquireCmd)
	rootCmd.AddCommand(releaseCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(releaseAgentCmd)
	rootCmd.AddCommand(locksCmd)
}

func runAcquire(cmd *cobra.Command, args []string) error {
	env, err := openEnv()
	if err != nil {
		return err
	}

	var opts []lock.AcquireOption
	if len(args) > 2 {
		opts = append(opts, lock.WithOwnerName(args[2]))
	}

	res, err := env.Locks.Acquire(args[0], args[1], acquireOperation, opts...)
	if err != nil {
		return err
	}
	if !res.Granted {
		// A conflict is an ordinary outcome, not an error: the reason
		// goes to stdout and the exit code carries the verdict.
		fmt.Println(res.Reason)
		return NewSilentExit(1)
	}

	fmt.Printf("%s Lock acquired: %s\n", ui.Pass(), res.Record.FilePath)
	return nil
}

func runRelease(cmd *cobra.Command, args []string) error {
	env, err := openEnv()
	if err != nil {
		return err
	}

	released, err := env.Locks.Release(args[0], args[1])
	if err != nil {
		return err
	}
	if !released {
		fmt.Printf("Not released: %s is not locked by session %s\n", args[0], args[1])
		return NewSilentExit(1)
	}

	fmt.Printf("%s Lock released: %s\n", ui.Pass(), args[0])
	return nil
}

func runCleanup(cmd *cobra.Command, args []string) error {
	env, err := openEnv()
	if err != nil {
		return err
	}

	window := env.Config.LockExpiry()
	if len(args) == 1 {
		mins, err := strconv.Atoi(args[0])
		if err != nil || mins <= 0 {
			return fmt.Errorf("invalid timeout %q: want a positive minute count", args[0])
		}
		window = time.Duration(mins) * time.Minute
	}

	removed, err := env.Locks.CleanupExpired(window)
	if err != nil {
		return err
	}

	fmt.Printf("Removed %d expired lock(s)\n", removed)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	env, err := openEnv()
	if err != nil {
		return err
	}

	records, err := env.Locks.List()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No locks held")
		return nil
	}

	table := ui.NewTable(
		ui.Column{Name: "PATH", Width: 48},
		ui.Column{Name: "SESSION", Width: 18},
		ui.Column{Name: "AGENT", Width: 14},
		ui.Column{Name: "OPERATION", Width: 10},
		ui.Column{Name: "ACQUIRED", Width: 10},
	)
	for _, r := range records {
		table.AddRow(
			ui.ShortenPath(r.FilePath, 48),
			r.OwnerSessionID,
			r.OwnerName(),
			r.Operation,
			ui.RelativeTime(r.AcquiredAt),
		)
	}
	fmt.Print(table.Render())
	return nil
}

func runReleaseAgent(cmd *cobra.Command, args []string) error {
	env, err := openEnv()
	if err != nil {
		return err
	}

	agent, err := env.Roster.Find(args[0])
	if err != nil {
		return fmt.Errorf("looking up agent %q: %w", args[0], err)
	}

	released, err := env.Locks.ReleaseAll(agent.SessionID)
	if err != nil {
		return err
	}

	fmt.Printf("%s Released %d lock(s) held by %s\n", ui.Pass(), released, agent.Name)
	return nil
}

func runLocksMigrate(cmd *cobra.Command, args []string) error {
	env, err := openEnv()
	if err != nil {
		return err
	}

	imported, err := env.Locks.MigrateLegacy(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("%s Imported %d lock(s) from %s\n", ui.Pass(), imported, args[0])
	return nil
}
