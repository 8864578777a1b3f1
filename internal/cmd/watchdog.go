package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/muster/internal/notify"
	"github.com/steveyegge/muster/internal/recovery"
	"github.com/steveyegge/muster/internal/roster"
	"github.com/steveyegge/muster/internal/terminal"
	"github.com/steveyegge/muster/internal/ui"
	"github.com/steveyegge/muster/internal/version"
	"github.com/steveyegge/muster/internal/watchdog"
)

var watchdogCmd = &cobra.Command{
	Use:     "watchdog",
	GroupID: GroupWatchdog,
	Short:   "Manage the liveness watchdog",
	RunE:    requireSubcommand,
	Long: `Manage the workspace's liveness watchdog.

The watchdog polls every working agent's terminal session. Output that
keeps changing counts as progress; output frozen past the stall timeout
triggers stall recovery, and a vanished session triggers crash recovery.
Recovery interrupts the session, force-kills it if needed, releases the
agent's locks, removes it from the roster, and sends a notification.

One watchdog per workspace; a second start is refused.`,
}

var watchdogStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the watchdog in the background",
	Args:  cobra.NoArgs,
	RunE:  runWatchdogStart,
}

var watchdogStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running watchdog",
	Args:  cobra.NoArgs,
	RunE:  runWatchdogStop,
}

var watchdogStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show watchdog status",
	Args:  cobra.NoArgs,
	RunE:  runWatchdogStatus,
}

var watchdogLogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View the watchdog log",
	Args:  cobra.NoArgs,
	RunE:  runWatchdogLogs,
}

var watchdogRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the watchdog in the foreground",
	Long: `Run the watchdog in the foreground, logging to stderr.

'mu watchdog start' uses this as the background process; running it by
hand is useful when debugging stall detection.`,
	Args: cobra.NoArgs,
	RunE: runWatchdogRun,
}

var (
	watchdogLogLines     int
	watchdogLogFollow    bool
	watchdogRunInterval  time.Duration
	watchdogRunStallTime time.Duration
)

func init() {
	watchdogCmd.AddCommand(watchdogStartCmd)
	watchdogCmd.AddCommand(watchdogStopCmd)
	watchdogCmd.AddCommand(watchdogStatusCmd)
	watchdogCmd.AddCommand(watchdogLogsCmd)
	watchdogCmd.AddCommand(watchdogRunCmd)

	watchdogLogsCmd.Flags().IntVarP(&watchdogLogLines, "lines", "n", 50, "Number of lines to show")
	watchdogLogsCmd.Flags().BoolVarP(&watchdogLogFollow, "follow", "f", false, "Follow log output")

	watchdogRunCmd.Flags().DurationVar(&watchdogRunInterval, "interval", 0, "Override the check interval (e.g. 10s)")
	watchdogRunCmd.Flags().DurationVar(&watchdogRunStallTime, "stall-timeout", 0, "Override the stall timeout (e.g. 2m)")

	rootCmd.AddCommand(watchdogCmd)
}

func runWatchdogStart(cmd *cobra.Command, args []string) error {
	env, err := openEnv()
	if err != nil {
		return err
	}

	running, pid, err := watchdog.IsRunning(env.Root)
	if err != nil {
		return fmt.Errorf("checking watchdog status: %w", err)
	}
	if running {
		return fmt.Errorf("watchdog already running (PID %d)", pid)
	}

	// The background process is this same binary running 'watchdog run'
	// with its output redirected to the log file.
	muPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("finding executable: %w", err)
	}

	logPath := watchdog.LogFile(env.Root)
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}

	child := exec.Command(muPath, "watchdog", "run")
	child.Dir = env.Root
	child.Stdin = nil
	child.Stdout = logFile
	child.Stderr = logFile

	if err := child.Start(); err != nil {
		logFile.Close()
		return fmt.Errorf("starting watchdog: %w", err)
	}
	logFile.Close()

	// Give it a moment to take the lock and write its pid.
	time.Sleep(200 * time.Millisecond)

	running, pid, err = watchdog.IsRunning(env.Root)
	if err != nil {
		return fmt.Errorf("checking watchdog status: %w", err)
	}
	if !running {
		return fmt.Errorf("watchdog failed to start (check 'mu watchdog logs')")
	}

	// If a concurrent start won the race our child exited after losing
	// the lock; the recorded pid tells us who actually runs.
	if pid != child.Process.Pid {
		fmt.Printf("%s Watchdog already running (PID %d)\n", ui.Warn(), pid)
		return nil
	}

	fmt.Printf("%s Watchdog started (PID %d, %s)\n", ui.Pass(), pid, version.String())
	return nil
}

func runWatchdogStop(cmd *cobra.Command, args []string) error {
	env, err := openEnv()
	if err != nil {
		return err
	}

	running, pid, err := watchdog.IsRunning(env.Root)
	if err != nil {
		return fmt.Errorf("checking watchdog status: %w", err)
	}
	if !running {
		return fmt.Errorf("watchdog is not running")
	}

	if err := watchdog.Stop(env.Root); err != nil {
		return fmt.Errorf("stopping watchdog: %w", err)
	}

	fmt.Printf("%s Watchdog stopped (was PID %d)\n", ui.Pass(), pid)
	return nil
}

func runWatchdogStatus(cmd *cobra.Command, args []string) error {
	env, err := openEnv()
	if err != nil {
		return err
	}

	running, pid, err := watchdog.IsRunning(env.Root)
	if err != nil {
		return fmt.Errorf("checking watchdog status: %w", err)
	}

	if !running {
		fmt.Printf("%s Watchdog not running\n", ui.Muted.Render("○"))
		fmt.Println()
		fmt.Printf("  Workspace:   %s\n", ui.ShortenPath(env.Root, 60))
		fmt.Printf("  Start with:  %s\n", ui.Muted.Render("mu watchdog start"))
		return nil
	}

	fmt.Printf("%s Watchdog running (PID %d)\n", ui.Pass(), pid)
	fmt.Println()
	fmt.Printf("  Workspace:   %s\n", ui.ShortenPath(env.Root, 60))
	fmt.Printf("  Interval:    %s\n", env.Config.CheckInterval())
	fmt.Printf("  Stall after: %s\n", env.Config.StallTimeout())
	fmt.Printf("  Log:         %s\n", ui.ShortenPath(watchdog.LogFile(env.Root), 60))

	working, err := env.Roster.ListByStatus(roster.StatusWorking)
	if err == nil {
		fmt.Printf("  Watching:    %d working agent(s)\n", len(working))
	}
	return nil
}

func runWatchdogLogs(cmd *cobra.Command, args []string) error {
	env, err := openEnv()
	if err != nil {
		return err
	}

	logPath := watchdog.LogFile(env.Root)
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		return fmt.Errorf("no log file found at %s", logPath)
	}

	if watchdogLogFollow {
		tailCmd := exec.Command("tail", "-f", logPath)
		tailCmd.Stdout = os.Stdout
		tailCmd.Stderr = os.Stderr
		return tailCmd.Run()
	}

	tailCmd := exec.Command("tail", "-n", fmt.Sprintf("%d", watchdogLogLines), logPath)
	tailCmd.Stdout = os.Stdout
	tailCmd.Stderr = os.Stderr
	return tailCmd.Run()
}

func runWatchdogRun(cmd *cobra.Command, args []string) error {
	env, err := openEnv()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	j, err := env.openJournal()
	if err != nil {
		logger.Warn("journal unavailable, events will not be recorded", "error", err)
	} else {
		defer j.Close()
	}

	term := terminal.NewTmux()
	notifier := notify.New(env.Config.Notify, logger)

	recOpts := []recovery.Option{recovery.WithGracePeriod(env.Config.GracePeriod())}
	if j != nil {
		recOpts = append(recOpts, recovery.WithJournal(j))
	}
	rec := recovery.New(env.Locks, env.Roster, term, notifier, logger, recOpts...)

	interval := env.Config.CheckInterval()
	if watchdogRunInterval > 0 {
		interval = watchdogRunInterval
	}
	stallTimeout := env.Config.StallTimeout()
	if watchdogRunStallTime > 0 {
		stallTimeout = watchdogRunStallTime
	}

	var wdOpts []watchdog.Option
	if j != nil {
		wdOpts = append(wdOpts, watchdog.WithJournal(j))
	}
	w := watchdog.New(watchdog.Config{
		Root:          env.Root,
		CheckInterval: interval,
		StallTimeout:  stallTimeout,
		CaptureLines:  env.Config.Watchdog.CaptureLines,
	}, env.Roster, term, rec, logger, wdOpts...)

	if err := w.Run(ctx); err != nil {
		if errors.Is(err, watchdog.ErrAlreadyRunning) {
			return fmt.Errorf("watchdog already running in this workspace")
		}
		return err
	}
	return nil
}
