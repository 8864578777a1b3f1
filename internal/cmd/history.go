package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/muster/internal/journal"
	"github.com/steveyegge/muster/internal/ui"
)

var (
	historyLines int
	historyAgent string
)

var historyCmd = &cobra.Command{
	Use:     "history",
	GroupID: GroupDiag,
	Short:   "Show recent coordination events",
	Long: `Show recent coordination events from the workspace journal.

Agent registrations, closures, stalls, crashes, lock releases, and
watchdog starts and stops are recorded as they happen. Newest first.

EXAMPLES:
  mu history
  mu history -n 100
  mu history --agent rust-fixer`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLines, "lines", "n", 20, "Number of events to show")
	historyCmd.Flags().StringVar(&historyAgent, "agent", "", "Only events for this agent")

	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	env, err := openEnv()
	if err != nil {
		return err
	}

	j, err := env.openJournal()
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer j.Close()

	var entries []journal.Entry
	if historyAgent != "" {
		entries, err = j.RecentForAgent(cmd.Context(), historyAgent, historyLines)
	} else {
		entries, err = j.Recent(cmd.Context(), historyLines)
	}
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Println("No events recorded")
		return nil
	}

	table := ui.NewTable(
		ui.Column{Name: "WHEN", Width: 10},
		ui.Column{Name: "EVENT", Width: 18},
		ui.Column{Name: "AGENT", Width: 18},
		ui.Column{Name: "DETAIL", Width: 40},
	)
	for _, e := range entries {
		table.AddRow(
			ui.RelativeTime(e.CreatedAt),
			string(e.Kind),
			e.Agent,
			e.Detail,
		)
	}
	fmt.Print(table.Render())
	return nil
}
