package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/steveyegge/muster/internal/config"
	"github.com/steveyegge/muster/internal/journal"
	"github.com/steveyegge/muster/internal/ui"
	"github.com/steveyegge/muster/internal/workspace"
)

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: GroupWorkspace,
	Short:   "Initialize a muster workspace here",
	Long: `Initialize a muster workspace in the current directory.

Creates .muster/ with a commented config file, the lock directory, and
an empty event journal. Commands in any subdirectory find the workspace
by walking up to the nearest .muster/config.toml.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working directory: %w", err)
	}

	if err := config.Init(cwd); err != nil {
		return err
	}
	if err := os.MkdirAll(locksDir(cwd), 0o755); err != nil {
		return fmt.Errorf("creating lock directory: %w", err)
	}

	// Open once so schema problems surface now, not on the first event.
	j, err := journal.Open(journalPath(cwd))
	if err != nil {
		return fmt.Errorf("creating journal: %w", err)
	}
	j.Close()

	fmt.Printf("%s Initialized muster workspace\n", ui.Pass())
	fmt.Println()
	fmt.Printf("  Config:  %s\n", ui.ShortenPath(config.Path(cwd), 60))
	fmt.Printf("  State:   %s\n", ui.ShortenPath(filepath.Join(cwd, workspace.Dir), 60))
	fmt.Println()
	fmt.Printf("  Next: register an agent with %s\n", ui.Muted.Render("mu agent create <name> <sessionId>"))
	return nil
}
