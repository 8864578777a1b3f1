// Package cmd provides CLI commands for the mu tool.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/steveyegge/muster/internal/ui"
	"github.com/steveyegge/muster/internal/version"
)

var rootCmd = &cobra.Command{
	Use:     "mu",
	Short:   "Muster - coordination for agents sharing a workspace",
	Version: version.String(),
	Long: `Muster (mu) coordinates coding agents that share a workspace.

It arbitrates file access through advisory locks, tracks each agent's
lifecycle in a durable roster, and runs a watchdog that detects stalled
or crashed sessions and reclaims whatever they held.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command and returns an exit code.
// The caller (main) should call os.Exit with this code.
func Execute() int {
	ui.ConfigureColor()
	if err := rootCmd.Execute(); err != nil {
		// Silent exits carry their status via the code alone; the
		// command already wrote whatever the user needed to see.
		if code, ok := IsSilentExit(err); ok {
			return code
		}
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return 1
	}
	return 0
}

// Command group IDs - used by subcommands to organize help output
const (
	GroupLocks     = "locks"
	GroupAgents    = "agents"
	GroupWatchdog  = "watchdog"
	GroupWorkspace = "workspace"
	GroupDiag      = "diag"
)

func init() {
	// Enable prefix matching for subcommands (e.g., "mu wat sta" -> "mu watchdog start")
	cobra.EnablePrefixMatching = true

	// Define command groups (order determines help output order)
	rootCmd.AddGroup(
		&cobra.Group{ID: GroupLocks, Title: "File Locks:"},
		&cobra.Group{ID: GroupAgents, Title: "Agent Registry:"},
		&cobra.Group{ID: GroupWatchdog, Title: "Watchdog:"},
		&cobra.Group{ID: GroupWorkspace, Title: "Workspace:"},
		&cobra.Group{ID: GroupDiag, Title: "Diagnostics:"},
	)

	// Put help and completion in a sensible group
	rootCmd.SetHelpCommandGroupID(GroupDiag)
	rootCmd.SetCompletionCommandGroupID(GroupDiag)
}

// buildCommandPath walks the command hierarchy to build the full command path.
// For example: "mu agent create", "mu list", etc.
func buildCommandPath(cmd *cobra.Command) string {
	var parts []string
	for c := cmd; c != nil; c = c.Parent() {
		parts = append([]string{c.Name()}, parts...)
	}
	return strings.Join(parts, " ")
}

// requireSubcommand returns a RunE function for parent commands that require
// a subcommand. Without this, Cobra silently shows help and exits 0 for
// unknown subcommands like "mu agent foobar", masking errors.
func requireSubcommand(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("requires a subcommand\n\nRun '%s --help' for usage", buildCommandPath(cmd))
	}
	return fmt.Errorf("unknown command %q for %q\n\nRun '%s --help' for available commands",
		args[0], buildCommandPath(cmd), buildCommandPath(cmd))
}
