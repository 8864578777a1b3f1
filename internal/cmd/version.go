package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/muster/internal/version"
)

var versionCmd = &cobra.Command{
	Use:     "version",
	GroupID: GroupDiag,
	Short:   "Show version information",
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mu %s\n", version.String())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
