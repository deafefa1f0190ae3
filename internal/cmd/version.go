package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/texforge/texforge/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		info := version.Get()
		fmt.Fprintf(cmd.OutOrStdout(), "texforge %s (commit %s, built %s)\n", info.Version, info.Commit, info.Date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
