// Package cmd implements the texforge command-line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "texforge",
	Short: "LaTeX compile-and-publish service",
	Long: `texforge accepts LaTeX over HTTP, compiles it to PDF with tectonic
inside a warm sandbox pool, publishes the PDF to S3-compatible object
storage via a presigned direct upload, and returns the PDF to the caller.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to config file (default: texforge.yaml in ., $HOME/.config/texforge, /etc/texforge)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
