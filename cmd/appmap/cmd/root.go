// Package cmd provides the command-line interface of appmap.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "appmap",
	Short: "appmap CLI tool works with appmap configurations and recordings.",
	Long: `appmap CLI tool works with appmap configurations and recordings. ` +
		`It validates configuration files, summarizes recorded appmap ` +
		`documents and serves recording databases over HTTP.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
