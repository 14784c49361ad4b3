package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "spherectl",
	Short: "ChatterSphere operator tool",
	Long: `spherectl is a command-line interface for operating a ChatterSphere server.

Available commands:
  training-data    Inspect, validate, and export the bot's canned-response table

Use "spherectl [command] --help" for more information about a specific command.`,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
