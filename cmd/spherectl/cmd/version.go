package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version can be set at build time:
// go build -ldflags "-X 'github.com/chattersphere/chattersphere/cmd/spherectl/cmd.Version=v1.2.3'"
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the spherectl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("spherectl", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
