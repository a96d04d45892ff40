package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mediavault/server"
)

var rootCmd = &cobra.Command{
	Use:   "mediavault",
	Short: "MediaVault is a media bookmark sync and proxy service.",
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
