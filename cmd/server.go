package cmd

import (
	"github.com/spf13/cobra"

	"mediavault/server"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the MediaVault HTTP server",
	Long:  `Starts the MediaVault API server: library sync, playlists, watch analytics and the cached YouTube proxy.`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
