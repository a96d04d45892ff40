package cmd

import (
	"log"

	"github.com/spf13/cobra"

	"mediavault/config"
	"mediavault/db"
	"mediavault/model"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Long:  `Connects to MySQL and brings the schema up to date for all MediaVault tables.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()

		if err := db.ConnectGormDB(cfg); err != nil {
			log.Fatalf("failed to connect to database: %v", err)
		}
		defer db.CloseGormDB()

		if err := db.AutoMigrateModels(
			&model.User{},
			&model.Media{},
			&model.Playlist{},
			&model.PlaylistEntry{},
			&model.SyncLog{},
			&model.WatchHistory{},
			&model.Analytics{},
		); err != nil {
			log.Fatalf("migration failed: %v", err)
		}
		log.Println("database schema is up to date")
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
