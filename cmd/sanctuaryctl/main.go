// Command sanctuaryctl runs maintenance tasks against the application database.
package main

import (
	"errors"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var databaseURL string

var rootCmd = &cobra.Command{
	Use:          "sanctuaryctl",
	Short:        "Maintenance commands for the sanctuary backend",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		if databaseURL == "" {
			databaseURL = os.Getenv("DATABASE_URL")
		}
		if databaseURL == "" {
			return errors.New("DATABASE_URL is not set; pass --database-url")
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "Postgres URL (defaults to $DATABASE_URL)")
	rootCmd.AddCommand(migrateCmd, seedCmd, grantPremiumCmd, fulfillmentCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
