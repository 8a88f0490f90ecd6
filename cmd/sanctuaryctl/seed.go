package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sanctuary/internal/db"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert the sample product catalog",
	Long: `Insert the sample products that are not present yet.
Existing products are left untouched, so the command can be run repeatedly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := db.Open(cmd.Context(), databaseURL, 2)
		if err != nil {
			return err
		}
		defer conn.Close()

		added, err := db.SeedProducts(cmd.Context(), conn, db.SampleProducts)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d product(s) added\n", added)
		return nil
	},
}
