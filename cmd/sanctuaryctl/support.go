package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"sanctuary/internal/db"
	"sanctuary/internal/store"
)

var grantPremiumCmd = &cobra.Command{
	Use:   "grant-premium <email>",
	Short: "Grant premium to an account by hand",
	Long: `Grant premium to an account without a checkout, for support cases where the
payment provider could not deliver the webhook.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := db.Open(cmd.Context(), databaseURL, 2)
		if err != nil {
			return err
		}
		defer conn.Close()
		return grantPremium(cmd.Context(), conn, args[0], cmd.OutOrStdout())
	},
}

var fulfillmentCmd = &cobra.Command{
	Use:   "fulfillment <session-id>",
	Short: "Show what was applied for a checkout session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := db.Open(cmd.Context(), databaseURL, 2)
		if err != nil {
			return err
		}
		defer conn.Close()
		return showFulfillment(cmd.Context(), conn, args[0], cmd.OutOrStdout())
	},
}

func grantPremium(ctx context.Context, conn *sqlx.DB, email string, out io.Writer) error {
	users := store.NewUserStore(conn, nil)
	u, err := users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return fmt.Errorf("%s: %w", email, err)
	}
	if err := users.GrantPremium(ctx, u.ID); err != nil {
		return err
	}
	fmt.Fprintf(out, "premium granted to %s (%s)\n", u.Email, u.ID)
	return nil
}

func showFulfillment(ctx context.Context, conn *sqlx.DB, sessionID string, out io.Writer) error {
	f, err := store.NewFulfillmentStore(conn, nil).Get(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("%s: %w", sessionID, err)
	}
	buyer := "anonymous"
	if f.UserID != nil {
		buyer = *f.UserID
	}
	fmt.Fprintf(out, "session:  %s\nbuyer:    %s\nproducts: %s\namount:   %d %s\napplied:  %s\n",
		f.SessionID, buyer, f.ProductIDs, f.AmountTotal, f.Currency, f.CreatedAt.Format(time.RFC3339))
	return nil
}
