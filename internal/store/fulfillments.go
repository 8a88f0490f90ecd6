package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"sanctuary/internal/apperr"
	"sanctuary/internal/models"
)

var ErrFulfillmentNotFound = apperr.NotFound("Fulfillment not found")

// FulfillmentStore is the ledger of checkout sessions whose side effects were
// applied, keyed by the provider's session id.
type FulfillmentStore struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewFulfillmentStore(db *sqlx.DB, now func() time.Time) *FulfillmentStore {
	if now == nil {
		now = time.Now
	}
	return &FulfillmentStore{db: db, now: now}
}

// Apply records f and, when it names a user, grants premium in the same
// transaction. It reports false without touching anything when the session
// was already recorded.
func (s *FulfillmentStore) Apply(ctx context.Context, f *models.Fulfillment) (bool, error) {
	f.CreatedAt = s.now().UTC()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, apperr.Internal("could not start transaction", err)
	}
	defer tx.Rollback()

	res, err := tx.NamedExecContext(ctx, `INSERT INTO fulfillments (session_id, user_id, product_ids, amount_total, currency, created_at)
		VALUES (:session_id, :user_id, :product_ids, :amount_total, :currency, :created_at)
		ON CONFLICT (session_id) DO NOTHING`, f)
	if err != nil {
		return false, apperr.Internal("could not record fulfillment", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.Internal("could not record fulfillment", err)
	}
	if n == 0 {
		return false, nil
	}

	if f.UserID != nil {
		if _, err := grantPremium(ctx, tx, *f.UserID); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, apperr.Internal("could not commit fulfillment", err)
	}
	return true, nil
}

// Get returns the ledger row for sessionID.
func (s *FulfillmentStore) Get(ctx context.Context, sessionID string) (*models.Fulfillment, error) {
	var f models.Fulfillment
	err := s.db.GetContext(ctx, &f, s.db.Rebind(`SELECT session_id, user_id, product_ids, amount_total, currency, created_at
		FROM fulfillments WHERE session_id = ?`), sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFulfillmentNotFound
		}
		return nil, apperr.Internal("could not fetch fulfillment", err)
	}
	f.CreatedAt = f.CreatedAt.UTC()
	return &f, nil
}
