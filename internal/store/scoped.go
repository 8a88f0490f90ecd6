package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"sanctuary/internal/apperr"
)

// MaxListLimit caps a single List page.
const MaxListLimit = 100

// Record is implemented by pointer types the scoped store can persist.
type Record[T any] interface {
	*T
	Bind(id, ownerID string)
	Touch(created, updated time.Time)
	MutableValues() []any
}

// Scope describes the table behind an OwnedStore. Every table has id,
// user_id, created_at and updated_at columns in addition to Mutable.
type Scope[T any] struct {
	Table    string
	Mutable  []string
	NotFound *apperr.Error

	// Seal runs on a copy of the record before it is written, Open on every
	// record read back. Both are optional.
	Seal func(*T) error
	Open func(*T) error
}

// OwnedStore implements create/list/get/update/delete for records that belong
// to exactly one user. Every statement filters on both id and owner, so a
// record owned by someone else behaves exactly like a missing one.
type OwnedStore[T any, PT Record[T]] struct {
	db    *sqlx.DB
	scope Scope[T]
	now   func() time.Time
}

func NewOwnedStore[T any, PT Record[T]](db *sqlx.DB, scope Scope[T], now func() time.Time) *OwnedStore[T, PT] {
	if now == nil {
		now = time.Now
	}
	if scope.NotFound == nil {
		scope.NotFound = apperr.NotFound("not found")
	}
	return &OwnedStore[T, PT]{db: db, scope: scope, now: now}
}

func (s *OwnedStore[T, PT]) columns() string {
	return "id, user_id, " + strings.Join(s.scope.Mutable, ", ") + ", created_at, updated_at"
}

// Create assigns a time-ordered id, stamps both timestamps and inserts rec.
// rec is updated with the id, owner and timestamps.
func (s *OwnedStore[T, PT]) Create(ctx context.Context, ownerID string, rec *T) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", apperr.Internal("could not allocate id", err)
	}
	now := s.now().UTC()
	PT(rec).Bind(id.String(), ownerID)
	PT(rec).Touch(now, now)

	row := *rec
	if err := s.seal(&row); err != nil {
		return "", err
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(s.scope.Mutable)+4), ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", s.scope.Table, s.columns(), placeholders)
	args := append([]any{id.String(), ownerID}, PT(&row).MutableValues()...)
	args = append(args, now, now)

	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return "", apperr.Internal("could not save", err)
	}
	return id.String(), nil
}

// List returns the owner's records newest first. An empty result is not an
// error.
func (s *OwnedStore[T, PT]) List(ctx context.Context, ownerID string, limit, offset int) ([]T, error) {
	if limit <= 0 || limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		s.columns(), s.scope.Table)

	out := []T{}
	if err := s.db.SelectContext(ctx, &out, s.db.Rebind(query), ownerID, limit, offset); err != nil {
		return nil, apperr.Internal("could not fetch", err)
	}
	for i := range out {
		if err := s.open(&out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *OwnedStore[T, PT]) Get(ctx context.Context, ownerID, id string) (*T, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ? AND user_id = ?", s.columns(), s.scope.Table)

	var rec T
	if err := s.db.GetContext(ctx, &rec, s.db.Rebind(query), id, ownerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.scope.NotFound
		}
		return nil, apperr.Internal("could not fetch", err)
	}
	if err := s.open(&rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Update replaces every mutable column and bumps updated_at. Last write wins.
func (s *OwnedStore[T, PT]) Update(ctx context.Context, ownerID, id string, rec *T) error {
	now := s.now().UTC()
	PT(rec).Bind(id, ownerID)
	PT(rec).Touch(time.Time{}, now)

	row := *rec
	if err := s.seal(&row); err != nil {
		return err
	}

	sets := make([]string, 0, len(s.scope.Mutable)+1)
	for _, col := range s.scope.Mutable {
		sets = append(sets, col+" = ?")
	}
	sets = append(sets, "updated_at = ?")
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ? AND user_id = ?", s.scope.Table, strings.Join(sets, ", "))
	args := append(PT(&row).MutableValues(), now, id, ownerID)

	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return apperr.Internal("could not update", err)
	}
	return s.requireRow(res)
}

func (s *OwnedStore[T, PT]) Delete(ctx context.Context, ownerID, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ? AND user_id = ?", s.scope.Table)
	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), id, ownerID)
	if err != nil {
		return apperr.Internal("could not delete", err)
	}
	return s.requireRow(res)
}

func (s *OwnedStore[T, PT]) requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Internal("could not read result", err)
	}
	if n == 0 {
		return s.scope.NotFound
	}
	return nil
}

func (s *OwnedStore[T, PT]) seal(rec *T) error {
	if s.scope.Seal == nil {
		return nil
	}
	if err := s.scope.Seal(rec); err != nil {
		return apperr.Internal("could not encrypt", err)
	}
	return nil
}

func (s *OwnedStore[T, PT]) open(rec *T) error {
	if s.scope.Open == nil {
		return nil
	}
	if err := s.scope.Open(rec); err != nil {
		return apperr.Internal("could not decrypt", err)
	}
	return nil
}
