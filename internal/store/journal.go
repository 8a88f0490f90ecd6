package store

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"sanctuary/internal/apperr"
	"sanctuary/internal/models"
	"sanctuary/internal/services"
)

var ErrEntryNotFound = apperr.NotFound("Journal entry not found")

// JournalStore keeps each user's private journal.
type JournalStore struct {
	entries *OwnedStore[models.JournalEntry, *models.JournalEntry]
}

// NewJournalStore wires the scoped store to journal_entries. enc may be nil.
func NewJournalStore(db *sqlx.DB, enc *services.EncryptionService, now func() time.Time) *JournalStore {
	scope := Scope[models.JournalEntry]{
		Table:    "journal_entries",
		Mutable:  models.JournalEntryMutable,
		NotFound: ErrEntryNotFound,
	}
	if enc != nil {
		scope.Seal = enc.EncryptEntry
		scope.Open = enc.DecryptEntry
	}
	return &JournalStore{entries: NewOwnedStore[models.JournalEntry, *models.JournalEntry](db, scope, now)}
}

func (s *JournalStore) Create(ctx context.Context, ownerID string, f models.EntryFields) (*models.JournalEntry, error) {
	var e models.JournalEntry
	e.Apply(f)
	if _, err := s.entries.Create(ctx, ownerID, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *JournalStore) List(ctx context.Context, ownerID string, limit, offset int) ([]models.JournalEntry, error) {
	entries, err := s.entries.List(ctx, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		normalize(&entries[i])
	}
	return entries, nil
}

func (s *JournalStore) Get(ctx context.Context, ownerID, id string) (*models.JournalEntry, error) {
	e, err := s.entries.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	normalize(e)
	return e, nil
}

func (s *JournalStore) Update(ctx context.Context, ownerID, id string, f models.EntryFields) error {
	var e models.JournalEntry
	e.Apply(f)
	return s.entries.Update(ctx, ownerID, id, &e)
}

func (s *JournalStore) Delete(ctx context.Context, ownerID, id string) error {
	return s.entries.Delete(ctx, ownerID, id)
}

func normalize(e *models.JournalEntry) {
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
}
