package store

import (
	"context"

	"github.com/jmoiron/sqlx"

	"sanctuary/internal/apperr"
	"sanctuary/internal/models"
)

// ProductStore is the read-only catalog.
type ProductStore struct {
	db *sqlx.DB
}

func NewProductStore(db *sqlx.DB) *ProductStore {
	return &ProductStore{db: db}
}

// FindByIDs returns the products matching ids, in the order the ids were
// given. Unknown ids are skipped and duplicates collapse to one product.
func (s *ProductStore) FindByIDs(ctx context.Context, ids []string) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}
	query, args, err := sqlx.In(`SELECT id, name, description, price, category, preview_content, featured_image
		FROM products WHERE id IN (?)`, ids)
	if err != nil {
		return nil, apperr.Internal("could not build product query", err)
	}
	var found []models.Product
	if err := s.db.SelectContext(ctx, &found, s.db.Rebind(query), args...); err != nil {
		return nil, apperr.Internal("could not fetch products", err)
	}

	byID := make(map[string]models.Product, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}
	out := make([]models.Product, 0, len(found))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
			delete(byID, id)
		}
	}
	return out, nil
}
