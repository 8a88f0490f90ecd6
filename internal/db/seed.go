package db

import (
	"context"

	"github.com/jmoiron/sqlx"

	"sanctuary/internal/models"
)

func strPtr(s string) *string { return &s }

// SampleProducts is the starter catalog inserted on a fresh database.
var SampleProducts = []models.Product{
	{
		ID:             "1",
		Name:           "Cosmic Healing Journal",
		Description:    "A beautifully designed 120-page digital journal with guided prompts for self-reflection, healing, and growth.",
		Price:          29.99,
		Category:       "journal",
		PreviewContent: strPtr("Sample pages include: 'What does healing mean to you today?' and 'Three things that brought me peace this week...'"),
		FeaturedImage:  "https://images.unsplash.com/photo-1596078878524-8047985968bb",
	},
	{
		ID:             "2",
		Name:           "Transitions & Transformation eBook",
		Description:    "A comprehensive 80-page guide to navigating life's major transitions with grace and wisdom.",
		Price:          19.99,
		Category:       "ebook",
		PreviewContent: strPtr("Chapter preview: 'Understanding the Seasons of Change' - Learn why transitions feel so challenging."),
		FeaturedImage:  "https://images.unsplash.com/photo-1732352332941-7cb02a49edd8",
	},
}

// SeedProducts inserts products that are not present yet and returns how many
// rows were added.
func SeedProducts(ctx context.Context, conn *sqlx.DB, products []models.Product) (int64, error) {
	var added int64
	for _, p := range products {
		res, err := conn.NamedExecContext(ctx, `INSERT INTO products (id, name, description, price, category, preview_content, featured_image)
			VALUES (:id, :name, :description, :price, :category, :preview_content, :featured_image)
			ON CONFLICT (id) DO NOTHING`, p)
		if err != nil {
			return added, err
		}
		n, _ := res.RowsAffected()
		added += n
	}
	return added, nil
}
