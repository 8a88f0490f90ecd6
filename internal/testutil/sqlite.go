// Package testutil provides SQLite-backed databases for package tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"sanctuary/internal/db"
)

// NewDB creates a file database under t.TempDir with the application schema
// applied. It is closed when the test ends.
func NewDB(t *testing.T) *sqlx.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "sanctuary.db")
	conn, err := sqlx.Open("sqlite3", "file:"+path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := db.ApplySchema(context.Background(), conn); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return conn
}

// NewSeededDB is NewDB plus the sample catalog.
func NewSeededDB(t *testing.T) *sqlx.DB {
	t.Helper()

	conn := NewDB(t)
	if _, err := db.SeedProducts(context.Background(), conn, db.SampleProducts); err != nil {
		t.Fatalf("seed products: %v", err)
	}
	return conn
}
