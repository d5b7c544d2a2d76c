// Package testutil provides shared test helpers for setting up upload roots and databases.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/starford/tirelire/internal/database"
	"github.com/starford/tirelire/internal/models"
	"github.com/starford/tirelire/internal/storage"
)

// TestDB creates a temporary migrated SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *database.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "tirelire-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() {
		os.Remove(dbFile.Name())
		os.Remove(dbFile.Name() + "-wal")
		os.Remove(dbFile.Name() + "-shm")
	})

	db, err := database.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestUploads creates a temporary uploads root with a blob store.
func TestUploads(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// SeedCategory inserts an active, visible category with the given budget.
func SeedCategory(t *testing.T, db *database.DB, name, budget string) *models.Category {
	t.Helper()
	c, err := db.CreateCategory(context.Background(), models.Category{
		Name:     name,
		Budget:   decimal.RequireFromString(budget),
		Color:    "#3366ff",
		IsActive: true,
		Show:     true,
	})
	if err != nil {
		t.Fatalf("seed category: %v", err)
	}
	return c
}
