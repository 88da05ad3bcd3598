package testutil

import (
	"context"
	"database/sql"
	"testing"

	"github.com/ndewijer/market-data-store/internal/database"
	"github.com/ndewijer/market-data-store/internal/logging"

	_ "modernc.org/sqlite" // Test Package
)

// SetupTestDB creates an in-memory SQLite database for testing, migrated with
// the same embedded goose migrations as production.
// The database is automatically cleaned up when the test completes.
//
// Example usage:
//
//	func TestSomething(t *testing.T) {
//	    db := testutil.SetupTestDB(t)
//	    // db is ready to use with schema created
//	}
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	// In-memory database (destroyed when connection closes)
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	// Every connection to :memory: is a separate database, so pin the pool to one.
	db.SetMaxOpenConns(1)

	// Test connection
	if err := db.Ping(); err != nil {
		t.Fatalf("Failed to ping test database: %v", err)
	}

	// Configure SQLite for testing
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = MEMORY", // Faster for tests
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			t.Fatalf("Failed to set pragma: %v", err)
		}
	}

	// Create schema
	if _, err := database.Migrate(context.Background(), db, logging.Discard()); err != nil {
		t.Fatalf("Failed to migrate test schema: %v", err)
	}

	// Cleanup when test ends
	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// SetupFileDB creates a migrated on-disk database in a temporary directory using
// the production connection settings (WAL, busy timeout).
func SetupFileDB(t *testing.T) (*sql.DB, string) {
	t.Helper()

	path := t.TempDir() + "/market_data.db"
	db, err := database.Open(path)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if _, err := database.Migrate(context.Background(), db, logging.Discard()); err != nil {
		t.Fatalf("Failed to migrate test schema: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db, path
}
