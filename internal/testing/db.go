// Package testing provides database and fixture helpers for package tests.
package testing

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/bensonidabosa/stonecrestcapital/internal/database"
)

// NewTestDB creates a migrated SQLite ledger in a temporary directory.
// The database is closed when the test finishes.
func NewTestDB(t *testing.T) *database.DB {
	t.Helper()

	// A file-backed database lets every pooled connection see the same data
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "ledger.db"),
		Profile: database.ProfileStandard,
		Name:    "ledger",
	})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database: %v", err)
		}
	})

	if err := db.Migrate(); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	return db
}

// NewTestConn is NewTestDB returning the raw connection used by repositories
func NewTestConn(t *testing.T) *sql.DB {
	t.Helper()
	return NewTestDB(t).Conn()
}
