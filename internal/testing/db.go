// Package testing provides database helpers, fixtures and stub adapters for tests.
package testing

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/aristath/permanent/internal/database"
)

// NewTestDB creates a file-backed SQLite database in the test's temp dir and
// applies the embedded schema for name (config, ledger, history, client_data).
// Unknown names give an empty database. The connection is closed on test cleanup.
func NewTestDB(t *testing.T, name string) *database.DB {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), fmt.Sprintf("test_%s.db", name)),
		Profile: database.ProfileStandard,
		Name:    name,
	})
	if err != nil {
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}

	if err := db.Migrate(); err != nil {
		_ = db.Close()
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
	})

	return db
}
