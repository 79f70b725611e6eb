package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/mcdev12/beatmeat/go/internal/database"
	"github.com/mcdev12/beatmeat/go/internal/dbconfig"
)

// SetupTestDB opens a fresh sqlite database in a temp dir with every
// migration applied. It is closed when the test ends.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	cfg := dbconfig.Config{
		Driver: dbconfig.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "test.db"),
	}

	db, err := database.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

// CountRows returns the row count of table
func CountRows(t *testing.T, db *sql.DB, table string) int64 {
	t.Helper()

	var n int64
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("Failed to count %s: %v", table, err)
	}
	return n
}
