package sqlutil_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/mcdev12/beatmeat/go/internal/sqlutil"
	_ "modernc.org/sqlite"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "tx.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(`CREATE TABLE counters (id INTEGER PRIMARY KEY, n INTEGER NOT NULL)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO counters (id, n) VALUES (1, 0)`); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return db
}

func bind(tx *sql.Tx) *sql.Tx { return tx }

func counter(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	if err := db.QueryRow(`SELECT n FROM counters WHERE id = 1`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestRunCommits(t *testing.T) {
	db := openDB(t)

	err := sqlutil.Run(context.Background(), db, bind, func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE counters SET n = n + 1 WHERE id = 1`)
		return err
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if got := counter(t, db); got != 1 {
		t.Errorf("counter = %d, want 1", got)
	}
}

func TestRunRollsBackOnError(t *testing.T) {
	db := openDB(t)
	boom := errors.New("boom")

	err := sqlutil.Run(context.Background(), db, bind, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`UPDATE counters SET n = n + 1 WHERE id = 1`); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want boom", err)
	}
	if got := counter(t, db); got != 0 {
		t.Errorf("counter = %d after rollback, want 0", got)
	}
}
