// Package testutil opens migrated SQLite databases for package tests.
package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stanstork/ssd/internal/migration"
)

// NewDB returns a fresh file-backed SQLite database with every migration applied.
// The database is closed when the test finishes.
func NewDB(t testing.TB) *sql.DB {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "ssd.db") + "?_foreign_keys=on&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if err := migration.Run(db, migration.DialectSQLite, zerolog.Nop()); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return db
}
