// Package dbtest opens throwaway SQLite databases with the production schema.
package dbtest

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/jmoiron/sqlx"

	_ "github.com/mattn/go-sqlite3"

	"pledgr/internal/database"
)

var seq atomic.Int64

// New returns a migrated in-memory database that is closed when t finishes.
// A single connection keeps the in-memory database alive for the whole test.
func New(t testing.TB) *sqlx.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:pledgr_test_%d?mode=memory&cache=shared&_foreign_keys=1", seq.Add(1))
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("sqlx.Open: %v", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := database.Migrate(context.Background(), db); err != nil {
		db.Close()
		t.Fatalf("database.Migrate: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })
	return db
}
