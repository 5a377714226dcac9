// Package testutil holds shared harness code for integration tests.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"testing"

	_ "github.com/lib/pq"
)

// Tables owned by the schema, truncated between tests.
var appTables = []string{"trades", "escrow_transactions", "notifications"}

var migrateOnce sync.Once
var migrateErr error

// PGTest opens the database named by POSTGRES_URL, applies migrations once
// per test process, and returns the connection plus a cleanup that wipes the
// application tables. Tests are skipped when POSTGRES_URL is unset.
func PGTest(t *testing.T) (*sql.DB, func()) {
	t.Helper()

	dsn := os.Getenv("POSTGRES_URL")
	if dsn == "" {
		t.Skip("POSTGRES_URL not set, skipping integration test")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("pgtest: open database: %v", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		t.Fatalf("pgtest: connect: %v", err)
	}

	ctx := context.Background()
	migrateOnce.Do(func() {
		migrateErr = applyMigrations(ctx, db)
	})
	if migrateErr != nil {
		_ = db.Close()
		t.Fatalf("pgtest: migrations: %v", migrateErr)
	}

	cleanup := func() {
		stmt := "TRUNCATE " + strings.Join(appTables, ", ") + " CASCADE"
		_, _ = db.ExecContext(ctx, stmt)
		_ = db.Close()
	}
	return db, cleanup
}

// applyMigrations executes every migrations/*.sql up section in name order.
// The repo root is located relative to this source file, so tests can run
// from any package directory.
func applyMigrations(ctx context.Context, db *sql.DB) error {
	_, self, _, ok := runtime.Caller(0)
	if !ok {
		return fmt.Errorf("locate source file")
	}
	dir := filepath.Join(filepath.Dir(self), "..", "..", "migrations")

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name)) // #nosec G304 -- path rooted at this repo's migrations dir
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		// Only the up section applies; tests never migrate down.
		stmt := string(data)
		if idx := strings.Index(stmt, "-- +goose Down"); idx >= 0 {
			stmt = stmt[:idx]
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
	}
	return nil
}
