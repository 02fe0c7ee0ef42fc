// Package dbtest opens an isolated Postgres schema for repository tests.
package dbtest

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-library-go/pkg/database"
)

// Open connects using DATABASE_URL with search_path set to schema and drops
// any tables left by a previous run. The test is skipped when Postgres is not
// reachable. Callers create their tables with the repos' EnsureTable.
func Open(t *testing.T, schema string) *sqlx.DB {
	t.Helper()

	cfg := database.ConfigFromEnv()
	cfg.Schema = schema
	cfg.MaxConns = 20
	cfg.Timeout = 2 * time.Second
	db, err := database.Connect(cfg)
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	if err := database.EnsureSchema(ctx, db, schema); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if _, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS refresh_sessions, loans, books, users CASCADE`); err != nil {
		t.Fatalf("reset tables: %v", err)
	}
	return db
}
