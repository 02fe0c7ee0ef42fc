package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert book: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
	assert.False(t, IsUniqueViolation(nil))
}

func TestIsForeignKeyViolation(t *testing.T) {
	assert.True(t, IsForeignKeyViolation(&pgconn.PgError{Code: "23503"}))
	assert.True(t, IsForeignKeyViolation(fmt.Errorf("insert loan: %w", &pq.Error{Code: "23503"})))
	assert.False(t, IsForeignKeyViolation(&pgconn.PgError{Code: "23505"}))
}

func TestWithSessionParams(t *testing.T) {
	cfg := Config{DSN: "postgres://u:p@localhost/db?sslmode=disable", TimeZone: "UTC"}
	assert.Equal(t, "postgres://u:p@localhost/db?sslmode=disable&timezone=UTC", withSessionParams(cfg))

	cfg = Config{DSN: "postgres://u:p@localhost/db", ClientEncoding: "UTF8"}
	assert.Equal(t, "postgres://u:p@localhost/db?client_encoding=UTF8", withSessionParams(cfg))

	cfg = Config{DSN: "postgres://u:p@localhost/db"}
	assert.Equal(t, cfg.DSN, withSessionParams(cfg))
}

func TestWithSessionParams_Schema(t *testing.T) {
	cfg := Config{DSN: "postgres://u:p@localhost/db?sslmode=disable", Schema: "library"}
	assert.Equal(t, "postgres://u:p@localhost/db?sslmode=disable&search_path=library", withSessionParams(cfg))
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://x@db/lib")
	t.Setenv("DATABASE_DRIVER", "PGX")
	t.Setenv("DATABASE_MAX_CONNS", "3")
	t.Setenv("DATABASE_SCHEMA", "library")
	cfg := ConfigFromEnv()
	assert.Equal(t, DriverPgx, cfg.Driver)
	assert.Equal(t, 3, cfg.MaxConns)
	assert.Equal(t, "library", cfg.Schema)

	t.Setenv("DATABASE_DRIVER", "mysql")
	assert.Equal(t, DriverPostgres, ConfigFromEnv().Driver)
}
