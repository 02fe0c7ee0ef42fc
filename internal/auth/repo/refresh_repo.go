package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrSessionNotFound is returned when no session matches a token hash.
var ErrSessionNotFound = errors.New("refresh session not found")

// Session mirrors a refresh_sessions row.
type Session struct {
	ID        int64     `db:"id"`
	TokenHash string    `db:"token_hash"`
	UserID    int64     `db:"user_id"`
	ClientID  string    `db:"client_id"`
	ExpiresAt time.Time `db:"expires_at"`
}

type RefreshRepo struct {
	db *sqlx.DB
}

func NewRefreshRepo(db *sqlx.DB) *RefreshRepo {
	return &RefreshRepo{db: db}
}

// EnsureTable creates refresh_sessions; users must exist first.
func (r *RefreshRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS refresh_sessions (
  token_hash TEXT PRIMARY KEY,
  id BIGSERIAL,
  user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  client_id TEXT NOT NULL DEFAULT '',
  expires_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_refresh_sessions_user_id ON refresh_sessions(user_id);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

func (r *RefreshRepo) Save(ctx context.Context, tokenHash string, userID int64, clientID string, expiresAt time.Time) (int64, error) {
	query := `INSERT INTO refresh_sessions (token_hash, user_id, client_id, expires_at) VALUES ($1, $2, $3, $4) RETURNING id`
	var id int64
	row := r.db.QueryRowxContext(ctx, query, tokenHash, userID, clientID, expiresAt)
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// Take deletes the session and returns it, so a refresh token is consumed
// at most once.
func (r *RefreshRepo) Take(ctx context.Context, tokenHash string) (*Session, error) {
	var s Session
	query := `DELETE FROM refresh_sessions WHERE token_hash = $1 RETURNING id, token_hash, user_id, client_id, expires_at`
	if err := r.db.GetContext(ctx, &s, query, tokenHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *RefreshRepo) Delete(ctx context.Context, tokenHash string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM refresh_sessions WHERE token_hash = $1`, tokenHash)
	return err
}
