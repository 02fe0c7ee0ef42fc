package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-library-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-library-go/pkg/database"
)

const userColumns = `id, username, email, password_hash, is_admin, created_at, updated_at`

// UserRepo provides data access for users table using sqlx.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

// EnsureTable creates the users table if not exists (idempotent).
// This is a convenience for early development; prefer migrations in production.
func (r *UserRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS users (
  id BIGINT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  email TEXT,
  password_hash TEXT NOT NULL,
  is_admin BOOLEAN NOT NULL DEFAULT false,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Create inserts a new user row. u.ID must already be assigned.
func (r *UserRepo) Create(ctx context.Context, u *entity.User) error {
	q := `INSERT INTO users (id, username, email, password_hash, is_admin)
		  VALUES (:id, :username, :email, :password_hash, :is_admin) RETURNING created_at, updated_at`
	stmt, err := r.db.NamedQueryContext(ctx, q, u)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return entity.ErrDuplicateUsername
		}
		return err
	}
	defer stmt.Close()
	if stmt.Next() {
		return stmt.Scan(&u.CreatedAt, &u.UpdatedAt)
	}
	if err := stmt.Err(); err != nil {
		return err
	}
	return errors.New("no row returned")
}

// GetByID fetches a full user row.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
}

// GetByUsername fetches by username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*entity.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE username=$1`, username)
}

func (r *UserRepo) getOne(ctx context.Context, q string, arg any) (*entity.User, error) {
	var row entity.User
	if err := r.db.GetContext(ctx, &row, q, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entity.ErrNotFound
		}
		return nil, err
	}
	return &row, nil
}

// List returns one page of users ordered by id plus the total count.
func (r *UserRepo) List(ctx context.Context, limit, offset int) ([]*entity.User, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM users`); err != nil {
		return nil, 0, err
	}
	ds := goqu.Dialect("postgres").From("users").Select(goqu.L(userColumns)).Order(goqu.I("id").Asc())
	if limit > 0 {
		ds = ds.Limit(uint(limit))
	}
	if offset > 0 {
		ds = ds.Offset(uint(offset))
	}
	q, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build list query: %w", err)
	}
	users := []*entity.User{}
	if err := r.db.SelectContext(ctx, &users, q, args...); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// Update applies p and returns the updated row.
func (r *UserRepo) Update(ctx context.Context, id int64, p entity.Patch) (*entity.User, error) {
	const q = `UPDATE users SET
		username = COALESCE($2::text, username),
		email = COALESCE($3::text, email),
		password_hash = COALESCE($4::text, password_hash),
		is_admin = COALESCE($5::boolean, is_admin),
		updated_at = NOW()
	WHERE id = $1
	RETURNING ` + userColumns
	var u entity.User
	err := r.db.GetContext(ctx, &u, q, id, p.Username, p.Email, p.PasswordHash, p.IsAdmin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, entity.ErrDuplicateUsername
		}
		return nil, err
	}
	return &u, nil
}

// Delete removes a user. Copies held by the user's active loans are given
// back before the loans cascade away with the user row.
func (r *UserRepo) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// the row lock makes concurrent borrows by this user wait and then fail
	// their foreign key check, so no loan escapes the release below
	var one int
	err = tx.GetContext(ctx, &one, `SELECT 1 FROM users WHERE id=$1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock user: %w", err)
	}

	const release = `UPDATE books b
		SET available_quantity = LEAST(b.total_quantity, b.available_quantity + held.n), updated_at = NOW()
		FROM (SELECT book_id, COUNT(*) AS n FROM loans WHERE user_id = $1 AND NOT is_returned GROUP BY book_id) held
		WHERE b.id = held.book_id`
	if _, err := tx.ExecContext(ctx, release, id); err != nil {
		return fmt.Errorf("release copies: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id=$1`, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return tx.Commit()
}
