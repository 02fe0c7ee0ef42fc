package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jmoiron/sqlx"

	bookentity "github.com/ovaphlow/pitchfork/service-library-go/internal/book/entity"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/loan/entity"
	userentity "github.com/ovaphlow/pitchfork/service-library-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-library-go/pkg/database"
)

const loanColumns = `id, user_id, book_id, borrowed_at, returned_at, is_returned`

// LoanRepo stores loans and applies borrow/return against the books table.
type LoanRepo struct {
	db *sqlx.DB
}

func NewLoanRepo(db *sqlx.DB) *LoanRepo { return &LoanRepo{db: db} }

// EnsureTable creates the loans table. books and users must exist first.
func (r *LoanRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS loans (
  id BIGINT PRIMARY KEY,
  user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  book_id BIGINT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
  borrowed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  returned_at TIMESTAMPTZ,
  is_returned BOOLEAN NOT NULL DEFAULT false
);
CREATE INDEX IF NOT EXISTS idx_loans_user_id ON loans(user_id);
CREATE INDEX IF NOT EXISTS idx_loans_book_id ON loans(book_id);
CREATE INDEX IF NOT EXISTS idx_loans_active_book ON loans(book_id) WHERE NOT is_returned;
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Borrow takes one copy of l.BookID and records l in one transaction.
// The conditional UPDATE holds the book row lock until commit, so concurrent
// borrows of the same book queue behind it and see the decremented count.
func (r *LoanRepo) Borrow(ctx context.Context, l *entity.Loan) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE books
		SET available_quantity = available_quantity - 1, updated_at = NOW()
		WHERE id = $1 AND available_quantity > 0`, l.BookID)
	if err != nil {
		return fmt.Errorf("take copy: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		var one int
		err := tx.GetContext(ctx, &one, `SELECT 1 FROM books WHERE id = $1`, l.BookID)
		if errors.Is(err, sql.ErrNoRows) {
			return bookentity.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("check book: %w", err)
		}
		return entity.ErrUnavailable
	}

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO loans (id, user_id, book_id, borrowed_at, is_returned)
		VALUES (:id, :user_id, :book_id, :borrowed_at, false)`, l)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return userentity.ErrNotFound
		}
		return fmt.Errorf("insert loan: %w", err)
	}

	return tx.Commit()
}

// Return closes the loan and gives its copy back in one transaction.
// Only the first of several concurrent returns matches `NOT is_returned`.
func (r *LoanRepo) Return(ctx context.Context, id int64, at time.Time) (*entity.Loan, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var l entity.Loan
	err = tx.GetContext(ctx, &l, `
		UPDATE loans SET is_returned = true, returned_at = $2
		WHERE id = $1 AND NOT is_returned
		RETURNING `+loanColumns, id, at)
	if errors.Is(err, sql.ErrNoRows) {
		var returned bool
		err := tx.GetContext(ctx, &returned, `SELECT is_returned FROM loans WHERE id = $1`, id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entity.ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("check loan: %w", err)
		}
		return nil, entity.ErrAlreadyReturned
	}
	if err != nil {
		return nil, fmt.Errorf("close loan: %w", err)
	}

	// LEAST keeps the counter within total when an admin shrank the stock meanwhile.
	if _, err := tx.ExecContext(ctx, `
		UPDATE books
		SET available_quantity = LEAST(total_quantity, available_quantity + 1), updated_at = NOW()
		WHERE id = $1`, l.BookID); err != nil {
		return nil, fmt.Errorf("release copy: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &l, nil
}

// GetByID fetches a loan or returns entity.ErrNotFound.
func (r *LoanRepo) GetByID(ctx context.Context, id int64) (*entity.Loan, error) {
	var l entity.Loan
	err := r.db.GetContext(ctx, &l, `SELECT `+loanColumns+` FROM loans WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get loan: %w", err)
	}
	return &l, nil
}

// List returns one page of loans matching f plus the total match count.
func (r *LoanRepo) List(ctx context.Context, f entity.Filter) ([]*entity.Loan, int, error) {
	ds := goqu.Dialect("postgres").From("loans")
	if f.UserID != nil {
		ds = ds.Where(goqu.Ex{"user_id": *f.UserID})
	}
	if f.BookID != nil {
		ds = ds.Where(goqu.Ex{"book_id": *f.BookID})
	}

	countSQL, countArgs, err := ds.Select(goqu.COUNT(goqu.Star())).Prepared(true).ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build count query: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, countSQL, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count loans: %w", err)
	}

	page := ds.Select(goqu.L(loanColumns)).Order(goqu.I("id").Asc())
	if f.Limit > 0 {
		page = page.Limit(uint(f.Limit))
	}
	if f.Offset > 0 {
		page = page.Offset(uint(f.Offset))
	}
	q, args, err := page.Prepared(true).ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build list query: %w", err)
	}
	loans := []*entity.Loan{}
	if err := r.db.SelectContext(ctx, &loans, q, args...); err != nil {
		return nil, 0, fmt.Errorf("list loans: %w", err)
	}
	return loans, total, nil
}

// Reassign moves a loan to another borrower. Counters are unaffected.
func (r *LoanRepo) Reassign(ctx context.Context, id, userID int64) (*entity.Loan, error) {
	var l entity.Loan
	err := r.db.GetContext(ctx, &l, `UPDATE loans SET user_id=$2 WHERE id=$1 RETURNING `+loanColumns, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return nil, userentity.ErrNotFound
		}
		return nil, fmt.Errorf("reassign loan: %w", err)
	}
	return &l, nil
}

// Delete removes a loan. An active loan gives its copy back in the same transaction.
func (r *LoanRepo) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var l entity.Loan
	err = tx.GetContext(ctx, &l, `DELETE FROM loans WHERE id=$1 RETURNING `+loanColumns, id)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete loan: %w", err)
	}
	if l.Active() {
		if _, err := tx.ExecContext(ctx, `
			UPDATE books
			SET available_quantity = LEAST(total_quantity, available_quantity + 1), updated_at = NOW()
			WHERE id = $1`, l.BookID); err != nil {
			return fmt.Errorf("release copy: %w", err)
		}
	}
	return tx.Commit()
}
