package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-library-go/internal/book/entity"
	"github.com/ovaphlow/pitchfork/service-library-go/pkg/database"
)

const bookColumns = `id, title, author, isbn, page_count, total_quantity, available_quantity, created_at, updated_at`

// BookRepo provides data access for the books table using sqlx.
type BookRepo struct {
	db *sqlx.DB
}

func NewBookRepo(db *sqlx.DB) *BookRepo { return &BookRepo{db: db} }

// EnsureTable creates the books table if not exists (idempotent).
// The CHECK constraints are the last line of defence for the copy counters.
func (r *BookRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS books (
  id BIGINT PRIMARY KEY,
  title VARCHAR(200) NOT NULL,
  author VARCHAR(200) NOT NULL,
  isbn VARCHAR(13) NOT NULL UNIQUE,
  page_count INT NOT NULL CHECK (page_count >= 1),
  total_quantity INT NOT NULL CHECK (total_quantity >= 0),
  available_quantity INT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  CONSTRAINT books_available_range CHECK (available_quantity >= 0 AND available_quantity <= total_quantity)
);
CREATE INDEX IF NOT EXISTS idx_books_title ON books(title);
CREATE INDEX IF NOT EXISTS idx_books_author ON books(author);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Create inserts a new book. b.ID must already be assigned.
func (r *BookRepo) Create(ctx context.Context, b *entity.Book) error {
	const q = `INSERT INTO books (id, title, author, isbn, page_count, total_quantity, available_quantity)
		VALUES (:id, :title, :author, :isbn, :page_count, :total_quantity, :available_quantity)
		RETURNING created_at, updated_at`
	rows, err := r.db.NamedQueryContext(ctx, q, b)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return entity.ErrDuplicateISBN
		}
		return fmt.Errorf("insert book: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		return rows.Scan(&b.CreatedAt, &b.UpdatedAt)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("insert book: %w", err)
	}
	return errors.New("insert book: no row returned")
}

// GetByID fetches a book or returns entity.ErrNotFound.
func (r *BookRepo) GetByID(ctx context.Context, id int64) (*entity.Book, error) {
	var b entity.Book
	err := r.db.GetContext(ctx, &b, `SELECT `+bookColumns+` FROM books WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	return &b, nil
}

// List returns one page of books matching f plus the total match count.
func (r *BookRepo) List(ctx context.Context, f entity.Filter) ([]*entity.Book, int, error) {
	ds := goqu.Dialect("postgres").From("books")
	if f.Title != "" {
		ds = ds.Where(goqu.Ex{"title": f.Title})
	}
	if f.Author != "" {
		ds = ds.Where(goqu.Ex{"author": f.Author})
	}
	if f.ISBN != "" {
		ds = ds.Where(goqu.Ex{"isbn": f.ISBN})
	}

	countSQL, countArgs, err := ds.Select(goqu.COUNT(goqu.Star())).Prepared(true).ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build count query: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, countSQL, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count books: %w", err)
	}

	page := ds.Select(goqu.L(bookColumns)).Order(goqu.I("id").Asc())
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
	books := []*entity.Book{}
	if err := r.db.SelectContext(ctx, &books, q, args...); err != nil {
		return nil, 0, fmt.Errorf("list books: %w", err)
	}
	return books, total, nil
}

// Update applies p in a single statement. When total_quantity changes the
// available count moves by the same delta and is clamped into [0, total],
// so a concurrent borrow either sees the old row or the new one.
func (r *BookRepo) Update(ctx context.Context, id int64, p entity.Patch) (*entity.Book, error) {
	const q = `UPDATE books SET
		title = COALESCE($2::text, title),
		author = COALESCE($3::text, author),
		isbn = COALESCE($4::text, isbn),
		page_count = COALESCE($5::int, page_count),
		available_quantity = CASE WHEN $6::int IS NULL THEN available_quantity
			ELSE GREATEST(0, LEAST($6::int, available_quantity + ($6::int - total_quantity))) END,
		total_quantity = COALESCE($6::int, total_quantity),
		updated_at = NOW()
	WHERE id = $1
	RETURNING ` + bookColumns
	var b entity.Book
	err := r.db.GetContext(ctx, &b, q, id, p.Title, p.Author, p.ISBN, p.PageCount, p.TotalQuantity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, entity.ErrDuplicateISBN
		}
		return nil, fmt.Errorf("update book: %w", err)
	}
	return &b, nil
}

// Delete removes a book; its loans go with it via ON DELETE CASCADE.
func (r *BookRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM books WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return entity.ErrNotFound
	}
	return nil
}

// InventoryMismatches lists books whose available count differs from
// total_quantity minus their active loans.
func (r *BookRepo) InventoryMismatches(ctx context.Context) ([]entity.Mismatch, error) {
	const q = `SELECT b.id, b.total_quantity, b.available_quantity, COALESCE(a.n, 0) AS active_loans
		FROM books b
		LEFT JOIN (SELECT book_id, COUNT(*) AS n FROM loans WHERE NOT is_returned GROUP BY book_id) a ON a.book_id = b.id
		WHERE b.available_quantity <> b.total_quantity - COALESCE(a.n, 0)
		ORDER BY b.id`
	out := []entity.Mismatch{}
	if err := r.db.SelectContext(ctx, &out, q); err != nil {
		return nil, fmt.Errorf("inventory mismatches: %w", err)
	}
	return out, nil
}
