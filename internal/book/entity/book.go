package entity

import (
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("book not found")
	ErrDuplicateISBN = errors.New("book with this isbn already exists")
)

// Book is a catalogue entry together with its copy counters.
// AvailableQuantity is kept in [0, TotalQuantity] by the loan ledger.
type Book struct {
	ID                int64     `db:"id"`
	Title             string    `db:"title"`
	Author            string    `db:"author"`
	ISBN              string    `db:"isbn"`
	PageCount         int       `db:"page_count"`
	TotalQuantity     int       `db:"total_quantity"`
	AvailableQuantity int       `db:"available_quantity"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

// Patch holds the admin-editable fields of a book; nil means unchanged.
type Patch struct {
	Title         *string
	Author        *string
	ISBN          *string
	PageCount     *int
	TotalQuantity *int
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Title == nil && p.Author == nil && p.ISBN == nil && p.PageCount == nil && p.TotalQuantity == nil
}

// Apply writes the patch onto b. A new total shifts the available count by
// the same delta, clamped into [0, total].
func (p Patch) Apply(b *Book) {
	if p.Title != nil {
		b.Title = *p.Title
	}
	if p.Author != nil {
		b.Author = *p.Author
	}
	if p.ISBN != nil {
		b.ISBN = *p.ISBN
	}
	if p.PageCount != nil {
		b.PageCount = *p.PageCount
	}
	if p.TotalQuantity != nil {
		b.AvailableQuantity = ShiftAvailable(b.AvailableQuantity, b.TotalQuantity, *p.TotalQuantity)
		b.TotalQuantity = *p.TotalQuantity
	}
}

// ShiftAvailable returns the available count after total changes from oldTotal to newTotal.
func ShiftAvailable(available, oldTotal, newTotal int) int {
	v := available + (newTotal - oldTotal)
	if v > newTotal {
		v = newTotal
	}
	if v < 0 {
		v = 0
	}
	return v
}

// Filter narrows book listings. Empty strings match everything.
type Filter struct {
	Title  string
	Author string
	ISBN   string
	Limit  int
	Offset int
}

// Mismatch describes a book whose available count disagrees with its active loans.
type Mismatch struct {
	BookID            int64 `db:"id"`
	TotalQuantity     int   `db:"total_quantity"`
	AvailableQuantity int   `db:"available_quantity"`
	ActiveLoans       int   `db:"active_loans"`
}

// Expected is the available count implied by total and active loans.
func (m Mismatch) Expected() int {
	return m.TotalQuantity - m.ActiveLoans
}
