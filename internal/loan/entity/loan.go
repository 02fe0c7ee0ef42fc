package entity

import (
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("loan not found")
	ErrUnavailable     = errors.New("book is not available")
	ErrAlreadyReturned = errors.New("book already returned")
)

// Loan records one borrowed copy. It starts active and may be returned once.
type Loan struct {
	ID         int64      `db:"id"`
	UserID     int64      `db:"user_id"`
	BookID     int64      `db:"book_id"`
	BorrowedAt time.Time  `db:"borrowed_at"`
	ReturnedAt *time.Time `db:"returned_at"`
	IsReturned bool       `db:"is_returned"`
}

// Active reports whether the loan still holds a copy.
func (l *Loan) Active() bool {
	return !l.IsReturned
}

// MarkReturned performs the single Active -> Returned transition.
func (l *Loan) MarkReturned(at time.Time) error {
	if l.IsReturned {
		return ErrAlreadyReturned
	}
	l.IsReturned = true
	l.ReturnedAt = &at
	return nil
}

// Filter narrows loan listings. A nil UserID lists loans of every user.
type Filter struct {
	UserID *int64
	BookID *int64
	Limit  int
	Offset int
}
