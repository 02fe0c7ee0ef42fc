package memstore

import (
	"context"

	"github.com/ovaphlow/pitchfork/service-library-go/internal/book/entity"
	loanentity "github.com/ovaphlow/pitchfork/service-library-go/internal/loan/entity"
)

// Books is the inventory view of a Store.
type Books struct{ s *Store }

func (b *Books) Create(ctx context.Context, book *entity.Book) error {
	s := b.s
	now := s.timestamp()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.isbn[book.ISBN]; taken {
		return entity.ErrDuplicateISBN
	}
	book.CreatedAt, book.UpdatedAt = now, now
	s.books[book.ID] = &bookRow{book: *book, loans: map[int64]*loanentity.Loan{}}
	s.isbn[book.ISBN] = book.ID
	return nil
}

func (b *Books) GetByID(ctx context.Context, id int64) (*entity.Book, error) {
	row := b.s.row(id)
	if row == nil {
		return nil, entity.ErrNotFound
	}
	row.mu.Lock()
	defer row.mu.Unlock()
	if row.deleted {
		return nil, entity.ErrNotFound
	}
	out := row.book
	return &out, nil
}

func (b *Books) List(ctx context.Context, f entity.Filter) ([]*entity.Book, int, error) {
	var matched []*entity.Book
	for _, row := range b.s.rows() {
		row.mu.Lock()
		if !row.deleted && matches(row.book, f) {
			out := row.book
			matched = append(matched, &out)
		}
		row.mu.Unlock()
	}
	return paginate(matched, f.Limit, f.Offset), len(matched), nil
}

func matches(book entity.Book, f entity.Filter) bool {
	return (f.Title == "" || book.Title == f.Title) &&
		(f.Author == "" || book.Author == f.Author) &&
		(f.ISBN == "" || book.ISBN == f.ISBN)
}

// Update applies p under the row lock, so a total change and concurrent
// borrows see each other's counters.
func (b *Books) Update(ctx context.Context, id int64, p entity.Patch) (*entity.Book, error) {
	s := b.s
	row := s.row(id)
	if row == nil {
		return nil, entity.ErrNotFound
	}
	row.mu.Lock()
	defer row.mu.Unlock()
	if row.deleted {
		return nil, entity.ErrNotFound
	}
	if p.ISBN != nil && *p.ISBN != row.book.ISBN {
		s.mu.Lock()
		if owner, taken := s.isbn[*p.ISBN]; taken && owner != id {
			s.mu.Unlock()
			return nil, entity.ErrDuplicateISBN
		}
		delete(s.isbn, row.book.ISBN)
		s.isbn[*p.ISBN] = id
		s.mu.Unlock()
	}
	p.Apply(&row.book)
	row.book.UpdatedAt = s.timestamp()
	out := row.book
	return &out, nil
}

// Delete drops the book and, like the foreign key cascade, its loans.
func (b *Books) Delete(ctx context.Context, id int64) error {
	s := b.s
	row := s.row(id)
	if row == nil {
		return entity.ErrNotFound
	}
	row.mu.Lock()
	defer row.mu.Unlock()
	if row.deleted {
		return entity.ErrNotFound
	}
	row.deleted = true
	s.mu.Lock()
	delete(s.books, id)
	delete(s.isbn, row.book.ISBN)
	for loanID := range row.loans {
		delete(s.loanBook, loanID)
	}
	s.mu.Unlock()
	row.loans = nil
	return nil
}

// InventoryMismatches lists books whose available count differs from total
// minus active loans.
func (b *Books) InventoryMismatches(ctx context.Context) ([]entity.Mismatch, error) {
	var out []entity.Mismatch
	for _, row := range b.s.rows() {
		row.mu.Lock()
		if !row.deleted {
			m := entity.Mismatch{
				BookID:            row.book.ID,
				TotalQuantity:     row.book.TotalQuantity,
				AvailableQuantity: row.book.AvailableQuantity,
			}
			for _, l := range row.loans {
				if l.Active() {
					m.ActiveLoans++
				}
			}
			if m.AvailableQuantity != m.Expected() {
				out = append(out, m)
			}
		}
		row.mu.Unlock()
	}
	return out, nil
}
