package memstore

import (
	"context"
	"sort"
	"time"

	bookentity "github.com/ovaphlow/pitchfork/service-library-go/internal/book/entity"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/loan/entity"
	userentity "github.com/ovaphlow/pitchfork/service-library-go/internal/user/entity"
)

// Loans is the ledger view of a Store.
type Loans struct{ s *Store }

// Borrow checks availability, records the loan and takes the copy while
// holding the book's lock.
func (v *Loans) Borrow(ctx context.Context, l *entity.Loan) error {
	s := v.s
	row := s.row(l.BookID)
	if row == nil {
		return bookentity.ErrNotFound
	}
	row.mu.Lock()
	defer row.mu.Unlock()
	if row.deleted {
		return bookentity.ErrNotFound
	}
	if row.book.AvailableQuantity <= 0 {
		return entity.ErrUnavailable
	}
	s.mu.Lock()
	if _, ok := s.users[l.UserID]; !ok {
		s.mu.Unlock()
		return userentity.ErrNotFound
	}
	s.loanBook[l.ID] = l.BookID
	s.mu.Unlock()

	stored := *l
	stored.IsReturned = false
	stored.ReturnedAt = nil
	row.loans[l.ID] = &stored
	row.book.AvailableQuantity--
	row.book.UpdatedAt = s.timestamp()
	*l = stored
	return nil
}

// locate returns the locked row holding loan id, or nil when the loan is gone.
func (v *Loans) locate(id int64) (*bookRow, *entity.Loan) {
	s := v.s
	s.mu.RLock()
	bookID, ok := s.loanBook[id]
	row := s.books[bookID]
	s.mu.RUnlock()
	if !ok || row == nil {
		return nil, nil
	}
	row.mu.Lock()
	l := row.loans[id]
	if row.deleted || l == nil {
		row.mu.Unlock()
		return nil, nil
	}
	return row, l
}

func (v *Loans) Return(ctx context.Context, id int64, at time.Time) (*entity.Loan, error) {
	row, l := v.locate(id)
	if row == nil {
		return nil, entity.ErrNotFound
	}
	defer row.mu.Unlock()
	if err := l.MarkReturned(at); err != nil {
		return nil, err
	}
	release(row, v.s.timestamp())
	out := *l
	return &out, nil
}

func (v *Loans) GetByID(ctx context.Context, id int64) (*entity.Loan, error) {
	row, l := v.locate(id)
	if row == nil {
		return nil, entity.ErrNotFound
	}
	defer row.mu.Unlock()
	out := *l
	return &out, nil
}

func (v *Loans) List(ctx context.Context, f entity.Filter) ([]*entity.Loan, int, error) {
	var matched []*entity.Loan
	for _, row := range v.s.rows() {
		row.mu.Lock()
		if !row.deleted {
			for _, l := range row.loans {
				if f.UserID != nil && l.UserID != *f.UserID {
					continue
				}
				if f.BookID != nil && l.BookID != *f.BookID {
					continue
				}
				out := *l
				matched = append(matched, &out)
			}
		}
		row.mu.Unlock()
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return paginate(matched, f.Limit, f.Offset), len(matched), nil
}

func (v *Loans) Reassign(ctx context.Context, id, userID int64) (*entity.Loan, error) {
	row, l := v.locate(id)
	if row == nil {
		return nil, entity.ErrNotFound
	}
	defer row.mu.Unlock()
	if !v.s.userExists(userID) {
		return nil, userentity.ErrNotFound
	}
	l.UserID = userID
	out := *l
	return &out, nil
}

func (v *Loans) Delete(ctx context.Context, id int64) error {
	row, l := v.locate(id)
	if row == nil {
		return entity.ErrNotFound
	}
	defer row.mu.Unlock()
	delete(row.loans, id)
	if l.Active() {
		release(row, v.s.timestamp())
	}
	v.s.mu.Lock()
	delete(v.s.loanBook, id)
	v.s.mu.Unlock()
	return nil
}
