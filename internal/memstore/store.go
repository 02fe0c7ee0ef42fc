// Package memstore keeps books, loans, users and refresh sessions in process
// memory. It implements the same ports as the Postgres repositories and backs
// STORAGE=memory as well as the service and HTTP tests.
//
// Each book row has its own mutex; borrow, return and loan deletion for one
// book serialize on it while other books proceed independently. The store
// mutex only guards the indexes. Locks are always taken row first, then store.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	authrepo "github.com/ovaphlow/pitchfork/service-library-go/internal/auth/repo"
	bookentity "github.com/ovaphlow/pitchfork/service-library-go/internal/book/entity"
	loanentity "github.com/ovaphlow/pitchfork/service-library-go/internal/loan/entity"
	userentity "github.com/ovaphlow/pitchfork/service-library-go/internal/user/entity"
)

type bookRow struct {
	mu      sync.Mutex
	book    bookentity.Book
	loans   map[int64]*loanentity.Loan
	deleted bool
}

// Store is the shared state behind the Books, Loans, Users and Sessions views.
type Store struct {
	mu          sync.RWMutex
	books       map[int64]*bookRow
	isbn        map[string]int64
	loanBook    map[int64]int64
	users       map[int64]*userentity.User
	usernames   map[string]int64
	sessions    map[string]authrepo.Session
	nextSession int64
	now         func() time.Time
}

func New() *Store {
	return &Store{
		books:     map[int64]*bookRow{},
		isbn:      map[string]int64{},
		loanBook:  map[int64]int64{},
		users:     map[int64]*userentity.User{},
		usernames: map[string]int64{},
		sessions:  map[string]authrepo.Session{},
		now:       time.Now,
	}
}

func (s *Store) Books() *Books       { return &Books{s: s} }
func (s *Store) Loans() *Loans       { return &Loans{s: s} }
func (s *Store) Users() *Users       { return &Users{s: s} }
func (s *Store) Sessions() *Sessions { return &Sessions{s: s} }

// Ping always succeeds; it lets the store stand in for a database in health checks.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *Store) row(id int64) *bookRow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.books[id]
}

// rows returns every book row ordered by id.
func (s *Store) rows() []*bookRow {
	s.mu.RLock()
	ids := make([]int64, 0, len(s.books))
	for id := range s.books {
		ids = append(ids, id)
	}
	out := make([]*bookRow, 0, len(ids))
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		out = append(out, s.books[id])
	}
	s.mu.RUnlock()
	return out
}

func (s *Store) userExists(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[id]
	return ok
}

// release gives one copy back without exceeding total.
func release(row *bookRow, at time.Time) {
	row.book.AvailableQuantity = min(row.book.TotalQuantity, row.book.AvailableQuantity+1)
	row.book.UpdatedAt = at
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
