package loan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	bookentity "github.com/ovaphlow/pitchfork/service-library-go/internal/book/entity"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/loan/entity"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/policy"
	userentity "github.com/ovaphlow/pitchfork/service-library-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-library-go/pkg/utilities"
)

// Repository is the storage the ledger needs. Borrow and Return must apply
// their check and both writes as one unit per book and per loan respectively.
type Repository interface {
	Borrow(ctx context.Context, l *entity.Loan) error
	Return(ctx context.Context, id int64, at time.Time) (*entity.Loan, error)
	GetByID(ctx context.Context, id int64) (*entity.Loan, error)
	List(ctx context.Context, f entity.Filter) ([]*entity.Loan, int, error)
	Reassign(ctx context.Context, id, userID int64) (*entity.Loan, error)
	Delete(ctx context.Context, id int64) error
}

var (
	ErrUnavailable     = entity.ErrUnavailable
	ErrAlreadyReturned = entity.ErrAlreadyReturned
	ErrNotFound        = entity.ErrNotFound
	ErrBookNotFound    = bookentity.ErrNotFound
	ErrUserNotFound    = userentity.ErrNotFound
	ErrUnauthenticated = errors.New("authentication required")
	ErrInvalidInput    = errors.New("invalid input")
)

// Ledger mediates every borrow and return so that a book's available count
// equals its total minus its active loans.
type Ledger struct {
	repo   Repository
	logger *zap.SugaredLogger
	now    func() time.Time
	newID  func() int64
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithIDs replaces the snowflake id source.
func WithIDs(newID func() int64) Option {
	return func(l *Ledger) { l.newID = newID }
}

func NewLedger(r Repository, logger *zap.SugaredLogger, opts ...Option) *Ledger {
	l := &Ledger{repo: r, logger: logger, now: time.Now, newID: utilities.NewSnowflakeID}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Borrow lends one copy of bookID to the actor. On any failure no loan
// exists and the book is untouched.
func (s *Ledger) Borrow(ctx context.Context, actor policy.Actor, bookID int64) (*entity.Loan, error) {
	if !actor.Authenticated {
		return nil, ErrUnauthenticated
	}
	if bookID <= 0 {
		return nil, fmt.Errorf("%w: book is required", ErrInvalidInput)
	}
	l := &entity.Loan{
		ID:         s.newID(),
		UserID:     actor.UserID,
		BookID:     bookID,
		BorrowedAt: s.timestamp(),
	}
	if err := s.repo.Borrow(ctx, l); err != nil {
		if isPrecondition(err) {
			s.logger.Debugw("borrow rejected", "book_id", bookID, "user_id", actor.UserID, "err", err)
			return nil, err
		}
		s.logger.Errorw("borrow failed", "book_id", bookID, "user_id", actor.UserID, "err", err)
		return nil, fmt.Errorf("borrow: %w", err)
	}
	s.logger.Infow("book borrowed", "loan_id", l.ID, "book_id", bookID, "user_id", actor.UserID)
	return l, nil
}

// Return closes an active loan and gives its copy back. At most one
// return per loan succeeds.
func (s *Ledger) Return(ctx context.Context, loanID int64) (*entity.Loan, error) {
	l, err := s.repo.Return(ctx, loanID, s.timestamp())
	if err != nil {
		if isPrecondition(err) {
			s.logger.Debugw("return rejected", "loan_id", loanID, "err", err)
			return nil, err
		}
		s.logger.Errorw("return failed", "loan_id", loanID, "err", err)
		return nil, fmt.Errorf("return: %w", err)
	}
	s.logger.Infow("book returned", "loan_id", l.ID, "book_id", l.BookID, "user_id", l.UserID)
	return l, nil
}

// Get returns a loan visible to actor. Loans of other users look missing
// to non-admins.
func (s *Ledger) Get(ctx context.Context, actor policy.Actor, id int64) (*entity.Loan, error) {
	l, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin && !actor.Owns(l.UserID) {
		return nil, ErrNotFound
	}
	return l, nil
}

// List returns one page of loans matching f.
func (s *Ledger) List(ctx context.Context, f entity.Filter) ([]*entity.Loan, int, error) {
	return s.repo.List(ctx, f)
}

// Reassign moves a loan to another user.
func (s *Ledger) Reassign(ctx context.Context, id, userID int64) (*entity.Loan, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: user is required", ErrInvalidInput)
	}
	l, err := s.repo.Reassign(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	s.logger.Infow("loan reassigned", "loan_id", id, "user_id", userID)
	return l, nil
}

// Delete removes a loan; an active one gives its copy back.
func (s *Ledger) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Infow("loan deleted", "loan_id", id)
	return nil
}

// timestamp is truncated to what Postgres stores so responses match re-reads.
func (s *Ledger) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func isPrecondition(err error) bool {
	return errors.Is(err, ErrUnavailable) ||
		errors.Is(err, ErrAlreadyReturned) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrBookNotFound) ||
		errors.Is(err, ErrUserNotFound)
}
