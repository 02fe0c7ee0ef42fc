package book

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-library-go/internal/book/entity"
	"github.com/ovaphlow/pitchfork/service-library-go/pkg/utilities"
)

// Repository is the inventory store.
type Repository interface {
	Create(ctx context.Context, b *entity.Book) error
	GetByID(ctx context.Context, id int64) (*entity.Book, error)
	List(ctx context.Context, f entity.Filter) ([]*entity.Book, int, error)
	Update(ctx context.Context, id int64, p entity.Patch) (*entity.Book, error)
	Delete(ctx context.Context, id int64) error
}

const (
	maxTitleLen  = 200
	maxAuthorLen = 200
	maxISBNLen   = 13

	// defaultQuantity applies when a create request omits total_quantity.
	defaultQuantity = 1
)

var (
	ErrNotFound      = entity.ErrNotFound
	ErrDuplicateISBN = entity.ErrDuplicateISBN
	ErrInvalidInput  = errors.New("invalid input")
)

// Service encapsulates catalogue rules and depends on a repo.
type Service struct {
	repo   Repository
	logger *zap.SugaredLogger
	newID  func() int64
}

func NewService(r Repository, logger *zap.SugaredLogger) *Service {
	return &Service{repo: r, logger: logger, newID: utilities.NewSnowflakeID}
}

// CreateInput carries a new book. Nil quantities take defaults:
// total 1, available equal to total.
type CreateInput struct {
	Title             string
	Author            string
	ISBN              string
	PageCount         int
	TotalQuantity     *int
	AvailableQuantity *int
}

// Create validates and stores a new book.
func (s *Service) Create(ctx context.Context, in CreateInput) (*entity.Book, error) {
	total := defaultQuantity
	if in.TotalQuantity != nil {
		total = *in.TotalQuantity
	}
	available := total
	if in.AvailableQuantity != nil {
		available = *in.AvailableQuantity
	}
	b := &entity.Book{
		ID:                s.newID(),
		Title:             strings.TrimSpace(in.Title),
		Author:            strings.TrimSpace(in.Author),
		ISBN:              strings.TrimSpace(in.ISBN),
		PageCount:         in.PageCount,
		TotalQuantity:     total,
		AvailableQuantity: available,
	}
	if err := validate(b); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, b); err != nil {
		return nil, err
	}
	s.logger.Infow("book created", "book_id", b.ID, "isbn", b.ISBN, "total", b.TotalQuantity)
	return b, nil
}

// Get returns a book by id.
func (s *Service) Get(ctx context.Context, id int64) (*entity.Book, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns one page of books matching f.
func (s *Service) List(ctx context.Context, f entity.Filter) ([]*entity.Book, int, error) {
	return s.repo.List(ctx, f)
}

// Update applies an admin edit. Lowering total_quantity below the number of
// copies on loan leaves available_quantity at 0; the shortfall is reported
// by the inventory audit, not corrected.
func (s *Service) Update(ctx context.Context, id int64, p entity.Patch) (*entity.Book, error) {
	if p.Title != nil {
		t := strings.TrimSpace(*p.Title)
		p.Title = &t
	}
	if p.Author != nil {
		a := strings.TrimSpace(*p.Author)
		p.Author = &a
	}
	if p.ISBN != nil {
		i := strings.TrimSpace(*p.ISBN)
		p.ISBN = &i
	}
	if err := validatePatch(p); err != nil {
		return nil, err
	}
	if p.Empty() {
		return s.repo.GetByID(ctx, id)
	}
	b, err := s.repo.Update(ctx, id, p)
	if err != nil {
		return nil, err
	}
	s.logger.Infow("book updated", "book_id", id, "total", b.TotalQuantity, "available", b.AvailableQuantity)
	return b, nil
}

// Delete removes a book and, with it, its loans.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Infow("book deleted", "book_id", id)
	return nil
}

func validate(b *entity.Book) error {
	switch {
	case b.Title == "" || len(b.Title) > maxTitleLen:
		return fmt.Errorf("%w: title must be 1-%d characters", ErrInvalidInput, maxTitleLen)
	case b.Author == "" || len(b.Author) > maxAuthorLen:
		return fmt.Errorf("%w: author must be 1-%d characters", ErrInvalidInput, maxAuthorLen)
	case b.ISBN == "" || len(b.ISBN) > maxISBNLen:
		return fmt.Errorf("%w: isbn must be 1-%d characters", ErrInvalidInput, maxISBNLen)
	case b.PageCount < 1:
		return fmt.Errorf("%w: page_count must be at least 1", ErrInvalidInput)
	case b.TotalQuantity < 0:
		return fmt.Errorf("%w: total_quantity must not be negative", ErrInvalidInput)
	case b.AvailableQuantity < 0 || b.AvailableQuantity > b.TotalQuantity:
		return fmt.Errorf("%w: available_quantity must be between 0 and total_quantity", ErrInvalidInput)
	}
	return nil
}

func validatePatch(p entity.Patch) error {
	switch {
	case p.Title != nil && (*p.Title == "" || len(*p.Title) > maxTitleLen):
		return fmt.Errorf("%w: title must be 1-%d characters", ErrInvalidInput, maxTitleLen)
	case p.Author != nil && (*p.Author == "" || len(*p.Author) > maxAuthorLen):
		return fmt.Errorf("%w: author must be 1-%d characters", ErrInvalidInput, maxAuthorLen)
	case p.ISBN != nil && (*p.ISBN == "" || len(*p.ISBN) > maxISBNLen):
		return fmt.Errorf("%w: isbn must be 1-%d characters", ErrInvalidInput, maxISBNLen)
	case p.PageCount != nil && *p.PageCount < 1:
		return fmt.Errorf("%w: page_count must be at least 1", ErrInvalidInput)
	case p.TotalQuantity != nil && *p.TotalQuantity < 0:
		return fmt.Errorf("%w: total_quantity must not be negative", ErrInvalidInput)
	}
	return nil
}
