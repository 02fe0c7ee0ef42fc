package book

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-library-go/internal/book/entity"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/memstore"
)

func intp(v int) *int       { return &v }
func strp(v string) *string { return &v }

func newService() *Service {
	return NewService(memstore.New().Books(), zap.NewNop().Sugar())
}

func validInput() CreateInput {
	return CreateInput{Title: "Dune", Author: "Frank Herbert", ISBN: "9780441013593", PageCount: 412}
}

func TestCreate_Defaults(t *testing.T) {
	s := newService()

	b, err := s.Create(context.Background(), validInput())
	require.NoError(t, err)
	assert.NotZero(t, b.ID)
	assert.Equal(t, 1, b.TotalQuantity)
	assert.Equal(t, 1, b.AvailableQuantity)
	assert.False(t, b.CreatedAt.IsZero())

	in := validInput()
	in.ISBN = "9780441013594"
	in.TotalQuantity = intp(5)
	b, err = s.Create(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 5, b.AvailableQuantity)
}

func TestCreate_Validation(t *testing.T) {
	cases := map[string]func(*CreateInput){
		"empty title":          func(in *CreateInput) { in.Title = "  " },
		"long title":           func(in *CreateInput) { in.Title = strings.Repeat("x", maxTitleLen+1) },
		"missing author":       func(in *CreateInput) { in.Author = "" },
		"long isbn":            func(in *CreateInput) { in.ISBN = "97804410135930" },
		"zero pages":           func(in *CreateInput) { in.PageCount = 0 },
		"negative total":       func(in *CreateInput) { in.TotalQuantity = intp(-1) },
		"available over total": func(in *CreateInput) { in.TotalQuantity, in.AvailableQuantity = intp(2), intp(3) },
		"negative available":   func(in *CreateInput) { in.AvailableQuantity = intp(-1) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := validInput()
			mutate(&in)
			_, err := newService().Create(context.Background(), in)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestCreate_DuplicateISBN(t *testing.T) {
	s := newService()
	_, err := s.Create(context.Background(), validInput())
	require.NoError(t, err)
	_, err = s.Create(context.Background(), validInput())
	assert.ErrorIs(t, err, ErrDuplicateISBN)
}

func TestUpdate(t *testing.T) {
	s := newService()
	ctx := context.Background()
	in := validInput()
	in.TotalQuantity, in.AvailableQuantity = intp(4), intp(2)
	b, err := s.Create(ctx, in)
	require.NoError(t, err)

	got, err := s.Update(ctx, b.ID, entity.Patch{Title: strp("  Dune Messiah "), TotalQuantity: intp(6)})
	require.NoError(t, err)
	assert.Equal(t, "Dune Messiah", got.Title)
	assert.Equal(t, 6, got.TotalQuantity)
	assert.Equal(t, 4, got.AvailableQuantity)

	got, err = s.Update(ctx, b.ID, entity.Patch{TotalQuantity: intp(1)})
	require.NoError(t, err)
	assert.Equal(t, 0, got.AvailableQuantity)

	got, err = s.Update(ctx, b.ID, entity.Patch{})
	require.NoError(t, err)
	assert.Equal(t, "Dune Messiah", got.Title)

	_, err = s.Update(ctx, b.ID, entity.Patch{PageCount: intp(0)})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = s.Update(ctx, 999, entity.Patch{Title: strp("x")})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListAndDelete(t *testing.T) {
	s := newService()
	ctx := context.Background()
	first, err := s.Create(ctx, validInput())
	require.NoError(t, err)
	in := validInput()
	in.ISBN, in.Author = "9780140449136", "Dostoevsky"
	_, err = s.Create(ctx, in)
	require.NoError(t, err)

	books, count, err := s.List(ctx, entity.Filter{Author: "Dostoevsky"})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, "9780140449136", books[0].ISBN)

	require.NoError(t, s.Delete(ctx, first.ID))
	_, err = s.Get(ctx, first.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, first.ID), ErrNotFound)
}
