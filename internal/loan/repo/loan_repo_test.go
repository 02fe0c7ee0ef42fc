package repo

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bookentity "github.com/ovaphlow/pitchfork/service-library-go/internal/book/entity"
	bookrepo "github.com/ovaphlow/pitchfork/service-library-go/internal/book/repo"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/loan/entity"
	userentity "github.com/ovaphlow/pitchfork/service-library-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-library-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-library-go/pkg/database/dbtest"
	"github.com/ovaphlow/pitchfork/service-library-go/pkg/utilities"
)

type fixture struct {
	db    *sqlx.DB
	loans *LoanRepo
	books *bookrepo.BookRepo
	users *userrepo.UserRepo
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t, "test_loan_repo")
	f := &fixture{
		db:    db,
		loans: NewLoanRepo(db),
		books: bookrepo.NewBookRepo(db),
		users: userrepo.NewUserRepo(db),
	}
	ctx := context.Background()
	require.NoError(t, f.users.EnsureTable(ctx))
	require.NoError(t, f.books.EnsureTable(ctx))
	require.NoError(t, f.loans.EnsureTable(ctx))
	return f
}

func (f *fixture) user(t *testing.T, name string) int64 {
	t.Helper()
	u := &userentity.User{ID: utilities.NewSnowflakeID(), Username: name, PasswordHash: "x"}
	require.NoError(t, f.users.Create(context.Background(), u))
	return u.ID
}

func (f *fixture) book(t *testing.T, isbn string, total int) int64 {
	t.Helper()
	b := &bookentity.Book{
		ID:                utilities.NewSnowflakeID(),
		Title:             "Book " + isbn,
		Author:            "Author",
		ISBN:              isbn,
		PageCount:         100,
		TotalQuantity:     total,
		AvailableQuantity: total,
	}
	require.NoError(t, f.books.Create(context.Background(), b))
	return b.ID
}

func (f *fixture) available(t *testing.T, id int64) int {
	t.Helper()
	b, err := f.books.GetByID(context.Background(), id)
	require.NoError(t, err)
	return b.AvailableQuantity
}

func (f *fixture) borrow(t *testing.T, userID, bookID int64) *entity.Loan {
	t.Helper()
	l := &entity.Loan{ID: utilities.NewSnowflakeID(), UserID: userID, BookID: bookID, BorrowedAt: time.Now().UTC()}
	require.NoError(t, f.loans.Borrow(context.Background(), l))
	return l
}

func TestBorrowAndReturn(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	uid := f.user(t, "alice")
	bid := f.book(t, "1000000000001", 2)

	l := f.borrow(t, uid, bid)
	assert.Equal(t, 1, f.available(t, bid))

	got, err := f.loans.GetByID(ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, got.Active())
	assert.Nil(t, got.ReturnedAt)

	at := time.Now().UTC().Truncate(time.Microsecond)
	returned, err := f.loans.Return(ctx, l.ID, at)
	require.NoError(t, err)
	assert.True(t, returned.IsReturned)
	require.NotNil(t, returned.ReturnedAt)
	assert.True(t, at.Equal(*returned.ReturnedAt))
	assert.Equal(t, 2, f.available(t, bid))

	_, err = f.loans.Return(ctx, l.ID, at)
	assert.ErrorIs(t, err, entity.ErrAlreadyReturned)
	assert.Equal(t, 2, f.available(t, bid))

	_, err = f.loans.Return(ctx, 42, at)
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestBorrowRejections(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	uid := f.user(t, "bob")
	bid := f.book(t, "1000000000002", 1)
	f.borrow(t, uid, bid)

	err := f.loans.Borrow(ctx, &entity.Loan{ID: utilities.NewSnowflakeID(), UserID: uid, BookID: bid, BorrowedAt: time.Now()})
	assert.ErrorIs(t, err, entity.ErrUnavailable)

	err = f.loans.Borrow(ctx, &entity.Loan{ID: utilities.NewSnowflakeID(), UserID: uid, BookID: 7, BorrowedAt: time.Now()})
	assert.ErrorIs(t, err, bookentity.ErrNotFound)

	other := f.book(t, "1000000000003", 1)
	err = f.loans.Borrow(ctx, &entity.Loan{ID: utilities.NewSnowflakeID(), UserID: 9, BookID: other, BorrowedAt: time.Now()})
	assert.ErrorIs(t, err, userentity.ErrNotFound)
	assert.Equal(t, 1, f.available(t, other), "failed insert must roll the copy back")
}

func TestConcurrentBorrowOfLastCopy(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	uid := f.user(t, "carol")
	bid := f.book(t, "1000000000004", 1)

	const n = 20
	var ok, unavailable atomic.Int32
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := f.loans.Borrow(ctx, &entity.Loan{ID: utilities.NewSnowflakeID(), UserID: uid, BookID: bid, BorrowedAt: time.Now()})
			switch {
			case err == nil:
				ok.Add(1)
			case assert.ErrorIs(t, err, entity.ErrUnavailable):
				unavailable.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, ok.Load())
	assert.EqualValues(t, n-1, unavailable.Load())
	assert.Equal(t, 0, f.available(t, bid))

	mm, err := f.books.InventoryMismatches(ctx)
	require.NoError(t, err)
	assert.Empty(t, mm)
}

func TestConcurrentReturn(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	uid := f.user(t, "dave")
	bid := f.book(t, "1000000000005", 1)
	l := f.borrow(t, uid, bid)

	const n = 10
	var ok atomic.Int32
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.loans.Return(ctx, l.ID, time.Now()); err == nil {
				ok.Add(1)
			} else {
				assert.ErrorIs(t, err, entity.ErrAlreadyReturned)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, ok.Load())
	assert.Equal(t, 1, f.available(t, bid))
}

func TestReturnAfterShrink(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	uid := f.user(t, "erin")
	bid := f.book(t, "1000000000006", 2)
	a := f.borrow(t, uid, bid)
	f.borrow(t, uid, bid)

	one := 1
	b, err := f.books.Update(ctx, bid, bookentity.Patch{TotalQuantity: &one})
	require.NoError(t, err)
	assert.Equal(t, 0, b.AvailableQuantity)

	_, err = f.loans.Return(ctx, a.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, f.available(t, bid), "available never exceeds total")
}

func TestListFilters(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	b1 := f.book(t, "1000000000007", 3)
	b2 := f.book(t, "1000000000008", 3)
	f.borrow(t, alice, b1)
	f.borrow(t, alice, b2)
	f.borrow(t, bob, b1)

	all, total, err := f.loans.List(ctx, entity.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, all, 3)

	mine, total, err := f.loans.List(ctx, entity.Filter{UserID: &alice})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	for _, l := range mine {
		assert.Equal(t, alice, l.UserID)
	}

	page, total, err := f.loans.List(ctx, entity.Filter{BookID: &b1, Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, page, 1)
	assert.Equal(t, b1, page[0].BookID)
}

func TestReassignAndDelete(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	bid := f.book(t, "1000000000009", 2)
	l := f.borrow(t, alice, bid)

	moved, err := f.loans.Reassign(ctx, l.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, bob, moved.UserID)
	assert.Equal(t, 1, f.available(t, bid))

	_, err = f.loans.Reassign(ctx, l.ID, 12345)
	assert.ErrorIs(t, err, userentity.ErrNotFound)
	_, err = f.loans.Reassign(ctx, 1, bob)
	assert.ErrorIs(t, err, entity.ErrNotFound)

	require.NoError(t, f.loans.Delete(ctx, l.ID))
	assert.Equal(t, 2, f.available(t, bid), "deleting an active loan gives the copy back")
	assert.ErrorIs(t, f.loans.Delete(ctx, l.ID), entity.ErrNotFound)

	r := f.borrow(t, alice, bid)
	_, err = f.loans.Return(ctx, r.ID, time.Now())
	require.NoError(t, err)
	require.NoError(t, f.loans.Delete(ctx, r.ID))
	assert.Equal(t, 2, f.available(t, bid))
}

func TestUserDeleteReleasesCopies(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bid := f.book(t, "1000000000010", 3)
	f.borrow(t, alice, bid)
	f.borrow(t, alice, bid)
	assert.Equal(t, 1, f.available(t, bid))

	require.NoError(t, f.users.Delete(ctx, alice))
	assert.Equal(t, 3, f.available(t, bid))

	_, total, err := f.loans.List(ctx, entity.Filter{UserID: &alice})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.ErrorIs(t, f.users.Delete(ctx, alice), userentity.ErrNotFound)
}

func TestBookDeleteCascades(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	uid := f.user(t, "frank")
	bid := f.book(t, "1000000000011", 1)
	l := f.borrow(t, uid, bid)

	require.NoError(t, f.books.Delete(ctx, bid))
	_, err := f.loans.GetByID(ctx, l.ID)
	assert.ErrorIs(t, err, entity.ErrNotFound)
}
