package repo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authrepo "github.com/ovaphlow/pitchfork/service-library-go/internal/auth/repo"
	bookrepo "github.com/ovaphlow/pitchfork/service-library-go/internal/book/repo"
	loanrepo "github.com/ovaphlow/pitchfork/service-library-go/internal/loan/repo"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-library-go/pkg/database/dbtest"
	"github.com/ovaphlow/pitchfork/service-library-go/pkg/utilities"
)

func TestUserRepo(t *testing.T) {
	db := dbtest.Open(t, "test_user_repo")
	ctx := context.Background()
	r := NewUserRepo(db)
	require.NoError(t, r.EnsureTable(ctx))
	require.NoError(t, bookrepo.NewBookRepo(db).EnsureTable(ctx))
	require.NoError(t, loanrepo.NewLoanRepo(db).EnsureTable(ctx))
	sessions := authrepo.NewRefreshRepo(db)
	require.NoError(t, sessions.EnsureTable(ctx))

	email := "alice@example.com"
	alice := &entity.User{ID: utilities.NewSnowflakeID(), Username: "alice", Email: &email, PasswordHash: "h1"}
	require.NoError(t, r.Create(ctx, alice))
	bob := &entity.User{ID: utilities.NewSnowflakeID(), Username: "bob", PasswordHash: "h2", IsAdmin: true}
	require.NoError(t, r.Create(ctx, bob))

	dup := &entity.User{ID: utilities.NewSnowflakeID(), Username: "alice", PasswordHash: "h3"}
	assert.ErrorIs(t, r.Create(ctx, dup), entity.ErrDuplicateUsername)

	got, err := r.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)
	require.NotNil(t, got.Email)
	assert.Equal(t, email, *got.Email)

	_, err = r.GetByID(ctx, 1)
	assert.ErrorIs(t, err, entity.ErrNotFound)

	users, total, err := r.List(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, users, 1)

	admin := true
	updated, err := r.Update(ctx, alice.ID, entity.Patch{IsAdmin: &admin})
	require.NoError(t, err)
	assert.True(t, updated.IsAdmin)
	assert.Equal(t, "h1", updated.PasswordHash)

	taken := "bob"
	_, err = r.Update(ctx, alice.ID, entity.Patch{Username: &taken})
	assert.ErrorIs(t, err, entity.ErrDuplicateUsername)
	_, err = r.Update(ctx, 1, entity.Patch{IsAdmin: &admin})
	assert.ErrorIs(t, err, entity.ErrNotFound)

	_, err = sessions.Save(ctx, "hash", alice.ID, "", time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, r.Delete(ctx, alice.ID))
	_, err = sessions.Take(ctx, "hash")
	assert.ErrorIs(t, err, authrepo.ErrSessionNotFound, "sessions go with the user")
	assert.ErrorIs(t, r.Delete(ctx, alice.ID), entity.ErrNotFound)
}
