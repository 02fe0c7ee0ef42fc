package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkReturned(t *testing.T) {
	l := &Loan{ID: 1, UserID: 2, BookID: 3, BorrowedAt: time.Now()}
	require.True(t, l.Active())

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, l.MarkReturned(at))
	assert.False(t, l.Active())
	assert.True(t, l.IsReturned)
	require.NotNil(t, l.ReturnedAt)
	assert.Equal(t, at, *l.ReturnedAt)

	err := l.MarkReturned(at.Add(time.Hour))
	assert.ErrorIs(t, err, ErrAlreadyReturned)
	assert.Equal(t, at, *l.ReturnedAt, "second return must not move the timestamp")
}
