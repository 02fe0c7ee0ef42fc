package utilities

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePage(t *testing.T) {
	cases := []struct {
		query         string
		limit, offset int
		wantErr       bool
	}{
		{"", DefaultLimit, 0, false},
		{"?limit=10&offset=20", 10, 20, false},
		{"?limit=0", DefaultLimit, 0, false},
		{"?limit=1000", MaxLimit, 0, false},
		{"?limit=-1", 0, 0, true},
		{"?offset=abc", 0, 0, true},
	}
	for _, c := range cases {
		r := httptest.NewRequest("GET", "/books"+c.query, nil)
		limit, offset, err := ParsePage(r)
		if c.wantErr {
			assert.ErrorIs(t, err, ErrBadPage, c.query)
			continue
		}
		require.NoError(t, err, c.query)
		assert.Equal(t, c.limit, limit, c.query)
		assert.Equal(t, c.offset, offset, c.query)
	}
}

func TestDecodeJSON_EmptyBody(t *testing.T) {
	r := httptest.NewRequest("POST", "/loans", nil)
	var dst map[string]any
	assert.ErrorIs(t, DecodeJSON(r, &dst), ErrEmptyBody)
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, 400, "Book is not available")
	assert.Equal(t, 400, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"Book is not available"}`, rec.Body.String())
}
