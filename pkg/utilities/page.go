package utilities

import (
	"errors"
	"net/http"
	"strconv"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// ErrBadPage is returned for non-numeric or negative limit/offset values.
var ErrBadPage = errors.New("limit and offset must be non-negative integers")

// Page is the list response envelope.
type Page[T any] struct {
	Count   int `json:"count"`
	Results []T `json:"results"`
}

// ParsePage reads limit and offset from the query string. A missing limit
// means DefaultLimit; larger values are capped at MaxLimit.
func ParsePage(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	limit = DefaultLimit
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			return 0, 0, ErrBadPage
		}
	}
	if limit == 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, ErrBadPage
		}
	}
	return limit, offset, nil
}

// PathID parses the {id} path value.
func PathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
