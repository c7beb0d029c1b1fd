// Package pagination implements forward-only cursor paging.
//
// A page request is (next, limit). next is an opaque token previously handed
// out by the server; it encodes the key of the first item of the page it
// resumes at. Tokens that do not resolve to an item are reported as not found
// rather than silently restarting from the beginning.
package pagination

import (
	"encoding/base64"
	"slices"

	"github.com/sudo-init-do/tasking/internal/apperr"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// ClampLimit bounds limit to [0, MaxLimit].
func ClampLimit(limit int) int {
	switch {
	case limit < 0:
		return 0
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

// EncodeToken turns an ordering key into an opaque token.
func EncodeToken(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

// DecodeToken reverses EncodeToken. Garbage tokens are not found.
func DecodeToken(token string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(b) == 0 {
		return "", apperr.NotFound("pagination token", token)
	}
	return string(b), nil
}

// Paginate pages through items, which must already be in their stable order.
// key returns the unique ordering key of an item.
func Paginate[T any](items []T, key func(T) string, next string, limit int) ([]T, string, error) {
	start := 0
	if next != "" {
		k, err := DecodeToken(next)
		if err != nil {
			return nil, "", err
		}
		start = slices.IndexFunc(items, func(it T) bool { return key(it) == k })
		if start < 0 {
			return nil, "", apperr.NotFound("pagination token", next)
		}
	}

	limit = ClampLimit(limit)
	if limit == 0 {
		return []T{}, "", nil
	}

	end := min(start+limit, len(items))
	page := slices.Clone(items[start:end])
	if page == nil {
		page = []T{}
	}
	if end < len(items) {
		return page, EncodeToken(key(items[end])), nil
	}
	return page, "", nil
}
