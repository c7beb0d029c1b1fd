package pagination

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/tasking/internal/apperr"
)

func identity(s string) string { return s }

func items(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("item-%d", i)
	}
	return out
}

func TestPaginateVisitsEveryItemOnce(t *testing.T) {
	for _, size := range []int{0, 3} {
		for _, limit := range []int{1, 2, 4} {
			t.Run(fmt.Sprintf("size=%d/limit=%d", size, limit), func(t *testing.T) {
				all := items(size)
				var seen []string
				next := ""
				for i := 0; ; i++ {
					require.Less(t, i, 10, "pagination did not terminate")
					page, token, err := Paginate(all, identity, next, limit)
					require.NoError(t, err)
					assert.LessOrEqual(t, len(page), limit)
					seen = append(seen, page...)
					if token == "" {
						break
					}
					next = token
				}
				if diff := cmp.Diff(all, seen, cmpopts.EquateEmpty()); diff != "" {
					t.Errorf("Paginate() visited items mismatch (-want +got):\n%s", diff)
				}
			})
		}
	}
}

func TestPaginateIsIdempotent(t *testing.T) {
	all := items(5)
	first, tok1, err := Paginate(all, identity, "", 2)
	require.NoError(t, err)

	second, tok2, err := Paginate(all, identity, "", 2)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, tok1, tok2)

	a, atok, err := Paginate(all, identity, tok1, 2)
	require.NoError(t, err)
	b, btok, err := Paginate(all, identity, tok1, 2)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, atok, btok)
	assert.Equal(t, []string{"item-2", "item-3"}, a)
}

func TestPaginateLastPageHasNoToken(t *testing.T) {
	page, token, err := Paginate(items(4), identity, "", 4)
	require.NoError(t, err)
	assert.Len(t, page, 4)
	assert.Empty(t, token)
}

func TestPaginateZeroLimit(t *testing.T) {
	page, token, err := Paginate(items(3), identity, "", 0)
	require.NoError(t, err)
	assert.NotNil(t, page)
	assert.Empty(t, page)
	assert.Empty(t, token)
}

func TestPaginateClampsLimit(t *testing.T) {
	page, token, err := Paginate(items(150), identity, "", 1000)
	require.NoError(t, err)
	assert.Len(t, page, MaxLimit)
	assert.NotEmpty(t, token)
}

func TestPaginateUnknownToken(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"never issued", EncodeToken("item-99")},
		{"not base64", "%%%"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Paginate(items(3), identity, tt.token, 2)
			assert.True(t, errors.Is(err, apperr.ErrNotFound), "Paginate() error = %v, want not found", err)
		})
	}
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 0, ClampLimit(-3))
	assert.Equal(t, 7, ClampLimit(7))
	assert.Equal(t, MaxLimit, ClampLimit(MaxLimit+1))
}
