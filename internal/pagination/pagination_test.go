package pagination

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Valid(t *testing.T) {
	p, err := New(2, 25)
	require.NoError(t, err)
	assert.Equal(t, 25, p.Offset())
	assert.Equal(t, 4, p.Pages(100))
}

func TestNew_Clamp(t *testing.T) {
	p, err := New(1, 10000)
	require.NoError(t, err)
	assert.Equal(t, MaxPageSize, p.PageSize)
}

func TestNew_Invalid(t *testing.T) {
	for _, tc := range []struct{ page, size int }{
		{0, 20},
		{-1, 20},
		{1, 0},
		{1, -5},
	} {
		_, err := New(tc.page, tc.size)
		assert.True(t, errors.Is(err, ErrInvalidPage), "page=%d size=%d", tc.page, tc.size)
	}
}

func TestPages_Ceil(t *testing.T) {
	p, _ := New(1, 20)
	assert.Equal(t, 0, p.Pages(0))
	assert.Equal(t, 1, p.Pages(1))
	assert.Equal(t, 1, p.Pages(20))
	assert.Equal(t, 2, p.Pages(21))
	assert.Equal(t, 5, p.Pages(100))
}

func TestSlice(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7}

	p, _ := New(1, 3)
	assert.Equal(t, []int{1, 2, 3}, Slice(items, p))

	p, _ = New(3, 3)
	assert.Equal(t, []int{7}, Slice(items, p))

	p, _ = New(4, 3)
	assert.Nil(t, Slice(items, p))
}
