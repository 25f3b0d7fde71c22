// Package pagination provides 1-indexed page/pageSize pagination helpers.
package pagination

import "errors"

// ErrInvalidPage is returned when page or pageSize is below 1.
var ErrInvalidPage = errors.New("pagination: page and pageSize must be at least 1")

// MaxPageSize caps a single page to keep result sets bounded.
const MaxPageSize = 200

// DefaultPageSize is used when the caller does not specify a size.
const DefaultPageSize = 20

// Params holds validated pagination parameters.
type Params struct {
	Page     int
	PageSize int
}

// New validates page and pageSize. Page is 1-indexed and both values
// must be at least 1; callers that want a default size pick one before
// calling. Anything above MaxPageSize is clamped.
func New(page, pageSize int) (Params, error) {
	if page < 1 || pageSize < 1 {
		return Params{}, ErrInvalidPage
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return Params{Page: page, PageSize: pageSize}, nil
}

// Offset returns the number of items to skip for this page.
func (p Params) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Pages returns the total page count for a filtered total, ceil(total/size).
// An empty result set still has one (empty) page of output but reports 0
// pages so the dashboard can render "0 of 0".
func (p Params) Pages(total int) int {
	if total <= 0 {
		return 0
	}
	return (total + p.PageSize - 1) / p.PageSize
}

// Slice applies the page window to an already-filtered in-memory slice.
// Used by the memory stores; the Postgres stores push LIMIT/OFFSET into SQL.
func Slice[T any](items []T, p Params) []T {
	start := p.Offset()
	if start >= len(items) {
		return nil
	}
	end := start + p.PageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
