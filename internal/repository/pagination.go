package repository

import "math"

// Pagination holds offset-based paging parameters.
type Pagination struct {
	Limit  int
	Offset int
}

// PaginatedResult wraps one page of results.
type PaginatedResult[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
	HasMore    bool  `json:"has_more"`
	TotalPages int   `json:"total_pages"`
	Page       int   `json:"page"`
}

const (
	// DefaultLimit is the default number of items per page.
	DefaultLimit = 20
	// MaxLimit caps the items per page.
	MaxLimit = 200
	// MaxPage keeps the offset of the last page within 32 bits.
	MaxPage = math.MaxInt32 / MaxLimit
)

// PageToPagination converts a 1-based page number to offsets.
func PageToPagination(page, perPage int) Pagination {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if perPage <= 0 {
		perPage = DefaultLimit
	}
	if perPage > MaxLimit {
		perPage = MaxLimit
	}
	return Pagination{
		Limit:  perPage,
		Offset: (page - 1) * perPage,
	}
}

// NewPaginatedResult creates a paginated result. A nil items slice encodes as [].
func NewPaginatedResult[T any](items []T, total int64, p Pagination) PaginatedResult[T] {
	if items == nil {
		items = []T{}
	}
	totalPages := int(total) / p.Limit
	if int(total)%p.Limit > 0 {
		totalPages++
	}

	return PaginatedResult[T]{
		Items:      items,
		Total:      total,
		Limit:      p.Limit,
		Offset:     p.Offset,
		HasMore:    p.Offset+len(items) < int(total),
		TotalPages: totalPages,
		Page:       p.Offset/p.Limit + 1,
	}
}
