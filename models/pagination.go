package models

import "github.com/nfce-scan/nfce_backend/config"

// Pagination carries a clamped page/limit pair for list queries.
type Pagination struct {
	Page  int
	Limit int
}

// NewPagination clamps page to 1+ and limit to 1..100, defaulting the limit
// to config.SearchLimit when out of range.
func NewPagination(page, limit int) Pagination {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = config.SearchLimit
	}
	return Pagination{Page: page, Limit: limit}
}

func (p Pagination) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Pages reports the number of pages for a total row count.
func (p Pagination) Pages(total int64) int {
	if total == 0 {
		return 0
	}
	pages := int(total) / p.Limit
	if int(total)%p.Limit != 0 {
		pages++
	}
	return pages
}
