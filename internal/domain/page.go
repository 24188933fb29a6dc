package domain

const (
	DefaultPerPage = 50
	MaxPerPage     = 1000
)

// Page selects a window of a list.
type Page struct {
	Page int
	Per  int
}

// Normalize applies defaults and clamps Per.
func (p Page) Normalize() Page {
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.Per <= 0 {
		p.Per = DefaultPerPage
	}
	if p.Per > MaxPerPage {
		p.Per = MaxPerPage
	}
	return p
}

// Offset is the number of rows skipped before the page.
func (p Page) Offset() int {
	return (p.Page - 1) * p.Per
}

// Pagination summarises a list response.
type Pagination struct {
	Page       int `json:"page"`
	Per        int `json:"per"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// NewPagination describes page p of total rows.
func NewPagination(p Page, total int) Pagination {
	pages := 0
	if p.Per > 0 {
		pages = (total + p.Per - 1) / p.Per
	}
	return Pagination{Page: p.Page, Per: p.Per, Total: total, TotalPages: pages}
}
