package models

const (
	DefaultItemsPerPage = 10
	DefaultCurrentPage  = 1
)

// Pagination carries the paging window for list queries. Zero or negative
// inputs clamp to the defaults rather than failing.
type Pagination struct {
	ItemsPerPage int `json:"itemsPerPage"`
	CurrentPage  int `json:"currentPage"`
	TotalItems   int `json:"totalItems"`
	TotalPages   int `json:"totalPages"`
}

// NewPagination clamps itemsPerPage and currentPage to their defaults.
func NewPagination(itemsPerPage, currentPage int) Pagination {
	if itemsPerPage <= 0 {
		itemsPerPage = DefaultItemsPerPage
	}
	if currentPage <= 0 {
		currentPage = DefaultCurrentPage
	}
	return Pagination{ItemsPerPage: itemsPerPage, CurrentPage: currentPage}
}

// Offset returns the number of rows to skip for the current page.
func (p Pagination) Offset() int {
	offset := (p.CurrentPage - 1) * p.ItemsPerPage
	if offset < 0 {
		return 0
	}
	return offset
}

// WithTotal fills TotalItems and the derived TotalPages. An empty result set
// still counts as one page.
func (p Pagination) WithTotal(totalItems int) Pagination {
	p.TotalItems = totalItems
	if totalItems == 0 {
		p.TotalPages = 1
		return p
	}
	p.TotalPages = (totalItems + p.ItemsPerPage - 1) / p.ItemsPerPage
	return p
}
