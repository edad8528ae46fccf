package common

import "net/http"

// Pagination holds pagination metadata for list responses.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"perPage"`
	TotalItems int `json:"totalItems"`
}

// ParsePagination reads page and perPage (or limit) from the query string,
// capping perPage at maxPerPage. Non-positive values fall back to defaults.
func ParsePagination(r *http.Request, defaultPerPage, maxPerPage int) (page, perPage int) {
	q := r.URL.Query()
	page = max(QueryInt(q, 1, "page"), 1)
	perPage = QueryInt(q, defaultPerPage, "perPage", "limit")
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	if maxPerPage > 0 && perPage > maxPerPage {
		perPage = maxPerPage
	}
	return page, perPage
}
