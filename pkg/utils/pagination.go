package utils

import (
	"net/http"
	"strconv"
)

const (
	// DefaultPageSize is the number of items per page when not specified
	DefaultPageSize = 20
	// MaxPageSize caps page_size
	MaxPageSize = 100
	// MaxPage caps page so that the row offset stays far from overflowing.
	MaxPage = 1_000_000
)

// PageParams holds offset pagination parameters parsed from a request.
type PageParams struct {
	Page     int // 1-based page number
	PageSize int
	Offset   int // 0-based row offset for the query
	Limit    int
}

// PageMeta is the pagination block returned with every list response.
type PageMeta struct {
	Page         int   `json:"page"`
	PageSize     int   `json:"page_size"`
	TotalPages   int   `json:"total_pages"`
	TotalItems   int64 `json:"total_items"`
	HasPrevious  bool  `json:"has_previous"`
	HasNext      bool  `json:"has_next"`
	PreviousPage *int  `json:"previous_page,omitempty"`
	NextPage     *int  `json:"next_page,omitempty"`
}

// PaginatedResponse wraps a page of data with its metadata.
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Pagination PageMeta    `json:"pagination"`
}

// ParsePageParams reads "page" and "page_size" from the query string.
// Out-of-range values are clamped rather than rejected.
//
// Example:
//
//	params := utils.ParsePageParams(r)
//	pings, total, err := store.List(ctx, filter, params.Offset, params.Limit)
//	utils.RespondWithJSON(w, r, http.StatusOK, utils.NewPaginatedResponse(pings, params, total))
func ParsePageParams(r *http.Request) PageParams {
	page := ParseIntParam(r, "page", 1)
	pageSize := ParseIntParam(r, "page_size", DefaultPageSize)

	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	return PageParams{
		Page:     page,
		PageSize: pageSize,
		Offset:   (page - 1) * pageSize,
		Limit:    pageSize,
	}
}

// CalculateMeta derives navigation metadata from the total row count.
func (p PageParams) CalculateMeta(totalItems int64) PageMeta {
	totalPages := int((totalItems + int64(p.PageSize) - 1) / int64(p.PageSize))
	if totalPages < 1 {
		totalPages = 1
	}

	meta := PageMeta{
		Page:        p.Page,
		PageSize:    p.PageSize,
		TotalPages:  totalPages,
		TotalItems:  totalItems,
		HasPrevious: p.Page > 1,
		HasNext:     p.Page < totalPages,
	}
	if meta.HasPrevious {
		prev := p.Page - 1
		meta.PreviousPage = &prev
	}
	if meta.HasNext {
		next := p.Page + 1
		meta.NextPage = &next
	}
	return meta
}

// NewPaginatedResponse wraps data and computes its metadata.
func NewPaginatedResponse(data interface{}, params PageParams, totalItems int64) PaginatedResponse {
	return PaginatedResponse{
		Data:       data,
		Pagination: params.CalculateMeta(totalItems),
	}
}

// ParseIntParam parses an integer query parameter, falling back to
// defaultValue when it is absent or malformed.
func ParseIntParam(r *http.Request, key string, defaultValue int) int {
	valueStr := r.URL.Query().Get(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
