package query

import (
	"fmt"
	"net/url"
	"strconv"
)

// Pagination defaults.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page selects one page of results. Page numbers start at 1.
type Page struct {
	Number int `json:"page"`
	Size   int `json:"page_size"`
}

// Normalize clamps the page into the accepted range.
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

// Offset returns the number of rows skipped before this page.
func (p Page) Offset() int {
	p = p.Normalize()
	return (p.Number - 1) * p.Size
}

// ListParams are the retrieval parameters of a record listing.
type ListParams struct {
	CompanyID string
	Search    string
	Filters   ActiveFilters
	Sorting   Sorting
	Page      Page
}

// Values encodes the parameters as URL query values.
func (p ListParams) Values() url.Values {
	v := url.Values{}
	if p.CompanyID != "" {
		v.Set("company_id", p.CompanyID)
	}
	if p.Search != "" {
		v.Set("search", p.Search)
	}
	EncodeFilters(v, p.Filters)
	if len(p.Sorting) > 0 {
		v.Set("sort", p.Sorting.Encode())
	}
	if p.Page.Number > 0 {
		v.Set("page", strconv.Itoa(p.Page.Number))
	}
	if p.Page.Size > 0 {
		v.Set("page_size", strconv.Itoa(p.Page.Size))
	}
	return v
}

// ParseListParams decodes URL query values produced by Values.
func ParseListParams(v url.Values) (ListParams, error) {
	p := ListParams{
		CompanyID: v.Get("company_id"),
		Search:    v.Get("search"),
	}

	filters, err := DecodeFilters(v)
	if err != nil {
		return ListParams{}, err
	}
	p.Filters = filters

	if p.Sorting, err = ParseSorting(v.Get("sort")); err != nil {
		return ListParams{}, err
	}

	if s := v.Get("page"); s != "" {
		if p.Page.Number, err = strconv.Atoi(s); err != nil {
			return ListParams{}, fmt.Errorf("invalid page %q", s)
		}
	}
	if s := v.Get("page_size"); s != "" {
		if p.Page.Size, err = strconv.Atoi(s); err != nil {
			return ListParams{}, fmt.Errorf("invalid page_size %q", s)
		}
	}
	p.Page = p.Page.Normalize()
	return p, nil
}
