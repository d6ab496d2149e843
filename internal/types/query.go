package types

// SortOrder is the direction of the price sort.
type SortOrder string

const (
	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)

// SortFieldPrice is the only sortable field.
const SortFieldPrice = "price"

// SearchQuery is a bounded search request against the listing store.
type SearchQuery struct {
	Query    string    `json:"query"`
	MinPrice *int64    `json:"min_price,omitempty"`
	MaxPrice *int64    `json:"max_price,omitempty"`
	Sort     string    `json:"sort,omitempty"`
	Order    SortOrder `json:"order,omitempty"`

	// Page and Size are nil when the caller did not set them; they then
	// default to 1 and the configured page size.
	Page        *int    `json:"page,omitempty"`
	Size        *int    `json:"size,omitempty"`
	SearchAfter []int64 `json:"search_after,omitempty"`
}

// PageOrDefault returns the requested page, or 1 when unset.
func (q *SearchQuery) PageOrDefault() int {
	if q.Page == nil {
		return 1
	}
	return *q.Page
}

// SearchResult is the response envelope of a search.
type SearchResult struct {
	Total    int64     `json:"total"`
	Page     *int      `json:"page"`
	Size     int       `json:"size"`
	LastSort []int64   `json:"last_sort"`
	Results  []Listing `json:"results"`
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }
