package types

import "strings"

// SearchOption is one crawl request unit.
type SearchOption struct {
	Category  string `json:"category"   yaml:"category"   mapstructure:"category"`
	MinPrice  int64  `json:"min_price"  yaml:"min_price"  mapstructure:"min_price"`
	MaxPrice  int64  `json:"max_price"  yaml:"max_price"  mapstructure:"max_price"`
	PageLimit int    `json:"page_limit" yaml:"page_limit" mapstructure:"page_limit"`
}

// Validate checks the option's invariants.
func (o SearchOption) Validate() error {
	if strings.TrimSpace(o.Category) == "" {
		return &ValidationError{Field: "category", Reason: "must not be empty"}
	}
	if o.MinPrice < 0 {
		return &ValidationError{Field: "min_price", Reason: "must be >= 0"}
	}
	if o.MaxPrice < o.MinPrice {
		return &ValidationError{Field: "max_price", Reason: "must be >= min_price"}
	}
	if o.PageLimit < 1 {
		return &ValidationError{Field: "page_limit", Reason: "must be >= 1"}
	}
	return nil
}

// Contains reports whether a price lies in the option's inclusive range.
func (o SearchOption) Contains(price int64) bool {
	return price >= o.MinPrice && price <= o.MaxPrice
}
