// Package search translates bounded search requests into store queries.
package search

import (
	"fmt"
	"strings"

	"github.com/IshaanNene/ListingScout/internal/storage"
	"github.com/IshaanNene/ListingScout/internal/types"
)

// Limits bound page sizes.
type Limits struct {
	DefaultSize int
	MaxSize     int
}

// DefaultLimits are the limits used when none are configured.
var DefaultLimits = Limits{DefaultSize: 10, MaxSize: 100}

// Planner validates search queries and builds store queries.
type Planner struct {
	limits Limits
}

// NewPlanner creates a Planner. Zero limits fall back to DefaultLimits.
func NewPlanner(limits Limits) *Planner {
	if limits.MaxSize <= 0 {
		limits.MaxSize = DefaultLimits.MaxSize
	}
	if limits.DefaultSize <= 0 || limits.DefaultSize > limits.MaxSize {
		limits.DefaultSize = min(DefaultLimits.DefaultSize, limits.MaxSize)
	}
	return &Planner{limits: limits}
}

// Plan validates q and returns the store query. Offset and cursor
// pagination are exclusive: a cursor may only be combined with page 1. An
// empty cursor selects offset pagination.
func (p *Planner) Plan(q *types.SearchQuery) (*storage.Query, error) {
	if q == nil {
		return nil, &types.ValidationError{Reason: "query is required"}
	}
	category := strings.TrimSpace(q.Query)
	if category == "" {
		return nil, &types.ValidationError{Field: "query", Reason: "must not be empty"}
	}

	sortField := strings.TrimSpace(q.Sort)
	if sortField != "" && sortField != types.SortFieldPrice {
		return nil, &types.ValidationError{Field: "sort", Reason: fmt.Sprintf("unsupported sort field %q", q.Sort)}
	}

	order := types.OrderDesc
	switch types.SortOrder(strings.ToLower(string(q.Order))) {
	case "":
	case types.OrderAsc:
		order = types.OrderAsc
	case types.OrderDesc:
	default:
		return nil, &types.ValidationError{Field: "order", Reason: fmt.Sprintf("must be asc or desc, got %q", q.Order)}
	}

	if q.MinPrice != nil && *q.MinPrice < 0 {
		return nil, &types.ValidationError{Field: "min_price", Reason: "must be >= 0"}
	}
	if q.MaxPrice != nil && *q.MaxPrice < 0 {
		return nil, &types.ValidationError{Field: "max_price", Reason: "must be >= 0"}
	}
	if q.MinPrice != nil && q.MaxPrice != nil && *q.MinPrice > *q.MaxPrice {
		return nil, &types.ValidationError{Field: "max_price", Reason: "must be >= min_price"}
	}

	size := p.limits.DefaultSize
	if q.Size != nil {
		size = *q.Size
	}
	if size < 1 || size > p.limits.MaxSize {
		return nil, &types.ValidationError{Field: "size", Reason: fmt.Sprintf("must be 1-%d, got %d", p.limits.MaxSize, size)}
	}

	page := q.PageOrDefault()
	if page < 1 {
		return nil, &types.ValidationError{Field: "page", Reason: fmt.Sprintf("must be >= 1, got %d", page)}
	}

	sq := &storage.Query{
		Category: category,
		MinPrice: q.MinPrice,
		MaxPrice: q.MaxPrice,
		Order:    order,
		Size:     size,
	}

	if len(q.SearchAfter) > 0 {
		if page != 1 {
			return nil, &types.ValidationError{Field: "search_after", Reason: "cannot be combined with page", Err: types.ErrInvalidPagination}
		}
		if len(q.SearchAfter) > 2 {
			return nil, &types.ValidationError{Field: "search_after", Reason: "must be [price] or [price, seq]", Err: types.ErrInvalidPagination}
		}
		sq.SearchAfter = append([]int64(nil), q.SearchAfter...)
		return sq, nil
	}

	sq.From = (page - 1) * size
	return sq, nil
}
