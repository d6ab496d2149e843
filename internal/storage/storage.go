package storage

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/IshaanNene/ListingScout/internal/config"
	"github.com/IshaanNene/ListingScout/internal/types"
)

// Fields that Exists can match on.
const (
	FieldLink     = "link"
	FieldImageSrc = "imageSrc"
)

// Store is the interface for all listing store backends.
type Store interface {
	// Exists returns the ids of documents whose field equals one of values.
	Exists(ctx context.Context, field string, values []string) ([]string, error)

	// BulkDelete removes documents by id and returns how many were removed.
	BulkDelete(ctx context.Context, ids []string) (int, error)

	// BulkInsert inserts docs. Individual document failures are reported in
	// the result; the error is reserved for failures of the whole call.
	BulkInsert(ctx context.Context, docs []*types.Listing) (*InsertResult, error)

	// Search runs a planned query.
	Search(ctx context.Context, q *Query) (*Hits, error)

	// Close releases resources.
	Close() error

	// Name returns the storage backend identifier.
	Name() string
}

// Provisioner is implemented by stores that need their index created
// before the first write.
type Provisioner interface {
	EnsureIndex(ctx context.Context) error
	DropIndex(ctx context.Context) error
}

// Query is a store-level search: equality on category, an inclusive price
// range, a price sort with seq as tie-breaker, and either an offset or a
// search-after cursor.
type Query struct {
	Category string
	MinPrice *int64
	MaxPrice *int64
	Order    types.SortOrder

	// SearchAfter is the [price, seq] (or [price]) tuple of the last hit of
	// the previous page. When set, From is ignored.
	SearchAfter []int64
	From        int
	Size        int
}

// Hit is one matched document with its sort tuple.
type Hit struct {
	Listing types.Listing
	Sort    []int64
}

// Hits is the result of a Search. Total counts all documents matching the
// filter, regardless of pagination.
type Hits struct {
	Total int64
	Hits  []Hit
}

// InsertResult reports a BulkInsert.
type InsertResult struct {
	Inserted int

	// Failed holds the indexes into docs that were not inserted.
	Failed []int
}

// SortTuple returns the sort values of a listing.
func SortTuple(l *types.Listing) []int64 {
	return []int64{l.Price, l.Seq}
}

// Open creates the store selected by config.
func Open(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "mongo":
		return NewMongoStore(ctx, cfg, logger)
	case "memory":
		return NewMemoryStore(logger), nil
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Type)
	}
}

func checkField(field string) error {
	if field != FieldLink && field != FieldImageSrc {
		return fmt.Errorf("field %q cannot be matched", field)
	}
	return nil
}

// QueryTerms splits a category query into lower-cased terms.
func QueryTerms(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// MatchesTerms reports whether every term is a word of category, ignoring
// case. No terms match every category.
func MatchesTerms(category string, terms []string) bool {
	words := QueryTerms(category)
	for _, t := range terms {
		if !slices.Contains(words, t) {
			return false
		}
	}
	return true
}
