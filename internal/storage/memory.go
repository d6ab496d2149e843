package storage

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/IshaanNene/ListingScout/internal/types"
)

// MemoryStore keeps listings in process memory. It follows the same query
// semantics as MongoStore and backs tests and dry runs.
type MemoryStore struct {
	mu     sync.RWMutex
	docs   map[string]types.Listing
	logger *slog.Logger
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(logger *slog.Logger) *MemoryStore {
	return &MemoryStore{
		docs:   make(map[string]types.Listing),
		logger: logger.With("component", "memory_store"),
	}
}

func (s *MemoryStore) Name() string { return "memory" }

func (s *MemoryStore) Exists(ctx context.Context, field string, values []string) ([]string, error) {
	if err := checkField(field); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	want := make(map[string]struct{}, len(values))
	for _, v := range values {
		want[v] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, d := range s.docs {
		val := d.Link
		if field == FieldImageSrc {
			val = d.ImageSrc
		}
		if _, ok := want[val]; ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) BulkDelete(ctx context.Context, ids []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range ids {
		if _, ok := s.docs[id]; ok {
			delete(s.docs, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) BulkInsert(ctx context.Context, docs []*types.Listing) (*InsertResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range docs {
		doc := *d
		doc.ID = uuid.NewString()
		doc.Raw = nil
		s.docs[doc.ID] = doc
	}
	s.logger.Debug("documents inserted", "count", len(docs), "total", len(s.docs))
	return &InsertResult{Inserted: len(docs)}, nil
}

func (s *MemoryStore) Search(ctx context.Context, q *Query) (*Hits, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	matched := make([]types.Listing, 0, len(s.docs))
	for _, d := range s.docs {
		if matchesFilter(&d, q) {
			matched = append(matched, d)
		}
	}
	s.mu.RUnlock()

	desc := q.Order == types.OrderDesc
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.Price != b.Price {
			return (a.Price < b.Price) != desc
		}
		return (a.Seq < b.Seq) != desc
	})

	hits := &Hits{Total: int64(len(matched))}

	start := 0
	if len(q.SearchAfter) > 0 {
		start = len(matched)
		for i := range matched {
			if isAfter(&matched[i], q.SearchAfter, desc) {
				start = i
				break
			}
		}
	} else if q.From > 0 {
		start = min(q.From, len(matched))
	}
	end := len(matched)
	if q.Size > 0 {
		end = min(start+q.Size, len(matched))
	}

	for _, l := range matched[start:end] {
		hits.Hits = append(hits.Hits, Hit{Listing: l, Sort: SortTuple(&l)})
	}
	return hits, nil
}

func (s *MemoryStore) EnsureIndex(ctx context.Context) error { return nil }

// DropIndex removes every document.
func (s *MemoryStore) DropIndex(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = make(map[string]types.Listing)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// Len returns the number of stored documents.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func matchesFilter(l *types.Listing, q *Query) bool {
	if !MatchesTerms(l.Category, QueryTerms(q.Category)) {
		return false
	}
	if q.MinPrice != nil && l.Price < *q.MinPrice {
		return false
	}
	if q.MaxPrice != nil && l.Price > *q.MaxPrice {
		return false
	}
	return true
}

// isAfter reports whether l sorts strictly after the cursor.
func isAfter(l *types.Listing, after []int64, desc bool) bool {
	price := after[0]
	if l.Price != price {
		return (l.Price > price) != desc
	}
	if len(after) == 1 {
		return false
	}
	return (l.Seq > after[1]) != desc && l.Seq != after[1]
}
