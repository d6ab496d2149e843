package pipeline

import (
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/IshaanNene/ListingScout/internal/types"
)

// Middleware processes a listing and returns the (possibly modified) listing.
// Return nil to drop the listing from the pipeline.
type Middleware interface {
	// Name returns the middleware's identifier.
	Name() string

	// Process transforms a listing. Return nil to drop it.
	Process(l *types.Listing) (*types.Listing, error)
}

// Pipeline chains middleware processors together.
type Pipeline struct {
	middlewares []Middleware
	logger      *slog.Logger

	mu      sync.Mutex
	dropped map[string]int64
	onDrop  func(stage string)
}

// New creates a new Pipeline.
func New(logger *slog.Logger) *Pipeline {
	return &Pipeline{
		logger:  logger.With("component", "pipeline"),
		dropped: make(map[string]int64),
	}
}

// Use adds a middleware to the pipeline chain.
func (p *Pipeline) Use(mw Middleware) {
	p.middlewares = append(p.middlewares, mw)
	p.logger.Debug("middleware added", "name", mw.Name(), "position", len(p.middlewares))
}

// OnDrop registers a hook called with the stage name of every dropped listing.
func (p *Pipeline) OnDrop(fn func(stage string)) {
	p.onDrop = fn
}

// Process runs the listing through all middleware in order.
func (p *Pipeline) Process(l *types.Listing) (*types.Listing, error) {
	current := l

	for _, mw := range p.middlewares {
		result, err := mw.Process(current)
		if err != nil {
			p.drop(mw.Name())
			return nil, &types.PipelineError{
				Stage: mw.Name(),
				Key:   current.Key(),
				Err:   err,
			}
		}
		if result == nil {
			p.drop(mw.Name())
			p.logger.Debug("listing dropped", "stage", mw.Name(), "title", l.Title, "image", l.ImageSrc)
			return nil, nil
		}
		current = result
	}

	return current, nil
}

// Dropped returns per-stage drop counts.
func (p *Pipeline) Dropped() map[string]int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]int64, len(p.dropped))
	for k, v := range p.dropped {
		out[k] = v
	}
	return out
}

// Len returns the number of middleware in the chain.
func (p *Pipeline) Len() int {
	return len(p.middlewares)
}

func (p *Pipeline) drop(stage string) {
	p.mu.Lock()
	p.dropped[stage]++
	p.mu.Unlock()
	if p.onDrop != nil {
		p.onDrop(stage)
	}
}

// NewNormalizer builds the standard record normalizer for one crawl:
// trim, status filter, price, date, link resolution and image dedup.
// now is the crawl's reference time for relative dates.
func NewNormalizer(now time.Time, base *url.URL, logger *slog.Logger) *Pipeline {
	p := New(logger)
	p.Use(&TrimMiddleware{})
	p.Use(&StatusFilterMiddleware{})
	p.Use(NewPriceNormalizeMiddleware(logger))
	p.Use(NewDateNormalizeMiddleware(now, logger))
	p.Use(NewLinkResolveMiddleware(base))
	p.Use(NewDedupMiddleware(ImageKey))
	return p
}

// --- Built-in Middleware ---

// TrimMiddleware trims whitespace from text fields.
type TrimMiddleware struct{}

func (m *TrimMiddleware) Name() string { return "trim" }

func (m *TrimMiddleware) Process(l *types.Listing) (*types.Listing, error) {
	l.Title = strings.Join(strings.Fields(l.Title), " ")
	l.Location = strings.TrimSpace(l.Location)
	l.ImageSrc = strings.TrimSpace(l.ImageSrc)
	l.Category = strings.TrimSpace(l.Category)
	return l, nil
}

// StatusFilterMiddleware drops sold-out listings. It runs before any
// range filter so sold-out items never become indexing candidates.
type StatusFilterMiddleware struct{}

func (m *StatusFilterMiddleware) Name() string { return "status_filter" }

func (m *StatusFilterMiddleware) Process(l *types.Listing) (*types.Listing, error) {
	if l.Status == types.StatusSoldOut {
		return nil, nil
	}
	return l, nil
}

// DedupMiddleware drops listings whose key was already seen; first seen wins.
// Listings with an empty key pass through.
type DedupMiddleware struct {
	mu   sync.Mutex
	seen map[string]struct{}
	key  func(*types.Listing) string
}

// ImageKey keys listings by image URL.
func ImageKey(l *types.Listing) string {
	if !l.HasImage() {
		return ""
	}
	return l.ImageSrc
}

func NewDedupMiddleware(key func(*types.Listing) string) *DedupMiddleware {
	return &DedupMiddleware{
		seen: make(map[string]struct{}),
		key:  key,
	}
}

func (m *DedupMiddleware) Name() string { return "dedup" }

func (m *DedupMiddleware) Process(l *types.Listing) (*types.Listing, error) {
	val := m.key(l)
	if val == "" {
		return l, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.seen[val]; exists {
		return nil, nil
	}
	m.seen[val] = struct{}{}
	return l, nil
}
