package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IshaanNene/ListingScout/internal/storage"
	"github.com/IshaanNene/ListingScout/internal/types"
)

// Search outcomes reported to the Observer.
const (
	OutcomeOK          = "ok"
	OutcomeInvalid     = "invalid"
	OutcomeUnavailable = "unavailable"
)

// Observer receives one event per search.
type Observer interface {
	SearchObserved(outcome string, d time.Duration)
}

// Service runs searches against the listing store.
type Service struct {
	store    storage.Store
	planner  *Planner
	timeout  time.Duration
	logger   *slog.Logger
	observer Observer
}

// NewService creates a search Service. timeout bounds each store round trip.
func NewService(store storage.Store, planner *Planner, timeout time.Duration, logger *slog.Logger) *Service {
	if planner == nil {
		planner = NewPlanner(DefaultLimits)
	}
	return &Service{
		store:   store,
		planner: planner,
		timeout: timeout,
		logger:  logger.With("component", "search"),
	}
}

// SetObserver registers the search observer.
func (s *Service) SetObserver(o Observer) { s.observer = o }

// Search validates q, runs it and builds the response envelope. Invalid
// queries fail with a ValidationError before the store is contacted; store
// failures return a StoreUnavailableError and no partial result.
func (s *Service) Search(ctx context.Context, q *types.SearchQuery) (*types.SearchResult, error) {
	start := time.Now()

	plan, err := s.planner.Plan(q)
	if err != nil {
		s.observe(OutcomeInvalid, start)
		return nil, err
	}

	hits, err := s.run(ctx, plan)
	if err != nil {
		s.observe(OutcomeUnavailable, start)
		s.logger.Error("search failed", "query", q.Query, "error", err)
		return nil, &types.StoreUnavailableError{Backend: s.store.Name(), Op: "search", Err: err}
	}

	result := &types.SearchResult{
		Total:   hits.Total,
		Size:    plan.Size,
		Results: make([]types.Listing, 0, len(hits.Hits)),
	}
	if plan.SearchAfter == nil {
		page := q.PageOrDefault()
		result.Page = &page
	}
	for _, h := range hits.Hits {
		result.Results = append(result.Results, h.Listing)
	}
	if n := len(hits.Hits); n > 0 {
		result.LastSort = hits.Hits[n-1].Sort
	}

	s.observe(OutcomeOK, start)
	s.logger.Debug("search served",
		"query", q.Query,
		"total", result.Total,
		"returned", len(result.Results),
		"duration", time.Since(start),
	)
	return result, nil
}

func (s *Service) run(ctx context.Context, plan *storage.Query) (*storage.Hits, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	hits, err := s.store.Search(ctx, plan)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", types.ErrStoreTimeout, err)
		}
		return nil, err
	}
	return hits, nil
}

func (s *Service) observe(outcome string, start time.Time) {
	if s.observer != nil {
		s.observer.SearchObserved(outcome, time.Since(start))
	}
}
