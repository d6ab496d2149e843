package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/IshaanNene/ListingScout/internal/config"
	"github.com/IshaanNene/ListingScout/internal/fetcher"
	"github.com/IshaanNene/ListingScout/internal/parser"
	"github.com/IshaanNene/ListingScout/internal/types"
)

// State is the crawl state of one search option.
type State int32

const (
	StateIdle   State = 0
	StatePaging State = 1
	StateDone   State = 2
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePaging:
		return "paging"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Stats tracks crawl statistics.
type Stats struct {
	Options          atomic.Int64
	PagesFetched     atomic.Int64
	PagesFailed      atomic.Int64
	CardsExtracted   atomic.Int64
	ExtractionErrors atomic.Int64
	RecordsDropped   atomic.Int64
	ListingsKept     atomic.Int64
	ActiveWorkers    atomic.Int32
	StartTime        time.Time
}

// Snapshot returns a copy of stats safe for reading.
func (s *Stats) Snapshot() types.CrawlStats {
	return types.CrawlStats{
		Options:          int(s.Options.Load()),
		PagesFetched:     s.PagesFetched.Load(),
		PagesFailed:      s.PagesFailed.Load(),
		CardsExtracted:   s.CardsExtracted.Load(),
		ExtractionErrors: s.ExtractionErrors.Load(),
		RecordsDropped:   s.RecordsDropped.Load(),
		ListingsKept:     s.ListingsKept.Load(),
	}
}

// Observer receives crawl events, typically to export metrics.
type Observer interface {
	PageFetched(category string, ok bool, d time.Duration)
	CardsExtracted(cards, errs int)
	RecordDropped(stage string)
}

type nopObserver struct{}

func (nopObserver) PageFetched(string, bool, time.Duration) {}
func (nopObserver) CardsExtracted(int, int)                 {}
func (nopObserver) RecordDropped(string)                    {}

// Crawler is the crawl orchestrator. It pages through the marketplace search
// for each option, extracts and normalizes the cards, and returns the
// range-filtered listings of all options in option order.
type Crawler struct {
	cfg      config.EngineConfig
	logger   *slog.Logger
	factory  fetcher.Factory
	parser   parser.CardParser
	urls     *URLBuilder
	base     *url.URL
	observer Observer
	now      func() time.Time

	mu    sync.Mutex
	stats *Stats
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithObserver sets the crawl event observer.
func WithObserver(o Observer) Option {
	return func(c *Crawler) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithClock overrides the reference clock used for relative dates.
func WithClock(now func() time.Time) Option {
	return func(c *Crawler) { c.now = now }
}

// New creates a Crawler. The factory may be nil; Run then fails with a
// TransportPreconditionError.
func New(cfg config.EngineConfig, factory fetcher.Factory, p parser.CardParser, logger *slog.Logger, opts ...Option) (*Crawler, error) {
	if p == nil {
		return nil, errors.New("engine: card parser is required")
	}
	urls, err := NewURLBuilder(cfg.URLTemplate)
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("engine: base url: %w", err)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	c := &Crawler{
		cfg:      cfg,
		logger:   logger.With("component", "crawler"),
		factory:  factory,
		parser:   p,
		urls:     urls,
		base:     base,
		observer: nopObserver{},
		now:      time.Now,
		stats:    &Stats{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Stats returns the statistics of the most recent run.
func (c *Crawler) Stats() *Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Run crawls every option and returns the concatenated, range-filtered
// listings in option order, with duplicates across options removed.
//
// Cancelling ctx stops paging: each option keeps what it collected so far
// and Run returns those listings without error. A missing or unusable
// session aborts the run with a TransportPreconditionError and no listings.
func (c *Crawler) Run(ctx context.Context, options []types.SearchOption) ([]*types.Listing, error) {
	for i, opt := range options {
		if err := opt.Validate(); err != nil {
			return nil, fmt.Errorf("option %d: %w", i, err)
		}
	}
	if c.factory == nil {
		return nil, &types.TransportPreconditionError{Err: types.ErrSessionNotReady}
	}

	stats := &Stats{StartTime: time.Now()}
	stats.Options.Store(int64(len(options)))
	c.mu.Lock()
	c.stats = stats
	c.mu.Unlock()

	if len(options) == 0 {
		return nil, nil
	}

	// All relative dates of a run resolve against one reference time.
	now := c.now()

	workers := min(c.cfg.Workers, len(options))
	c.logger.Info("crawl starting",
		"options", len(options),
		"workers", workers,
		"page_limit_total", totalPages(options),
	)

	jobs := make(chan int, len(options))
	for i := range options {
		jobs <- i
	}
	close(jobs)

	results := make([][]*types.Listing, len(options))
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			return c.worker(gctx, w, jobs, options, results, now, stats)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dedup := NewDeduplicator(len(options) * 64)
	var all []*types.Listing
	for _, batch := range results {
		before := len(batch)
		batch = dedup.Unique(batch)
		if dropped := before - len(batch); dropped > 0 {
			stats.RecordsDropped.Add(int64(dropped))
			for i := 0; i < dropped; i++ {
				c.observer.RecordDropped("cross_option_dedup")
			}
		}
		all = append(all, batch...)
	}
	stats.ListingsKept.Store(int64(len(all)))

	c.logger.Info("crawl finished",
		"listings", len(all),
		"pages", stats.PagesFetched.Load(),
		"pages_failed", stats.PagesFailed.Load(),
		"duration", time.Since(stats.StartTime),
	)
	return all, nil
}

// worker owns one session for its lifetime and crawls options from jobs.
// The session is opened lazily and closed on every exit path.
func (c *Crawler) worker(ctx context.Context, id int, jobs <-chan int, options []types.SearchOption,
	results [][]*types.Listing, now time.Time, stats *Stats) error {
	logger := c.logger.With("worker_id", id)

	var session fetcher.Session
	defer func() {
		if session != nil {
			if err := session.Close(); err != nil {
				logger.Warn("session close error", "error", err)
			}
		}
	}()

	for idx := range jobs {
		if session == nil {
			if ctx.Err() != nil {
				return nil
			}
			s, err := c.openSession(ctx)
			if s != nil {
				session = s
			}
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}

		stats.ActiveWorkers.Add(1)
		results[idx] = c.crawlOption(ctx, session, options[idx], now, stats, logger)
		stats.ActiveWorkers.Add(-1)
	}
	return nil
}

// openSession creates and connects a session. A session that fails to
// connect is still returned so the caller can close it.
func (c *Crawler) openSession(ctx context.Context) (fetcher.Session, error) {
	s, err := c.factory.NewSession(ctx)
	if err != nil {
		return nil, &types.TransportPreconditionError{Err: fmt.Errorf("%w: %v", types.ErrSessionNotReady, err)}
	}
	if s == nil {
		return nil, &types.TransportPreconditionError{Err: types.ErrSessionNotReady}
	}
	if err := s.Connect(ctx); err != nil {
		return s, &types.TransportPreconditionError{
			Driver: s.Driver(),
			Err:    fmt.Errorf("%w: %v", types.ErrSessionNotReady, err),
		}
	}
	if !s.Connected() {
		return s, &types.TransportPreconditionError{Driver: s.Driver(), Err: types.ErrSessionNotReady}
	}
	return s, nil
}

func totalPages(options []types.SearchOption) int {
	n := 0
	for _, o := range options {
		n += o.PageLimit
	}
	return n
}
