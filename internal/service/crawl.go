// Package service runs crawl jobs end to end: locking, crawling, exporting,
// indexing and recording the run.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/IshaanNene/ListingScout/internal/engine"
	"github.com/IshaanNene/ListingScout/internal/lock"
	"github.com/IshaanNene/ListingScout/internal/runlog"
	"github.com/IshaanNene/ListingScout/internal/storage"
	"github.com/IshaanNene/ListingScout/internal/types"
)

// ErrRunNotFound is returned by Run for unknown run ids.
var ErrRunNotFound = errors.New("crawl run not found")

// Crawler produces listings for a set of options.
type Crawler interface {
	Run(ctx context.Context, options []types.SearchOption) ([]*types.Listing, error)
	Stats() *engine.Stats
}

// Writer publishes listings into the store.
type Writer interface {
	Write(ctx context.Context, listings []*types.Listing) (*types.WriteReport, error)
}

// Observer is notified once per finished crawl run.
type Observer interface {
	CrawlFinished(report *types.CrawlReport, err error)
}

type runLookup interface {
	Lookup(ctx context.Context, runID string) (*types.CrawlReport, error)
}

// Options tune a CrawlService.
type Options struct {
	// DryRun crawls without writing to the store.
	DryRun bool

	// ExportPath, when set, receives the crawled listings as JSON lines.
	ExportPath string

	// RecentRuns bounds the in-memory run history.
	RecentRuns int

	// SalvageTimeout bounds the index write of a run whose context ended
	// while crawling.
	SalvageTimeout time.Duration
}

// CrawlService is the crawl trigger.
type CrawlService struct {
	crawler  Crawler
	writer   Writer
	locker   lock.Locker
	recorder runlog.Recorder
	observer Observer
	opts     Options
	logger   *slog.Logger
	now      func() time.Time

	// crawlMu serializes use of the crawler so its stats belong to one run.
	crawlMu sync.Mutex

	mu    sync.RWMutex
	runs  map[string]*types.CrawlReport
	order []string
}

// NewCrawlService creates a CrawlService. A nil locker or recorder falls
// back to the in-process locker and the no-op recorder.
func NewCrawlService(crawler Crawler, writer Writer, locker lock.Locker, recorder runlog.Recorder, logger *slog.Logger, opts Options) *CrawlService {
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	if recorder == nil {
		recorder = runlog.Nop{}
	}
	if opts.RecentRuns <= 0 {
		opts.RecentRuns = 100
	}
	if opts.SalvageTimeout <= 0 {
		opts.SalvageTimeout = 2 * time.Minute
	}
	return &CrawlService{
		crawler:  crawler,
		writer:   writer,
		locker:   locker,
		recorder: recorder,
		opts:     opts,
		logger:   logger.With("component", "crawl_service"),
		now:      time.Now,
		runs:     make(map[string]*types.CrawlReport),
	}
}

// SetObserver registers the run observer.
func (s *CrawlService) SetObserver(o Observer) { s.observer = o }

// Crawl crawls options, then replaces their listings in the store.
//
// Options whose category is locked by another run are skipped and listed in
// the report. When every option is skipped Crawl returns types.ErrLockHeld.
// The report is returned alongside write errors so callers can show what was
// indexed. When ctx ends mid-crawl the collected listings are still written
// and the report is marked Interrupted.
func (s *CrawlService) Crawl(ctx context.Context, options []types.SearchOption) (*types.CrawlReport, error) {
	if len(options) == 0 {
		return nil, &types.ValidationError{Field: "items_options", Reason: "at least one option is required"}
	}
	for i, opt := range options {
		if err := opt.Validate(); err != nil {
			return nil, fmt.Errorf("option %d: %w", i, err)
		}
	}

	report := &types.CrawlReport{
		RunID:     uuid.NewString(),
		StartedAt: s.now(),
	}
	logger := s.logger.With("run_id", report.RunID)

	runnable, held, err := s.acquire(ctx, report.RunID, options)
	defer s.release(ctx, report.RunID, held, logger)
	if err != nil {
		return nil, err
	}
	for _, opt := range options {
		if !containsCategory(runnable, opt.Category) {
			report.SkippedOptions = append(report.SkippedOptions, opt.Category)
		}
	}
	if len(runnable) == 0 {
		logger.Warn("every option is locked by another run", "skipped", report.SkippedOptions)
		return report, fmt.Errorf("%w: %v", types.ErrLockHeld, report.SkippedOptions)
	}

	if err := s.recorder.Start(ctx, report.RunID, report.StartedAt, runnable); err != nil {
		logger.Warn("run log start failed", "error", err)
	}

	logger.Info("crawl run starting", "options", len(runnable), "skipped", len(report.SkippedOptions), "dry_run", s.opts.DryRun)

	listings, err := s.crawl(ctx, runnable, report)
	if err != nil {
		return s.finish(ctx, report, err)
	}

	// A run cut short by its context still indexes what was collected.
	if cause := ctx.Err(); cause != nil {
		report.Interrupted = true
		logger.Warn("crawl cut short, keeping collected listings", "listings", len(listings), "cause", cause)
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), s.opts.SalvageTimeout)
		defer cancel()
	}

	if s.opts.ExportPath != "" {
		if err := s.export(listings, logger); err != nil {
			return s.finish(ctx, report, err)
		}
	}

	if s.opts.DryRun {
		logger.Info("dry run, skipping index write", "listings", len(listings))
		return s.finish(ctx, report, nil)
	}

	wr, err := s.writer.Write(ctx, listings)
	report.Write = wr
	return s.finish(ctx, report, err)
}

func (s *CrawlService) crawl(ctx context.Context, options []types.SearchOption, report *types.CrawlReport) ([]*types.Listing, error) {
	s.crawlMu.Lock()
	defer s.crawlMu.Unlock()

	listings, err := s.crawler.Run(ctx, options)
	report.Stats = s.crawler.Stats().Snapshot()
	return listings, err
}

// acquire locks the distinct categories of options. Categories held by
// another run are left out of the returned options. Any other lock failure
// aborts after releasing what was taken.
func (s *CrawlService) acquire(ctx context.Context, runID string, options []types.SearchOption) ([]types.SearchOption, []string, error) {
	var (
		runnable []types.SearchOption
		held     []string
		skipped  = make(map[string]bool)
	)
	for _, opt := range options {
		switch {
		case slices.Contains(held, opt.Category):
			runnable = append(runnable, opt)
			continue
		case skipped[opt.Category]:
			continue
		}

		err := s.locker.Acquire(ctx, opt.Category, runID)
		switch {
		case err == nil:
			held = append(held, opt.Category)
			runnable = append(runnable, opt)
		case errors.Is(err, types.ErrLockHeld):
			s.logger.Warn("category locked by another run, skipping", "run_id", runID, "category", opt.Category)
			skipped[opt.Category] = true
		default:
			return nil, held, fmt.Errorf("lock %q: %w", opt.Category, err)
		}
	}
	return runnable, held, nil
}

func (s *CrawlService) release(ctx context.Context, runID string, categories []string, logger *slog.Logger) {
	if len(categories) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	for _, c := range categories {
		if err := s.locker.Release(ctx, c, runID); err != nil {
			logger.Warn("lock release failed", "category", c, "error", err)
		}
	}
}

func (s *CrawlService) export(listings []*types.Listing, logger *slog.Logger) error {
	w, err := storage.NewJSONLWriter(s.opts.ExportPath, logger)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err := w.Write(listings); err != nil {
		w.Close()
		return fmt.Errorf("export: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	logger.Info("listings exported", "path", s.opts.ExportPath, "count", w.Count())
	return nil
}

// finish completes the report, records the run and returns err unchanged.
func (s *CrawlService) finish(ctx context.Context, report *types.CrawlReport, err error) (*types.CrawlReport, error) {
	report.Duration = s.now().Sub(report.StartedAt)
	if err != nil {
		report.Error = err.Error()
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if rerr := s.recorder.Finish(rctx, report); rerr != nil {
		s.logger.Warn("run log finish failed", "run_id", report.RunID, "error", rerr)
	}
	if s.observer != nil {
		s.observer.CrawlFinished(report, err)
	}
	s.remember(report)

	attrs := []any{
		"run_id", report.RunID,
		"listings", report.Stats.ListingsKept,
		"pages", report.Stats.PagesFetched,
		"duration", report.Duration,
	}
	if report.Write != nil {
		attrs = append(attrs, "inserted", report.Write.Inserted, "deleted", report.Write.Deleted, "failed", report.Write.Failed)
	}
	if err != nil {
		s.logger.Error("crawl run failed", append(attrs, "error", err)...)
	} else {
		s.logger.Info("crawl run finished", attrs...)
	}
	return report, err
}

func (s *CrawlService) remember(report *types.CrawlReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[report.RunID]; !ok {
		s.order = append(s.order, report.RunID)
	}
	s.runs[report.RunID] = report
	for len(s.order) > s.opts.RecentRuns {
		delete(s.runs, s.order[0])
		s.order = s.order[1:]
	}
}

// Run returns a finished run from memory, falling back to the run log.
func (s *CrawlService) Run(ctx context.Context, runID string) (*types.CrawlReport, error) {
	s.mu.RLock()
	report, ok := s.runs[runID]
	s.mu.RUnlock()
	if ok {
		return report, nil
	}

	if l, ok := s.recorder.(runLookup); ok {
		report, err := l.Lookup(ctx, runID)
		if err != nil {
			s.logger.Debug("run lookup failed", "run_id", runID, "error", err)
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return report, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
}

func containsCategory(options []types.SearchOption, category string) bool {
	for _, o := range options {
		if o.Category == category {
			return true
		}
	}
	return false
}
