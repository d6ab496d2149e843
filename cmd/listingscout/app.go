package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/IshaanNene/ListingScout/internal/config"
	"github.com/IshaanNene/ListingScout/internal/engine"
	"github.com/IshaanNene/ListingScout/internal/fetcher"
	"github.com/IshaanNene/ListingScout/internal/indexer"
	"github.com/IshaanNene/ListingScout/internal/lock"
	"github.com/IshaanNene/ListingScout/internal/observability"
	"github.com/IshaanNene/ListingScout/internal/parser"
	"github.com/IshaanNene/ListingScout/internal/runlog"
	"github.com/IshaanNene/ListingScout/internal/search"
	"github.com/IshaanNene/ListingScout/internal/service"
	"github.com/IshaanNene/ListingScout/internal/storage"
)

// app holds the components shared by the subcommands.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   storage.Store
	metrics *observability.Metrics

	closers []func()
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	store, err := storage.Open(ctx, cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a := &app{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		metrics: observability.NewMetrics(logger),
	}
	a.onClose(func() {
		if err := store.Close(); err != nil {
			logger.Warn("store close error", "error", err)
		}
	})
	return a, nil
}

func (a *app) onClose(fn func()) { a.closers = append(a.closers, fn) }

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// startMetricsServer serves metrics on their own port when enabled.
func (a *app) startMetricsServer() {
	if !a.cfg.Metrics.Enabled {
		return
	}
	srv := a.metrics.StartServer(a.cfg.Metrics.Port, a.cfg.Metrics.Path)
	a.onClose(func() { srv.Close() })
}

func (a *app) writer() *indexer.Writer {
	return indexer.New(a.store, a.cfg.Store.Timeout, a.logger)
}

func (a *app) searchService() *search.Service {
	planner := search.NewPlanner(search.Limits{
		DefaultSize: a.cfg.Search.DefaultSize,
		MaxSize:     a.cfg.Search.MaxSize,
	})
	svc := search.NewService(a.store, planner, a.cfg.Search.Timeout, a.logger)
	svc.SetObserver(a.metrics)
	return svc
}

func (a *app) crawlService(ctx context.Context, opts service.Options) (*service.CrawlService, error) {
	factory, err := fetcher.NewFactory(a.cfg.Session, a.logger)
	if err != nil {
		return nil, fmt.Errorf("create session factory: %w", err)
	}
	cardParser, err := parser.New(a.cfg.Extractor, a.logger)
	if err != nil {
		return nil, fmt.Errorf("create parser: %w", err)
	}
	crawler, err := engine.New(a.cfg.Engine, factory, cardParser, a.logger, engine.WithObserver(a.metrics))
	if err != nil {
		return nil, fmt.Errorf("create crawler: %w", err)
	}

	locker, err := lock.Open(ctx, a.cfg.Lock, a.logger)
	if err != nil {
		return nil, fmt.Errorf("open crawl lock: %w", err)
	}
	a.onClose(func() { locker.Close() })

	recorder, err := runlog.Open(ctx, a.cfg.RunLog, a.logger)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	a.onClose(recorder.Close)

	svc := service.NewCrawlService(crawler, a.writer(), locker, recorder, a.logger, opts)
	svc.SetObserver(a.metrics)
	return svc, nil
}
