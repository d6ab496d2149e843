package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/IshaanNene/ListingScout/internal/fetcher"
	"github.com/IshaanNene/ListingScout/internal/pipeline"
	"github.com/IshaanNene/ListingScout/internal/types"
)

// crawlOption runs the Paging -> Done state machine for one option and
// returns its range-filtered listings.
func (c *Crawler) crawlOption(ctx context.Context, session fetcher.Session, opt types.SearchOption,
	now time.Time, stats *Stats, logger *slog.Logger) []*types.Listing {
	logger = logger.With("category", opt.Category)

	pipe := pipeline.NewNormalizer(now, c.base, c.logger)
	pipe.OnDrop(func(stage string) {
		stats.RecordsDropped.Add(1)
		c.observer.RecordDropped(stage)
	})

	var acc []*types.Listing
	state := StatePaging
	page := 1

	for state == StatePaging {
		if page > opt.PageLimit {
			state = StateDone
			break
		}

		target := c.urls.Build(opt.Category, page)
		start := time.Now()
		markup, err := c.fetchPage(ctx, session, target, logger)
		duration := time.Since(start)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("crawl interrupted, keeping collected listings", "page", page, "collected", len(acc))
			} else {
				stats.PagesFailed.Add(1)
				c.observer.PageFetched(opt.Category, false, duration)
				logger.Warn("page fetch failed, ending option", "page", page, "url", target, "error", err)
			}
			state = StateDone
			break
		}
		stats.PagesFetched.Add(1)
		c.observer.PageFetched(opt.Category, true, duration)

		it, err := c.parser.Cards(types.NewPage(target, page, markup, duration))
		if err != nil {
			logger.Warn("page markup unreadable, ending option", "page", page, "error", err)
			state = StateDone
			break
		}
		if it.Len() == 0 {
			logger.Debug("no cards on page, option done", "page", page)
			state = StateDone
			break
		}

		cards := 0
		for it.Next() {
			cards++
			l, err := pipe.Process(types.NewListing(it.Card(), opt.Category))
			if err != nil {
				logger.Warn("listing rejected", "page", page, "error", err)
				continue
			}
			if l == nil {
				continue
			}
			l.CrawledAt = now
			acc = append(acc, l)
		}
		stats.CardsExtracted.Add(int64(cards))
		stats.ExtractionErrors.Add(int64(len(it.Errors())))
		c.observer.CardsExtracted(cards, len(it.Errors()))

		logger.Debug("page crawled", "page", page, "cards", cards, "collected", len(acc))
		page++
	}

	filtered := pipeline.FilterByRange(acc, opt)
	if dropped := len(acc) - len(filtered); dropped > 0 {
		stats.RecordsDropped.Add(int64(dropped))
		for i := 0; i < dropped; i++ {
			c.observer.RecordDropped("range_filter")
		}
	}

	logger.Info("option done",
		"state", state,
		"pages", page-1,
		"collected", len(acc),
		"kept", len(filtered),
	)
	return filtered
}

// fetchPage navigates to target, waits the settle delay and reads the page.
// Transient navigation failures are retried with exponential backoff.
func (c *Crawler) fetchPage(ctx context.Context, session fetcher.Session, target string, logger *slog.Logger) (string, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.RetryDelay
	bo.MaxInterval = 8 * c.cfg.RetryDelay
	bo.Multiplier = 2

	operation := func() (string, error) {
		navCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
		err := session.Navigate(navCtx, target)
		if err != nil {
			err = retryable(ctx, navCtx, err)
		}
		cancel()
		if err != nil {
			return "", err
		}

		if err := c.settle(ctx); err != nil {
			return "", backoff.Permanent(err)
		}

		// The read gets a full request timeout of its own after settling.
		readCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
		markup, err := session.Content(readCtx)
		if err != nil {
			return "", retryable(ctx, readCtx, err)
		}
		return markup, nil
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(c.cfg.MaxRetries+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Debug("retrying page", "url", target, "error", err, "next", next)
		}),
	)
}

// retryable marks err permanent unless it is transient. A per-request
// timeout is transient; cancellation of the run is not.
func retryable(runCtx, navCtx context.Context, err error) error {
	if runCtx.Err() != nil {
		return backoff.Permanent(runCtx.Err())
	}
	if errors.Is(navCtx.Err(), context.DeadlineExceeded) {
		return err
	}
	if !fetcher.IsRetryable(err) {
		return backoff.Permanent(err)
	}
	return err
}

// settle waits the fixed delay after navigation, or until ctx is done.
func (c *Crawler) settle(ctx context.Context) error {
	if c.cfg.SettleDelay <= 0 {
		return nil
	}
	t := time.NewTimer(c.cfg.SettleDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
