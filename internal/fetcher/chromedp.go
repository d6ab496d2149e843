package fetcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chromedp/chromedp"

	"github.com/IshaanNene/ListingScout/internal/config"
)

// ChromedpSession is a Session backed by a Chrome tab driven through the
// DevTools protocol with chromedp.
type ChromedpSession struct {
	cfg     config.SessionConfig
	profile Profile
	logger  *slog.Logger

	tabCtx      context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	loaded      bool
}

// NewChromedpSession creates an unconnected chromedp session.
func NewChromedpSession(cfg config.SessionConfig, logger *slog.Logger) *ChromedpSession {
	return &ChromedpSession{
		cfg:     cfg,
		profile: NewProfile(cfg),
		logger:  logger.With("component", "chromedp_session"),
	}
}

func (s *ChromedpSession) Driver() string { return "chromedp" }

func (s *ChromedpSession) Connected() bool { return s.tabCtx != nil }

// Connect starts (or attaches to) Chrome and opens the tab. The browser
// outlives ctx; it is released by Close.
func (s *ChromedpSession) Connect(ctx context.Context) error {
	if s.tabCtx != nil {
		return nil
	}

	base := context.WithoutCancel(ctx)
	var allocCtx context.Context
	var cancelAlloc context.CancelFunc
	if s.cfg.ControlURL != "" {
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(base, s.cfg.ControlURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", s.profile.Headless),
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
			chromedp.Flag("lang", s.profile.Language),
			chromedp.UserAgent(s.profile.UserAgent),
			chromedp.WindowSize(s.profile.Width, s.profile.Height),
			chromedp.NoSandbox,
			chromedp.DisableGPU,
		)
		if s.profile.UserDataDir != "" {
			opts = append(opts, chromedp.UserDataDir(s.profile.UserDataDir))
		}
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(base, opts...)
	}

	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	// The first Run allocates the browser and must use the tab context
	// itself; a derived context would stop the browser when it ends.
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return fmt.Errorf("start chrome: %w", err)
	}

	s.tabCtx, s.cancelTab, s.cancelAlloc = tabCtx, cancelTab, cancelAlloc
	s.logger.Debug("chromedp session connected", "remote", s.cfg.ControlURL != "")
	return nil
}

// Navigate loads url in the tab.
func (s *ChromedpSession) Navigate(ctx context.Context, url string) error {
	if s.tabCtx == nil {
		return ErrNotConnected
	}
	if err := s.run(ctx, s.tabCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	s.loaded = true
	return nil
}

// Content returns the outer HTML of the current document.
func (s *ChromedpSession) Content(ctx context.Context) (string, error) {
	if s.tabCtx == nil {
		return "", ErrNotConnected
	}
	if !s.loaded {
		return "", ErrNoPage
	}
	var html string
	if err := s.run(ctx, s.tabCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read page html: %w", err)
	}
	return html, nil
}

// Close closes the tab and its browser.
func (s *ChromedpSession) Close() error {
	if s.cancelTab != nil {
		s.cancelTab()
	}
	if s.cancelAlloc != nil {
		s.cancelAlloc()
	}
	s.tabCtx, s.cancelTab, s.cancelAlloc = nil, nil, nil
	return nil
}

// run executes actions on the tab, cancelling them (but not the tab) when
// ctx is done.
func (s *ChromedpSession) run(ctx, tabCtx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}
