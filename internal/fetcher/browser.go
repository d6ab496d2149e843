package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/IshaanNene/ListingScout/internal/config"
)

// RodSession is a Session backed by a Chromium tab driven through Rod.
// It launches its own browser unless session.control_url points at one.
type RodSession struct {
	cfg     config.SessionConfig
	profile Profile
	logger  *slog.Logger

	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	loaded   bool
}

// NewRodSession creates an unconnected Rod session.
func NewRodSession(cfg config.SessionConfig, logger *slog.Logger) *RodSession {
	return &RodSession{
		cfg:     cfg,
		profile: NewProfile(cfg),
		logger:  logger.With("component", "rod_session"),
	}
}

func (s *RodSession) Driver() string { return "rod" }

func (s *RodSession) Connected() bool { return s.page != nil }

// Connect launches (or attaches to) the browser and opens the session's tab.
func (s *RodSession) Connect(ctx context.Context) error {
	if s.page != nil {
		return nil
	}

	controlURL := s.cfg.ControlURL
	if controlURL == "" {
		l := launcher.New().
			Headless(s.profile.Headless).
			Set("disable-gpu").
			Set("disable-dev-shm-usage").
			Set("no-sandbox").
			Set("disable-blink-features", "AutomationControlled").
			Set("window-size", s.profile.WindowSize()).
			Set("lang", s.profile.Language)
		if s.profile.UserDataDir != "" {
			l = l.UserDataDir(s.profile.UserDataDir)
		}
		u, err := l.Context(ctx).Launch()
		if err != nil {
			return fmt.Errorf("launch browser: %w", err)
		}
		s.launcher = l
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		s.cleanup()
		return fmt.Errorf("connect browser: %w", err)
	}
	s.browser = browser

	var page *rod.Page
	var err error
	if s.profile.Stealth {
		page, err = stealth.Page(browser)
	} else {
		page, err = browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	}
	if err != nil {
		s.cleanup()
		return fmt.Errorf("open page: %w", err)
	}

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      s.profile.UserAgent,
		AcceptLanguage: s.profile.Language,
	}); err != nil {
		s.logger.Warn("failed to set user agent", "error", err)
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  s.profile.Width,
		Height: s.profile.Height,
	}); err != nil {
		s.logger.Warn("failed to set viewport", "error", err)
	}

	s.page = page
	s.logger.Debug("rod session connected", "stealth", s.profile.Stealth, "remote", s.cfg.ControlURL != "")
	return nil
}

// Navigate loads url and waits for the load event.
func (s *RodSession) Navigate(ctx context.Context, url string) error {
	if s.page == nil {
		return ErrNotConnected
	}
	start := time.Now()
	page := s.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	s.loaded = true
	s.logger.Debug("navigated", "url", url, "duration", time.Since(start))
	return nil
}

// Content returns the rendered markup of the current page.
func (s *RodSession) Content(ctx context.Context) (string, error) {
	if s.page == nil {
		return "", ErrNotConnected
	}
	if !s.loaded {
		return "", ErrNoPage
	}
	html, err := s.page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("read page html: %w", err)
	}
	return html, nil
}

// Close closes the tab and the browser it launched.
func (s *RodSession) Close() error {
	var err error
	if s.page != nil {
		_ = s.page.Close()
		s.page = nil
	}
	if s.browser != nil && s.launcher != nil {
		err = s.browser.Close()
	}
	s.browser = nil
	s.cleanup()
	return err
}

func (s *RodSession) cleanup() {
	if s.launcher != nil {
		s.launcher.Kill()
		s.launcher = nil
	}
}
