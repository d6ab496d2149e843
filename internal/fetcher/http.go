package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/IshaanNene/ListingScout/internal/config"
)

// HTTPSession is a Session over plain net/http. It serves server-rendered
// pages and mock marketplaces in tests; it does not execute scripts.
type HTTPSession struct {
	cfg     config.SessionConfig
	profile Profile
	logger  *slog.Logger

	client  *http.Client
	current string
	body    string
	loaded  bool
}

// NewHTTPSession creates an unconnected HTTP session.
func NewHTTPSession(cfg config.SessionConfig, logger *slog.Logger) *HTTPSession {
	return &HTTPSession{
		cfg:     cfg,
		profile: NewProfile(cfg),
		logger:  logger.With("component", "http_session"),
	}
}

func (s *HTTPSession) Driver() string { return "http" }

func (s *HTTPSession) Connected() bool { return s.client != nil }

// Connect builds the session's client with its own cookie jar.
func (s *HTTPSession) Connect(ctx context.Context) error {
	if s.client != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("create cookie jar: %w", err)
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		// Decompression (including brotli) is handled in Navigate.
		DisableCompression: true,
	}

	s.client = &http.Client{
		Transport: transport,
		Jar:       jar,
	}
	return nil
}

// Navigate fetches url and keeps its body as the current page.
func (s *HTTPSession) Navigate(ctx context.Context, url string) error {
	if s.client == nil {
		return ErrNotConnected
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	s.profile.applyBrowserHeaders(req.Header)
	if s.current != "" {
		req.Header.Set("Referer", s.current)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	var reader io.Reader = resp.Body
	if s.cfg.MaxBodySize > 0 {
		reader = io.LimitReader(reader, s.cfg.MaxBodySize)
	}
	reader, err = decompressReader(resp.Header.Get("Content-Encoding"), reader)
	if err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	s.current = resp.Request.URL.String()
	s.body = string(body)
	s.loaded = true

	s.logger.Debug("navigated",
		"url", url,
		"status", resp.StatusCode,
		"size", len(body),
		"duration", time.Since(start),
	)
	return nil
}

// Content returns the body of the last successful navigation.
func (s *HTTPSession) Content(ctx context.Context) (string, error) {
	if s.client == nil {
		return "", ErrNotConnected
	}
	if !s.loaded {
		return "", ErrNoPage
	}
	return s.body, nil
}

// Close drops idle connections and the current page.
func (s *HTTPSession) Close() error {
	if s.client != nil {
		s.client.CloseIdleConnections()
		s.client = nil
	}
	s.body = ""
	s.loaded = false
	return nil
}

// decompressReader wraps a reader for gzip, deflate and brotli encodings.
func decompressReader(encoding string, reader io.Reader) (io.Reader, error) {
	switch encoding {
	case "gzip":
		return gzip.NewReader(reader)
	case "deflate":
		return flate.NewReader(reader), nil
	case "br":
		return brotli.NewReader(reader), nil
	default:
		return reader, nil
	}
}
