package fetcher

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/andybalholm/brotli"

	"github.com/IshaanNene/ListingScout/internal/config"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

const page = `<html><body><a href="/products/1">상품</a></body></html>`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/plain", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-UA", r.Header.Get("User-Agent"))
		fmt.Fprint(w, page)
	})
	mux.HandleFunc("/gzip", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		defer gz.Close()
		fmt.Fprint(gz, page)
	})
	mux.HandleFunc("/br", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "br")
		bw := brotli.NewWriter(w)
		defer bw.Close()
		fmt.Fprint(bw, page)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/overloaded", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func connectedSession(t *testing.T) *HTTPSession {
	t.Helper()
	cfg := config.DefaultConfig().Session
	cfg.Driver = "http"
	s := NewHTTPSession(cfg, testLogger)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestHTTPSessionEncodings(t *testing.T) {
	srv := newTestServer(t)
	s := connectedSession(t)

	for _, path := range []string{"/plain", "/gzip", "/br"} {
		t.Run(path, func(t *testing.T) {
			if err := s.Navigate(context.Background(), srv.URL+path); err != nil {
				t.Fatalf("navigate: %v", err)
			}
			got, err := s.Content(context.Background())
			if err != nil {
				t.Fatalf("content: %v", err)
			}
			if got != page {
				t.Errorf("content = %q, want %q", got, page)
			}
		})
	}
}

func TestHTTPSessionStatusErrors(t *testing.T) {
	srv := newTestServer(t)
	s := connectedSession(t)

	err := s.Navigate(context.Background(), srv.URL+"/missing")
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 StatusError, got %v", err)
	}
	if IsRetryable(err) {
		t.Error("404 should not be retryable")
	}

	err = s.Navigate(context.Background(), srv.URL+"/overloaded")
	if !IsRetryable(err) {
		t.Errorf("503 should be retryable, got %v", err)
	}
}

func TestHTTPSessionRequiresConnect(t *testing.T) {
	s := NewHTTPSession(config.DefaultConfig().Session, testLogger)
	if s.Connected() {
		t.Fatal("new session should not be connected")
	}
	if err := s.Navigate(context.Background(), "http://127.0.0.1/"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if _, err := s.Content(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}

	_ = s.Connect(context.Background())
	if _, err := s.Content(context.Background()); !errors.Is(err, ErrNoPage) {
		t.Errorf("expected ErrNoPage before navigation, got %v", err)
	}

	_ = s.Close()
	if s.Connected() {
		t.Error("closed session should not be connected")
	}
	if err := s.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}

func TestNewFactory(t *testing.T) {
	for _, driver := range []string{"rod", "chromedp", "http"} {
		cfg := config.DefaultConfig().Session
		cfg.Driver = driver
		f, err := NewFactory(cfg, testLogger)
		if err != nil {
			t.Fatalf("%s: %v", driver, err)
		}
		s, err := f.NewSession(context.Background())
		if err != nil {
			t.Fatalf("%s: new session: %v", driver, err)
		}
		if s.Driver() != driver {
			t.Errorf("driver = %q, want %q", s.Driver(), driver)
		}
		if s.Connected() {
			t.Errorf("%s: factory sessions start unconnected", driver)
		}
	}

	cfg := config.DefaultConfig().Session
	cfg.Driver = "selenium"
	if _, err := NewFactory(cfg, testLogger); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.Canceled, false},
		{fmt.Errorf("navigate: %w", context.DeadlineExceeded), false},
		{ErrNotConnected, false},
		{&StatusError{StatusCode: 429}, true},
		{&StatusError{StatusCode: 502}, true},
		{&StatusError{StatusCode: 403}, false},
		{errors.New("connection reset by peer"), true},
	}
	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestProfile(t *testing.T) {
	cfg := config.DefaultConfig().Session
	cfg.WindowSize = "1280, 720"

	p := NewProfile(cfg)
	if p.Width != 1280 || p.Height != 720 {
		t.Errorf("window = %dx%d, want 1280x720", p.Width, p.Height)
	}
	if p.WindowSize() != "1280,720" {
		t.Errorf("WindowSize() = %q", p.WindowSize())
	}

	seen := map[string]bool{}
	for i := 0; i < len(cfg.UserAgents)*2; i++ {
		seen[NewProfile(cfg).UserAgent] = true
	}
	if len(seen) != len(cfg.UserAgents) {
		t.Errorf("expected rotation over %d user agents, saw %d", len(cfg.UserAgents), len(seen))
	}

	cfg.WindowSize = "wide"
	p = NewProfile(cfg)
	if p.Width <= 0 || p.Height <= 0 {
		t.Error("invalid window size should fall back to a default viewport")
	}

	cfg.UserAgents = nil
	if ua := NewProfile(cfg).UserAgent; ua != "ListingScout/"+config.Version {
		t.Errorf("fallback user agent = %q", ua)
	}
}
