package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/IshaanNene/ListingScout/internal/config"
)

// Session is one simulated browser tab (or HTTP client) with its own
// navigation state. A session is owned by a single worker and is not safe
// for concurrent use.
type Session interface {
	// Connect prepares the session. It must succeed before Navigate.
	Connect(ctx context.Context) error

	// Connected reports whether Connect has succeeded and Close has not run.
	Connected() bool

	// Navigate loads url as the session's current page.
	Navigate(ctx context.Context, url string) error

	// Content returns the current page markup.
	Content(ctx context.Context) (string, error)

	// Close releases the session. It is safe to call more than once.
	Close() error

	// Driver returns the transport identifier.
	Driver() string
}

// Factory creates new, unconnected sessions.
type Factory interface {
	NewSession(ctx context.Context) (Session, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context) (Session, error)

// NewSession calls f.
func (f FactoryFunc) NewSession(ctx context.Context) (Session, error) { return f(ctx) }

// NewFactory returns a factory for the configured driver.
func NewFactory(cfg config.SessionConfig, logger *slog.Logger) (Factory, error) {
	switch cfg.Driver {
	case "rod":
		return FactoryFunc(func(context.Context) (Session, error) {
			return NewRodSession(cfg, logger), nil
		}), nil
	case "chromedp":
		return FactoryFunc(func(context.Context) (Session, error) {
			return NewChromedpSession(cfg, logger), nil
		}), nil
	case "http":
		return FactoryFunc(func(context.Context) (Session, error) {
			return NewHTTPSession(cfg, logger), nil
		}), nil
	default:
		return nil, fmt.Errorf("unknown session driver %q", cfg.Driver)
	}
}

// ErrNotConnected is returned by sessions used before Connect.
var ErrNotConnected = errors.New("session not connected")

// ErrNoPage is returned by Content before any successful navigation.
var ErrNoPage = errors.New("no page loaded")

// StatusError reports a navigation that completed with an HTTP error status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// IsRetryable reports whether a navigation error is worth retrying.
// Context cancellation and client errors other than 429 are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrNotConnected) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	return true
}
