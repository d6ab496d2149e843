// Package api exposes the crawl and search triggers over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/IshaanNene/ListingScout/internal/config"
	"github.com/IshaanNene/ListingScout/internal/service"
	"github.com/IshaanNene/ListingScout/internal/types"
)

// CrawlTrigger starts crawl runs and looks up finished ones.
type CrawlTrigger interface {
	Crawl(ctx context.Context, options []types.SearchOption) (*types.CrawlReport, error)
	Run(ctx context.Context, runID string) (*types.CrawlReport, error)
}

// Searcher answers search queries.
type Searcher interface {
	Search(ctx context.Context, q *types.SearchQuery) (*types.SearchResult, error)
}

// CrawlRequest is the body of POST /api/v1/crawl.
type CrawlRequest struct {
	ItemsOptions []types.SearchOption `json:"items_options"`
}

// Server provides the REST API.
type Server struct {
	cfg      config.APIConfig
	crawler  CrawlTrigger
	searcher Searcher
	metrics  http.Handler
	logger   *slog.Logger
	router   chi.Router
}

// NewServer creates a Server. metrics may be nil.
func NewServer(cfg config.APIConfig, crawler CrawlTrigger, searcher Searcher, metrics http.Handler, logger *slog.Logger) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Minute
	}
	s := &Server{
		cfg:      cfg,
		crawler:  crawler,
		searcher: searcher,
		metrics:  metrics,
		logger:   logger.With("component", "api_server"),
	}
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server starting", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/api/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(s.cfg.RequestTimeout))
		r.Post("/crawl", s.handleCrawl)
		r.Post("/search", s.handleSearch)
		r.Get("/runs/{id}", s.handleGetRun)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": config.Version,
	})
}

func (s *Server) handleCrawl(w http.ResponseWriter, r *http.Request) {
	var body CrawlRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	report, err := s.crawler.Crawl(r.Context(), body.ItemsOptions)
	if err == nil {
		s.jsonResponse(w, http.StatusOK, report)
		return
	}

	var (
		ve  *types.ValidationError
		tpe *types.TransportPreconditionError
		pwe *types.PartialWriteError
		sue *types.StoreUnavailableError
	)
	switch {
	case errors.As(err, &ve):
		s.jsonError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, types.ErrLockHeld):
		s.jsonResponse(w, http.StatusConflict, map[string]any{"error": err.Error(), "report": report})
	case errors.As(err, &pwe):
		s.jsonResponse(w, http.StatusMultiStatus, report)
	case errors.As(err, &tpe):
		s.logger.Error("crawl could not start", "error", err)
		s.jsonError(w, http.StatusServiceUnavailable, "fetch session unavailable")
	case errors.As(err, &sue):
		s.logger.Error("crawl write failed", "error", err)
		s.jsonResponse(w, http.StatusServiceUnavailable, map[string]any{"error": "store unavailable", "report": report})
	default:
		s.logger.Error("crawl failed", "error", err)
		s.jsonError(w, http.StatusInternalServerError, "crawl failed")
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var q types.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	result, err := s.searcher.Search(r.Context(), &q)
	if err != nil {
		var ve *types.ValidationError
		if errors.As(err, &ve) {
			s.jsonError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.jsonError(w, http.StatusServiceUnavailable, "search failed")
		return
	}
	s.jsonResponse(w, http.StatusOK, result)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	report, err := s.crawler.Run(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrRunNotFound) {
			s.jsonError(w, http.StatusNotFound, "run not found")
			return
		}
		s.logger.Error("run lookup failed", "run_id", id, "error", err)
		s.jsonError(w, http.StatusInternalServerError, "run lookup failed")
		return
	}
	s.jsonResponse(w, http.StatusOK, report)
}

// requestLogger logs each request through slog.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) jsonError(w http.ResponseWriter, status int, msg string) {
	s.jsonResponse(w, status, map[string]string{"error": msg})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("response encode failed", "error", err)
	}
}
