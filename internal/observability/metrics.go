// Package observability exports crawl, write and search metrics in the
// Prometheus format.
package observability

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/IshaanNene/ListingScout/internal/types"
)

// Metrics tracks operational metrics for the crawler and the query path.
// It satisfies engine.Observer and search.Observer.
type Metrics struct {
	registry *prometheus.Registry

	// Crawl metrics
	PagesTotal       *prometheus.CounterVec
	PageDuration     *prometheus.HistogramVec
	CardsTotal       prometheus.Counter
	ExtractionErrors prometheus.Counter
	RecordsDropped   *prometheus.CounterVec
	CrawlRuns        *prometheus.CounterVec
	CrawlDuration    prometheus.Histogram
	OptionsSkipped   prometheus.Counter

	// Index metrics
	DocumentsWritten *prometheus.CounterVec

	// Search metrics
	SearchesTotal  *prometheus.CounterVec
	SearchDuration prometheus.Histogram

	logger *slog.Logger
}

// NewMetrics creates a Metrics instance backed by its own registry.
func NewMetrics(logger *slog.Logger) *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		PagesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "listingscout_pages_total",
			Help: "Search result pages fetched, by category and result.",
		}, []string{"category", "result"}),
		PageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "listingscout_page_duration_seconds",
			Help:    "Time to fetch and settle one search result page.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"category"}),
		CardsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "listingscout_cards_extracted_total",
			Help: "Listing cards read from result pages.",
		}),
		ExtractionErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "listingscout_extraction_errors_total",
			Help: "Cards whose fields could not be read.",
		}),
		RecordsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "listingscout_records_dropped_total",
			Help: "Records dropped during normalization, by stage.",
		}, []string{"stage"}),
		CrawlRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "listingscout_crawl_runs_total",
			Help: "Crawl runs, by result.",
		}, []string{"result"}),
		CrawlDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "listingscout_crawl_duration_seconds",
			Help:    "Duration of a full crawl run.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		OptionsSkipped: f.NewCounter(prometheus.CounterOpts{
			Name: "listingscout_options_skipped_total",
			Help: "Crawl options skipped because another run held their lock.",
		}),
		DocumentsWritten: f.NewCounterVec(prometheus.CounterOpts{
			Name: "listingscout_documents_total",
			Help: "Documents processed by the index writer, by outcome.",
		}, []string{"outcome"}),
		SearchesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "listingscout_searches_total",
			Help: "Searches served, by outcome.",
		}, []string{"outcome"}),
		SearchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "listingscout_search_duration_seconds",
			Help:    "Search latency including validation.",
			Buckets: prometheus.DefBuckets,
		}),
		logger: logger.With("component", "metrics"),
	}
}

// PageFetched records one page fetch.
func (m *Metrics) PageFetched(category string, ok bool, d time.Duration) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.PagesTotal.WithLabelValues(category, result).Inc()
	m.PageDuration.WithLabelValues(category).Observe(d.Seconds())
}

// CardsExtracted records the cards read from one page.
func (m *Metrics) CardsExtracted(cards, errs int) {
	m.CardsTotal.Add(float64(cards))
	m.ExtractionErrors.Add(float64(errs))
}

// RecordDropped records a record removed by a normalization stage.
func (m *Metrics) RecordDropped(stage string) {
	m.RecordsDropped.WithLabelValues(stage).Inc()
}

// SearchObserved records one search.
func (m *Metrics) SearchObserved(outcome string, d time.Duration) {
	m.SearchesTotal.WithLabelValues(outcome).Inc()
	m.SearchDuration.Observe(d.Seconds())
}

// CrawlFinished records a completed crawl run and its write report.
func (m *Metrics) CrawlFinished(report *types.CrawlReport, err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.CrawlRuns.WithLabelValues(result).Inc()
	if report == nil {
		return
	}
	m.CrawlDuration.Observe(report.Duration.Seconds())
	m.OptionsSkipped.Add(float64(len(report.SkippedOptions)))
	if w := report.Write; w != nil {
		m.DocumentsWritten.WithLabelValues("inserted").Add(float64(w.Inserted))
		m.DocumentsWritten.WithLabelValues("deleted").Add(float64(w.Deleted))
		m.DocumentsWritten.WithLabelValues("failed").Add(float64(w.Failed))
		m.DocumentsWritten.WithLabelValues("duplicate").Add(float64(w.Duplicates))
	}
}

// Handler serves the metrics in the Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer starts a standalone metrics HTTP server.
func (m *Metrics) StartServer(port int, path string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	m.logger.Info("metrics server starting", "addr", srv.Addr, "path", path)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("metrics server error", "error", err)
		}
	}()

	return srv
}
