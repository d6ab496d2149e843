package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/IshaanNene/ListingScout/internal/config"
	"github.com/IshaanNene/ListingScout/internal/search"
	"github.com/IshaanNene/ListingScout/internal/service"
	"github.com/IshaanNene/ListingScout/internal/storage"
	"github.com/IshaanNene/ListingScout/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

type fakeTrigger struct {
	report  *types.CrawlReport
	err     error
	options []types.SearchOption
}

func (f *fakeTrigger) Crawl(ctx context.Context, options []types.SearchOption) (*types.CrawlReport, error) {
	f.options = options
	return f.report, f.err
}

func (f *fakeTrigger) Run(ctx context.Context, runID string) (*types.CrawlReport, error) {
	if f.report != nil && f.report.RunID == runID {
		return f.report, nil
	}
	return nil, fmt.Errorf("%w: %s", service.ErrRunNotFound, runID)
}

type brokenStore struct{ *storage.MemoryStore }

func (brokenStore) Search(context.Context, *storage.Query) (*storage.Hits, error) {
	return nil, errors.New("server selection timeout")
}

func seededSearch(t *testing.T) *search.Service {
	t.Helper()
	store := storage.NewMemoryStore(testLogger)
	_, err := store.BulkInsert(context.Background(), []*types.Listing{
		{Category: "Prada", Title: "a", Price: 210000, Link: "https://x.test/1", Seq: 1, Status: types.StatusActive},
		{Category: "Prada", Title: "b", Price: 300000, Link: "https://x.test/2", Seq: 2, Status: types.StatusActive},
		{Category: "Prada", Title: "c", Price: 600000, Link: "https://x.test/3", Seq: 3, Status: types.StatusActive},
	})
	if err != nil {
		t.Fatal(err)
	}
	return search.NewService(store, nil, time.Second, testLogger)
}

func newTestServer(t *testing.T, trigger CrawlTrigger, searcher Searcher) *httptest.Server {
	t.Helper()
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "listingscout_searches_total 0")
	})
	srv := NewServer(config.APIConfig{RequestTimeout: 5 * time.Second}, trigger, searcher, metrics, testLogger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, &fakeTrigger{}, seededSearch(t))
	resp, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("metrics status = %d", resp.StatusCode)
	}
}

func TestSearchEndpoint(t *testing.T) {
	ts := newTestServer(t, &fakeTrigger{}, seededSearch(t))

	resp, body := post(t, ts.URL+"/api/v1/search",
		`{"query":"Prada","min_price":200000,"max_price":500000,"sort":"price","order":"asc","page":1,"size":10}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %v", resp.StatusCode, body)
	}
	if body["total"].(float64) != 2 {
		t.Errorf("total = %v", body["total"])
	}
	results := body["results"].([]any)
	if len(results) != 2 || results[0].(map[string]any)["price"].(float64) != 210000 {
		t.Errorf("results = %v", results)
	}
	if body["last_sort"] == nil {
		t.Error("last_sort should be set")
	}
}

func TestSearchEndpointErrors(t *testing.T) {
	tests := []struct {
		name     string
		searcher Searcher
		body     string
		status   int
		message  string
	}{
		{"bad json", nil, `{"query":`, http.StatusBadRequest, "invalid JSON"},
		{"cursor with page", nil, `{"query":"Prada","page":2,"search_after":[300000]}`, http.StatusBadRequest, ""},
		{"store down", search.NewService(brokenStore{storage.NewMemoryStore(testLogger)}, nil, time.Second, testLogger),
			`{"query":"Prada"}`, http.StatusServiceUnavailable, "search failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			searcher := tt.searcher
			if searcher == nil {
				searcher = seededSearch(t)
			}
			ts := newTestServer(t, &fakeTrigger{}, searcher)
			resp, body := post(t, ts.URL+"/api/v1/search", tt.body)
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if tt.message != "" && body["error"] != tt.message {
				t.Errorf("error = %v, want %q", body["error"], tt.message)
			}
		})
	}
}

func TestCrawlEndpoint(t *testing.T) {
	trigger := &fakeTrigger{report: &types.CrawlReport{
		RunID: "run-1",
		Write: &types.WriteReport{Received: 2, Inserted: 2},
	}}
	ts := newTestServer(t, trigger, seededSearch(t))

	resp, body := post(t, ts.URL+"/api/v1/crawl",
		`{"items_options":[{"category":"Prada","min_price":250000,"max_price":1000000,"page_limit":3}]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %v", resp.StatusCode, body)
	}
	if body["run_id"] != "run-1" {
		t.Errorf("run_id = %v", body["run_id"])
	}
	want := types.SearchOption{Category: "Prada", MinPrice: 250000, MaxPrice: 1000000, PageLimit: 3}
	if len(trigger.options) != 1 || trigger.options[0] != want {
		t.Errorf("options = %+v", trigger.options)
	}

	resp, err := http.Get(ts.URL + "/api/v1/runs/run-1")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("run lookup status = %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/api/v1/runs/missing")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing run status = %d", resp.StatusCode)
	}
}

func TestCrawlEndpointErrorMapping(t *testing.T) {
	report := &types.CrawlReport{RunID: "run-2", Write: &types.WriteReport{Inserted: 1, Failed: 1}}
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", &types.ValidationError{Field: "page_limit", Reason: "must be >= 1"}, http.StatusBadRequest},
		{"lock held", fmt.Errorf("%w: [Prada]", types.ErrLockHeld), http.StatusConflict},
		{"partial write", &types.PartialWriteError{Inserted: 1, Failed: 1}, http.StatusMultiStatus},
		{"no session", &types.TransportPreconditionError{Err: types.ErrSessionNotReady}, http.StatusServiceUnavailable},
		{"store down", &types.StoreUnavailableError{Backend: "mongodb", Op: "exists", Err: errors.New("refused")}, http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, &fakeTrigger{report: report, err: tt.err}, seededSearch(t))
			resp, _ := post(t, ts.URL+"/api/v1/crawl", `{"items_options":[]}`)
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
		})
	}
}
