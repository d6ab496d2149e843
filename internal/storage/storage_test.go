package storage

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/IshaanNene/ListingScout/internal/config"
	"github.com/IshaanNene/ListingScout/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func seed(t *testing.T, s Store, docs ...*types.Listing) {
	t.Helper()
	for i, d := range docs {
		if d.Seq == 0 {
			d.Seq = int64(i + 1)
		}
	}
	res, err := s.BulkInsert(context.Background(), docs)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if res.Inserted != len(docs) {
		t.Fatalf("inserted %d of %d", res.Inserted, len(docs))
	}
}

func listing(category string, price int64, link string) *types.Listing {
	return &types.Listing{
		Category: category,
		Title:    category + " item",
		Price:    price,
		Link:     link,
		ImageSrc: link + ".jpg",
		Status:   types.StatusActive,
	}
}

func pricesOf(h *Hits) []int64 {
	out := make([]int64, 0, len(h.Hits))
	for _, hit := range h.Hits {
		out = append(out, hit.Listing.Price)
	}
	return out
}

// --- Memory Store Tests ---

func TestMemoryStoreSearchRangeAndOrder(t *testing.T) {
	s := NewMemoryStore(testLogger)
	seed(t, s,
		listing("Prada", 210000, "https://x.test/1"),
		listing("Prada", 300000, "https://x.test/2"),
		listing("Prada", 600000, "https://x.test/3"),
		listing("Gucci", 250000, "https://x.test/4"),
	)

	q := &Query{Category: "Prada", MinPrice: types.Int64(200000), MaxPrice: types.Int64(500000), Order: types.OrderAsc, Size: 10}
	hits, err := s.Search(context.Background(), q)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if hits.Total != 2 {
		t.Errorf("total = %d, want 2", hits.Total)
	}
	if got := pricesOf(hits); !reflect.DeepEqual(got, []int64{210000, 300000}) {
		t.Errorf("prices = %v", got)
	}

	q = &Query{Category: "Prada", Order: types.OrderDesc, Size: 10}
	hits, _ = s.Search(context.Background(), q)
	if got := pricesOf(hits); !reflect.DeepEqual(got, []int64{600000, 300000, 210000}) {
		t.Errorf("desc prices = %v", got)
	}
}

func TestMatchesTerms(t *testing.T) {
	tests := []struct {
		category string
		query    string
		want     bool
	}{
		{"Prada", "Prada", true},
		{"Prada", "prada", true},
		{"Louis Vuitton", "vuitton louis", true},
		{"Louis Vuitton", "louis", true},
		{"Louis Vuitton", "louis gucci", false},
		{"Pradax", "prada", false},
		{"Gucci", "", true},
	}
	for _, tt := range tests {
		if got := MatchesTerms(tt.category, QueryTerms(tt.query)); got != tt.want {
			t.Errorf("MatchesTerms(%q, %q) = %v, want %v", tt.category, tt.query, got, tt.want)
		}
	}
}

func TestMemoryStoreOffsetAndCursor(t *testing.T) {
	s := NewMemoryStore(testLogger)
	seed(t, s,
		listing("Prada", 100, "https://x.test/a"),
		listing("Prada", 200, "https://x.test/b"),
		listing("Prada", 200, "https://x.test/c"),
		listing("Prada", 300, "https://x.test/d"),
		listing("Prada", 400, "https://x.test/e"),
	)
	ctx := context.Background()

	page2, _ := s.Search(ctx, &Query{Category: "Prada", Order: types.OrderAsc, From: 2, Size: 2})
	if got := pricesOf(page2); !reflect.DeepEqual(got, []int64{200, 300}) {
		t.Errorf("offset page = %v", got)
	}
	if page2.Total != 5 {
		t.Errorf("total = %d, want 5", page2.Total)
	}

	// Walk with the cursor: ties on price are split by seq, nothing repeats.
	var walked []string
	var after []int64
	for i := 0; i < 5; i++ {
		hits, err := s.Search(ctx, &Query{Category: "Prada", Order: types.OrderAsc, SearchAfter: after, Size: 2})
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if hits.Total != 5 {
			t.Errorf("total should ignore the cursor, got %d", hits.Total)
		}
		if len(hits.Hits) == 0 {
			break
		}
		for _, h := range hits.Hits {
			walked = append(walked, h.Listing.Link)
		}
		after = hits.Hits[len(hits.Hits)-1].Sort
	}
	want := "https://x.test/a https://x.test/b https://x.test/c https://x.test/d https://x.test/e"
	if strings.Join(walked, " ") != want {
		t.Errorf("cursor walk = %v", walked)
	}

	// A one-element cursor resumes strictly after that price.
	hits, _ := s.Search(ctx, &Query{Category: "Prada", Order: types.OrderAsc, SearchAfter: []int64{200}, Size: 10})
	if got := pricesOf(hits); !reflect.DeepEqual(got, []int64{300, 400}) {
		t.Errorf("price-only cursor = %v", got)
	}

	hits, _ = s.Search(ctx, &Query{Category: "Prada", Order: types.OrderDesc, SearchAfter: []int64{300, 4}, Size: 10})
	if got := pricesOf(hits); !reflect.DeepEqual(got, []int64{200, 200, 100}) {
		t.Errorf("desc cursor = %v", got)
	}
}

func TestMemoryStoreExistsAndDelete(t *testing.T) {
	s := NewMemoryStore(testLogger)
	seed(t, s,
		listing("Prada", 100, "https://x.test/a"),
		listing("Prada", 200, "https://x.test/b"),
	)
	ctx := context.Background()

	ids, err := s.Exists(ctx, FieldLink, []string{"https://x.test/a", "https://x.test/zzz"})
	if err != nil || len(ids) != 1 {
		t.Fatalf("exists by link = %v, %v", ids, err)
	}
	imgIDs, _ := s.Exists(ctx, FieldImageSrc, []string{"https://x.test/b.jpg"})
	if len(imgIDs) != 1 {
		t.Fatalf("exists by image = %v", imgIDs)
	}
	if _, err := s.Exists(ctx, "title", []string{"x"}); err == nil {
		t.Error("unsupported field should be rejected")
	}

	n, err := s.BulkDelete(ctx, append(ids, imgIDs[0], "missing"))
	if err != nil || n != 2 {
		t.Fatalf("deleted %d, err %v", n, err)
	}
	if s.Len() != 0 {
		t.Errorf("store should be empty, has %d", s.Len())
	}
}

func TestMemoryStoreHonoursContext(t *testing.T) {
	s := NewMemoryStore(testLogger)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Search(ctx, &Query{Size: 10}); err == nil {
		t.Error("search on a cancelled context should fail")
	}
}

// --- Mongo Query Builder Tests ---

func TestBuildFilter(t *testing.T) {
	prada := primitive.Regex{Pattern: `(^|\s)prada(\s|$)`, Options: "i"}
	tests := []struct {
		name string
		q    *Query
		want bson.D
	}{
		{
			"category only",
			&Query{Category: "Prada"},
			bson.D{{Key: "category", Value: prada}},
		},
		{
			"every term must match",
			&Query{Category: "Louis  VUITTON"},
			bson.D{{Key: "$and", Value: bson.A{
				bson.D{{Key: "category", Value: primitive.Regex{Pattern: `(^|\s)louis(\s|$)`, Options: "i"}}},
				bson.D{{Key: "category", Value: primitive.Regex{Pattern: `(^|\s)vuitton(\s|$)`, Options: "i"}}},
			}}},
		},
		{
			"terms are quoted",
			&Query{Category: "a.b"},
			bson.D{{Key: "category", Value: primitive.Regex{Pattern: `(^|\s)a\.b(\s|$)`, Options: "i"}}},
		},
		{
			"both bounds",
			&Query{Category: "Prada", MinPrice: types.Int64(200000), MaxPrice: types.Int64(500000)},
			bson.D{
				{Key: "category", Value: prada},
				{Key: "price", Value: bson.D{{Key: "$gte", Value: int64(200000)}, {Key: "$lte", Value: int64(500000)}}},
			},
		},
		{
			"max only",
			&Query{Category: "Prada", MaxPrice: types.Int64(10)},
			bson.D{
				{Key: "category", Value: prada},
				{Key: "price", Value: bson.D{{Key: "$lte", Value: int64(10)}}},
			},
		},
		{
			"empty",
			&Query{},
			bson.D{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildFilter(tt.q); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("buildFilter = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildCursorFilter(t *testing.T) {
	got := buildCursorFilter(types.OrderAsc, []int64{300, 7})
	want := bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "price", Value: bson.D{{Key: "$gt", Value: int64(300)}}}},
		bson.D{{Key: "price", Value: int64(300)}, {Key: "seq", Value: bson.D{{Key: "$gt", Value: int64(7)}}}},
	}}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("asc cursor = %v", got)
	}

	got = buildCursorFilter(types.OrderDesc, []int64{300})
	want = bson.D{{Key: "price", Value: bson.D{{Key: "$lt", Value: int64(300)}}}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("desc price-only cursor = %v", got)
	}
}

func TestBuildFindOptions(t *testing.T) {
	opts := buildFindOptions(&Query{Order: types.OrderDesc, From: 20, Size: 10})
	if opts.Skip == nil || *opts.Skip != 20 {
		t.Errorf("skip = %v, want 20", opts.Skip)
	}
	if opts.Limit == nil || *opts.Limit != 10 {
		t.Errorf("limit = %v, want 10", opts.Limit)
	}
	wantSort := bson.D{{Key: "price", Value: -1}, {Key: "seq", Value: -1}}
	if !reflect.DeepEqual(opts.Sort, wantSort) {
		t.Errorf("sort = %v", opts.Sort)
	}

	opts = buildFindOptions(&Query{Order: types.OrderAsc, From: 20, Size: 10, SearchAfter: []int64{1, 2}})
	if opts.Skip != nil {
		t.Error("cursor queries must not skip")
	}
}

func TestInsertResultFromWriteErrors(t *testing.T) {
	errs := []mongo.BulkWriteError{
		{WriteError: mongo.WriteError{Index: 1, Code: 11000, Message: "dup"}},
		{WriteError: mongo.WriteError{Index: 3, Code: 121, Message: "validation"}},
		{WriteError: mongo.WriteError{Index: 3, Code: 121, Message: "validation"}},
	}
	res := insertResultFromWriteErrors(5, errs)
	if res.Inserted != 3 || !reflect.DeepEqual(res.Failed, []int{1, 3}) {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestObjectIDs(t *testing.T) {
	if _, err := objectIDs([]string{"65f1c0ffee0000000000abcd"}); err != nil {
		t.Errorf("valid id rejected: %v", err)
	}
	if _, err := objectIDs([]string{"not-hex"}); err == nil {
		t.Error("invalid id accepted")
	}
}

// --- JSONL Tests ---

func TestJSONLExportImport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "listings.jsonl")
	w, err := NewJSONLWriter(path, testLogger)
	if err != nil {
		t.Fatalf("writer: %v", err)
	}
	reg := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	in := []*types.Listing{
		{Category: "Prada", Title: "bag", Price: 600000, RegisteredAt: &reg, Link: "https://x.test/1", Status: types.StatusActive},
		{Category: "Prada", Title: "wallet", Price: 300000, Link: "https://x.test/2", Status: types.StatusActive},
	}
	if err := w.Write(in); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if w.Count() != 2 {
		t.Errorf("count = %d", w.Count())
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	out, err := ReadJSONL(f)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(out) != 2 || out[0].Title != "bag" || !out[0].RegisteredAt.Equal(reg) || out[1].RegisteredAt != nil {
		t.Errorf("unexpected listings %+v", out)
	}
}

func TestReadJSONLReportsLine(t *testing.T) {
	in := "{\"title\":\"a\",\"price\":1}\n\n{broken\n"
	_, err := ReadJSONL(bytes.NewBufferString(in))
	if err == nil || !strings.Contains(err.Error(), "line 3") {
		t.Errorf("expected line 3 error, got %v", err)
	}
}

// --- Mongo Integration ---

func TestMongoStoreIntegration(t *testing.T) {
	uri := os.Getenv("LISTINGSCOUT_TEST_MONGO_URI")
	if testing.Short() || uri == "" {
		t.Skip("set LISTINGSCOUT_TEST_MONGO_URI to run against MongoDB")
	}

	cfg := config.DefaultConfig().Store
	cfg.URI = uri
	cfg.Collection = "items_test_" + time.Now().Format("150405")
	ctx := context.Background()

	s, err := NewMongoStore(ctx, cfg, testLogger)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer s.Close()
	defer func() { _ = s.DropIndex(ctx) }()

	if err := s.EnsureIndex(ctx); err != nil {
		t.Fatalf("ensure index: %v", err)
	}
	seed(t, s,
		listing("Prada", 210000, "https://x.test/1"),
		listing("Prada", 300000, "https://x.test/2"),
		listing("Prada", 600000, "https://x.test/3"),
	)

	hits, err := s.Search(ctx, &Query{Category: "Prada", MinPrice: types.Int64(200000), MaxPrice: types.Int64(500000), Order: types.OrderAsc, Size: 10})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if hits.Total != 2 || !reflect.DeepEqual(pricesOf(hits), []int64{210000, 300000}) {
		t.Errorf("unexpected hits: total %d prices %v", hits.Total, pricesOf(hits))
	}

	ids, err := s.Exists(ctx, FieldLink, []string{"https://x.test/1"})
	if err != nil || len(ids) != 1 {
		t.Fatalf("exists = %v, %v", ids, err)
	}
	if n, err := s.BulkDelete(ctx, ids); err != nil || n != 1 {
		t.Errorf("delete = %d, %v", n, err)
	}
}
