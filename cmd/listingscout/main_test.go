package main

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/IshaanNene/ListingScout/internal/types"
)

func TestParseOption(t *testing.T) {
	tests := []struct {
		raw     string
		want    types.SearchOption
		wantErr bool
	}{
		{raw: "Prada:250000:1000000:3", want: types.SearchOption{Category: "Prada", MinPrice: 250000, MaxPrice: 1000000, PageLimit: 3}},
		{raw: "Louis Vuitton:0:500000:1", want: types.SearchOption{Category: "Louis Vuitton", MaxPrice: 500000, PageLimit: 1}},
		{raw: "a:b:0:10:1", want: types.SearchOption{Category: "a:b", MaxPrice: 10, PageLimit: 1}},
		{raw: "Prada:250000:1000000", wantErr: true},
		{raw: "Prada:x:1000000:3", wantErr: true},
		{raw: "Prada:500:100:3", wantErr: true},
		{raw: ":0:100:3", wantErr: true},
		{raw: "Prada:0:100:0", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseOption(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseOption: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCollectOptionsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "options.yaml")
	content := `items_options:
  - category: Prada
    min_price: 250000
    max_price: 1000000
    page_limit: 3
  - category: Gucci
    min_price: 100000
    max_price: 500000
    page_limit: 1
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := collectOptions([]string{"Celine:0:300000:2"}, path)
	if err != nil {
		t.Fatalf("collectOptions: %v", err)
	}
	want := []types.SearchOption{
		{Category: "Prada", MinPrice: 250000, MaxPrice: 1000000, PageLimit: 3},
		{Category: "Gucci", MinPrice: 100000, MaxPrice: 500000, PageLimit: 1},
		{Category: "Celine", MaxPrice: 300000, PageLimit: 2},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v\nwant %+v", got, want)
	}
}

func TestCollectOptionsRequiresOne(t *testing.T) {
	if _, err := collectOptions(nil, ""); err == nil {
		t.Error("expected error without options")
	}
	if _, err := collectOptions(nil, filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for a missing options file")
	}
}

func TestBuildQuery(t *testing.T) {
	searchMinPrice, searchMaxPrice = 200000, -1
	searchOrder, searchSize, searchPage = "asc", 10, 2
	searchAfter = ""
	t.Cleanup(func() {
		searchMinPrice, searchMaxPrice = -1, -1
		searchOrder, searchSize, searchPage, searchAfter = "desc", 0, 0, ""
	})

	q, err := buildQuery([]string{"Prada"}, true, true)
	if err != nil {
		t.Fatalf("buildQuery: %v", err)
	}
	if q.Query != "Prada" || *q.MinPrice != 200000 || q.MaxPrice != nil || *q.Page != 2 || *q.Size != 10 || q.Order != types.OrderAsc {
		t.Errorf("query = %+v", q)
	}

	searchAfter = "300000, 17"
	q, err = buildQuery([]string{"Prada"}, false, false)
	if err != nil {
		t.Fatalf("buildQuery: %v", err)
	}
	if q.Page != nil || q.Size != nil || !reflect.DeepEqual(q.SearchAfter, []int64{300000, 17}) {
		t.Errorf("cursor query = %+v", q)
	}

	searchAfter = "abc"
	if _, err := buildQuery([]string{"Prada"}, false, false); err == nil {
		t.Error("expected error for a malformed cursor")
	}
}
