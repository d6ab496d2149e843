package parser

import (
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"golang.org/x/net/html"

	"github.com/IshaanNene/ListingScout/internal/config"
	"github.com/IshaanNene/ListingScout/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

var testLabels = LabelsFromConfig(config.DefaultConfig().Extractor)

const listingPage = `<!DOCTYPE html>
<html>
<body>
<div class="results">
  <a href="/products/101">
    <div class="media"><img src="https://media.test/101.jpg" alt="상품 이미지"><div class="overlay"></div></div>
    <div class="info"><div class="name">Prada Re-Nylon bag</div><div class="meta"><div class="price">300,000</div><div class="time">2일 전</div></div></div>
    <div class="location">서울특별시 강남구</div>
  </a>
  <a href="/products/102">
    <div class="media"><img src="https://media.test/102.jpg" alt="상품 이미지"><img src="https://media.test/badge.png" alt="판매 완료"></div>
    <div class="info"><div class="name">Prada wallet</div><div class="meta"><div class="price">150,000</div><div class="time">3시간 전</div></div></div>
    <div class="location">부산광역시</div>
  </a>
  <a href="/products/103">
    <div class="media"><img src="https://media.test/103.jpg" alt="상품 이미지"></div>
    <div class="info"><div class="name">Prada shoes</div><div class="meta"><div class="price">연락요망</div><div class="time">1주 전</div></div></div>
  </a>
  <a>
    <div class="media"><img alt="상품 이미지"></div>
    <div class="info"><div class="name">Broken card</div></div>
    <div class="location"></div>
  </a>
</div>
</body>
</html>`

func newPage(markup string) *types.Page {
	return types.NewPage("https://market.test/search?page=1", 1, markup, 0)
}

func collect(t *testing.T, p CardParser, markup string) ([]types.RawCard, *CardIterator) {
	t.Helper()
	it, err := p.Cards(newPage(markup))
	if err != nil {
		t.Fatalf("cards: %v", err)
	}
	var cards []types.RawCard
	for it.Next() {
		cards = append(cards, it.Card())
	}
	return cards, it
}

func TestCSSCardParserExtractsFields(t *testing.T) {
	cards, it := collect(t, NewCSSCardParser(testLabels, testLogger), listingPage)

	if len(cards) != 4 {
		t.Fatalf("expected 4 cards, got %d", len(cards))
	}

	first := cards[0]
	if first.Href != "/products/101" {
		t.Errorf("href = %q", first.Href)
	}
	if first.ImageURL != "https://media.test/101.jpg" {
		t.Errorf("image = %q", first.ImageURL)
	}
	if first.Title != "Prada Re-Nylon bag" || first.PriceText != "300,000" || first.DateText != "2일 전" {
		t.Errorf("info split wrong: %+v", first)
	}
	if first.InfoText != "Prada Re-Nylon bag;;;300,000;;;2일 전" {
		t.Errorf("info text = %q", first.InfoText)
	}
	if first.LocationText != "서울특별시 강남구" {
		t.Errorf("location = %q", first.LocationText)
	}
	if first.SoldOut {
		t.Error("first card should be active")
	}
	if first.Index != 0 || first.Page != 1 {
		t.Errorf("index/page = %d/%d", first.Index, first.Page)
	}

	if !cards[1].SoldOut || cards[1].StatusLabel != "판매 완료" {
		t.Errorf("second card should carry the sold-out badge: %+v", cards[1])
	}

	if it.Len() != 4 {
		t.Errorf("Len = %d, want 4", it.Len())
	}
}

func TestMissingLocationIsSentinel(t *testing.T) {
	cards, it := collect(t, NewCSSCardParser(testLabels, testLogger), listingPage)

	third := cards[2]
	if third.LocationText != types.Sentinel {
		t.Errorf("missing location should be sentinel, got %q", third.LocationText)
	}
	if third.Title != "Prada shoes" {
		t.Errorf("other fields should survive, title = %q", third.Title)
	}

	var found bool
	for _, e := range it.Errors() {
		if e.Card == 2 && e.Field == "location" {
			found = true
			if !errors.Is(e, types.ErrMissingField) {
				t.Errorf("location error should wrap ErrMissingField: %v", e)
			}
		}
	}
	if !found {
		t.Error("expected a recorded location error for card 2")
	}
}

func TestBrokenCardIsSentineled(t *testing.T) {
	cards, it := collect(t, NewCSSCardParser(testLabels, testLogger), listingPage)

	broken := cards[3]
	if broken.Href != types.Sentinel {
		t.Errorf("href = %q, want sentinel", broken.Href)
	}
	if broken.ImageURL != types.Sentinel {
		t.Errorf("image = %q, want sentinel", broken.ImageURL)
	}
	if broken.Title != "Broken card" {
		t.Errorf("title = %q", broken.Title)
	}
	if broken.PriceText != types.Sentinel || broken.DateText != types.Sentinel {
		t.Errorf("price/date should be sentinel: %+v", broken)
	}
	// present but empty location keeps the sentinel without an error
	if broken.LocationText != types.Sentinel {
		t.Errorf("location = %q", broken.LocationText)
	}

	fields := map[string]bool{}
	for _, e := range it.Errors() {
		if e.Card == 3 {
			fields[e.Field] = true
		}
	}
	for _, f := range []string{"href", "image", "price", "date"} {
		if !fields[f] {
			t.Errorf("expected error for field %q, got %v", f, fields)
		}
	}
	if fields["location"] {
		t.Error("empty location text should not be an error")
	}
}

func TestXPathMatchesCSS(t *testing.T) {
	cssCards, _ := collect(t, NewCSSCardParser(testLabels, testLogger), listingPage)
	xpCards, xpIt := collect(t, NewXPathCardParser(testLabels, testLogger), listingPage)

	if len(cssCards) != len(xpCards) {
		t.Fatalf("css found %d cards, xpath %d", len(cssCards), len(xpCards))
	}
	for i := range cssCards {
		if cssCards[i] != xpCards[i] {
			t.Errorf("card %d differs:\ncss   %+v\nxpath %+v", i, cssCards[i], xpCards[i])
		}
	}
	if len(xpIt.Errors()) == 0 {
		t.Error("xpath iterator should record the same extraction errors")
	}
}

func TestIteratorIsLazyAndFinite(t *testing.T) {
	it, err := NewCSSCardParser(testLabels, testLogger).Cards(newPage(listingPage))
	if err != nil {
		t.Fatalf("cards: %v", err)
	}
	if len(it.Errors()) != 0 {
		t.Fatal("no card should be extracted before Next")
	}

	n := 0
	for it.Next() {
		n++
	}
	if n != 4 {
		t.Fatalf("iterated %d cards, want 4", n)
	}
	if it.Next() {
		t.Error("exhausted iterator must stay exhausted")
	}
}

func TestNoCards(t *testing.T) {
	for _, p := range []CardParser{
		NewCSSCardParser(testLabels, testLogger),
		NewXPathCardParser(testLabels, testLogger),
	} {
		it, err := p.Cards(newPage(`<html><body><p>검색 결과가 없습니다</p></body></html>`))
		if err != nil {
			t.Fatalf("%s: %v", p.Name(), err)
		}
		if it.Len() != 0 || it.Next() {
			t.Errorf("%s: expected empty iterator", p.Name())
		}
	}
}

func TestPanicIsIsolated(t *testing.T) {
	root, err := html.Parse(strings.NewReader(listingPage))
	if err != nil {
		t.Fatal(err)
	}
	it := &CardIterator{
		page:   1,
		images: []*html.Node{root, root},
		extract: func(idx int, _ *html.Node) (types.RawCard, []*types.ExtractionError) {
			if idx == 0 {
				panic("unexpected markup")
			}
			c := types.NewSentinelCard(idx)
			c.Title = "ok"
			return c, nil
		},
		logger: testLogger,
	}

	if !it.Next() {
		t.Fatal("expected first card")
	}
	if it.Card().Title != types.Sentinel {
		t.Errorf("panicking card should be sentineled, got %+v", it.Card())
	}
	if !it.Next() || it.Card().Title != "ok" {
		t.Error("card after a panic should still be extracted")
	}
	if len(it.Errors()) != 1 || it.Errors()[0].Field != "card" {
		t.Errorf("expected one card-level error, got %v", it.Errors())
	}
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.DefaultConfig().Extractor

	p, err := New(cfg, testLogger)
	if err != nil || p.Name() != "css" {
		t.Fatalf("default parser = %v, %v", p, err)
	}

	cfg.Type = "xpath"
	p, err = New(cfg, testLogger)
	if err != nil || p.Name() != "xpath" {
		t.Fatalf("xpath parser = %v, %v", p, err)
	}

	cfg.Type = "regex"
	if _, err := New(cfg, testLogger); err == nil {
		t.Error("unknown type should fail")
	}
}

func TestXPathLiteral(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"상품 이미지", "'상품 이미지'"},
		{"it's", `"it's"`},
		{`a'b"c`, `concat('a', "'", 'b"c')`},
	}
	for _, tt := range tests {
		if got := xpathLiteral(tt.in); got != tt.want {
			t.Errorf("xpathLiteral(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func BenchmarkCSSCards(b *testing.B) {
	p := NewCSSCardParser(testLabels, testLogger)
	for i := 0; i < b.N; i++ {
		it, _ := p.Cards(newPage(listingPage))
		for it.Next() {
		}
	}
}
