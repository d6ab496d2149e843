package types

import (
	"strings"
	"time"

	"golang.org/x/net/html"
)

// Page is the rendered markup of one search result page.
type Page struct {
	// URL is the address that was navigated to.
	URL string

	// Number is the 1-based result page number.
	Number int

	// HTML is the page content read after the settle delay.
	HTML string

	// FetchDuration covers navigation, settle and content read.
	FetchDuration time.Duration

	// FetchedAt is when the content was read.
	FetchedAt time.Time

	root *html.Node
}

// NewPage wraps fetched markup.
func NewPage(url string, number int, markup string, duration time.Duration) *Page {
	return &Page{
		URL:           url,
		Number:        number,
		HTML:          markup,
		FetchDuration: duration,
		FetchedAt:     time.Now(),
	}
}

// Root returns the parsed document, lazily initializing it.
func (p *Page) Root() (*html.Node, error) {
	if p.root != nil {
		return p.root, nil
	}
	root, err := html.Parse(strings.NewReader(p.HTML))
	if err != nil {
		return nil, err
	}
	p.root = root
	return root, nil
}
