package engine

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// URLBuilder fills the search URL template for one option page.
type URLBuilder struct {
	template string
}

// NewURLBuilder validates the template and returns a builder.
// The template must contain {page} and {query} placeholders.
func NewURLBuilder(template string) (*URLBuilder, error) {
	if !strings.Contains(template, "{page}") || !strings.Contains(template, "{query}") {
		return nil, fmt.Errorf("url template must contain {page} and {query}: %q", template)
	}
	if _, err := url.Parse(strings.NewReplacer("{page}", "1", "{query}", "q").Replace(template)); err != nil {
		return nil, fmt.Errorf("url template: %w", err)
	}
	return &URLBuilder{template: template}, nil
}

// Build returns the URL of the given page of a category search.
func (b *URLBuilder) Build(category string, page int) string {
	return strings.NewReplacer(
		"{page}", strconv.Itoa(page),
		"{query}", url.QueryEscape(strings.TrimSpace(category)),
	).Replace(b.template)
}
