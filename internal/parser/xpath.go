package parser

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/IshaanNene/ListingScout/internal/types"
)

// XPathCardParser locates cards with an XPath expression via htmlquery.
type XPathCardParser struct {
	labels Labels
	expr   string
	logger *slog.Logger
}

// NewXPathCardParser creates a card parser matching //img[@alt='<label>'].
func NewXPathCardParser(labels Labels, logger *slog.Logger) *XPathCardParser {
	return &XPathCardParser{
		labels: labels,
		expr:   "//img[@alt=" + xpathLiteral(labels.Image) + "]",
		logger: logger.With("component", "xpath_card_parser"),
	}
}

// Name implements CardParser.
func (p *XPathCardParser) Name() string { return "xpath" }

// Cards implements CardParser.
func (p *XPathCardParser) Cards(page *types.Page) (*CardIterator, error) {
	root, err := page.Root()
	if err != nil {
		return nil, fmt.Errorf("parse page %d: %w", page.Number, err)
	}

	images, err := htmlquery.QueryAll(root, p.expr)
	if err != nil {
		return nil, fmt.Errorf("xpath %q: %w", p.expr, err)
	}

	p.logger.Debug("cards located", "page", page.Number, "count", len(images))

	return &CardIterator{
		page:   page.Number,
		images: images,
		extract: func(idx int, image *html.Node) (types.RawCard, []*types.ExtractionError) {
			return extractCard(idx, image, p.labels)
		},
		logger: p.logger,
	}, nil
}

// xpathLiteral quotes s as an XPath 1.0 string literal.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	return "concat('" + strings.Join(parts, `', "'", '`) + "')"
}
