package parser

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/IshaanNene/ListingScout/internal/types"
)

// CSSCardParser locates cards with a CSS attribute selector via goquery.
type CSSCardParser struct {
	labels   Labels
	selector string
	logger   *slog.Logger
}

// NewCSSCardParser creates a card parser matching img[alt="<label>"].
func NewCSSCardParser(labels Labels, logger *slog.Logger) *CSSCardParser {
	return &CSSCardParser{
		labels:   labels,
		selector: fmt.Sprintf("img[alt=%s]", strconv.Quote(labels.Image)),
		logger:   logger.With("component", "css_card_parser"),
	}
}

// Name implements CardParser.
func (p *CSSCardParser) Name() string { return "css" }

// Cards implements CardParser.
func (p *CSSCardParser) Cards(page *types.Page) (*CardIterator, error) {
	root, err := page.Root()
	if err != nil {
		return nil, fmt.Errorf("parse page %d: %w", page.Number, err)
	}

	doc := goquery.NewDocumentFromNode(root)
	images := doc.Find(p.selector).Nodes

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
