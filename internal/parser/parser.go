package parser

import (
	"fmt"
	"log/slog"

	"golang.org/x/net/html"

	"github.com/IshaanNene/ListingScout/internal/config"
	"github.com/IshaanNene/ListingScout/internal/types"
)

// CardParser locates listing cards in a search result page.
type CardParser interface {
	// Cards returns a lazy iterator over the page's cards. An error is
	// returned only when the page markup cannot be parsed at all.
	Cards(page *types.Page) (*CardIterator, error)

	// Name returns the parser identifier.
	Name() string
}

// Labels describe the accessibility labels and delimiter used by the marketplace markup.
type Labels struct {
	Image         string
	SoldOut       string
	InfoDelimiter string
}

// LabelsFromConfig reads the extractor labels from config.
func LabelsFromConfig(cfg config.ExtractorConfig) Labels {
	return Labels{
		Image:         cfg.ImageLabel,
		SoldOut:       cfg.SoldOutLabel,
		InfoDelimiter: cfg.InfoDelimiter,
	}
}

// New builds the card parser selected by config.
func New(cfg config.ExtractorConfig, logger *slog.Logger) (CardParser, error) {
	labels := LabelsFromConfig(cfg)
	switch cfg.Type {
	case "", "css":
		return NewCSSCardParser(labels, logger), nil
	case "xpath":
		return NewXPathCardParser(labels, logger), nil
	default:
		return nil, fmt.Errorf("unknown extractor type %q", cfg.Type)
	}
}

// CardIterator yields the cards of one page. Extraction happens on Next,
// one card at a time. An iterator is finite and cannot be restarted.
type CardIterator struct {
	page    int
	images  []*html.Node
	extract func(index int, image *html.Node) (types.RawCard, []*types.ExtractionError)
	logger  *slog.Logger

	pos  int
	cur  types.RawCard
	errs []*types.ExtractionError
}

// Next extracts the next card. It returns false once all cards are consumed.
func (it *CardIterator) Next() bool {
	if it.pos >= len(it.images) {
		return false
	}
	idx := it.pos
	it.pos++

	card, errs := it.safeExtract(idx)
	card.Index = idx
	card.Page = it.page
	it.cur = card

	for _, err := range errs {
		it.logger.Warn("card field unavailable",
			"page", it.page,
			"card", err.Card,
			"field", err.Field,
			"error", err.Err,
		)
	}
	it.errs = append(it.errs, errs...)
	return true
}

// Card returns the card produced by the last call to Next.
func (it *CardIterator) Card() types.RawCard { return it.cur }

// Len returns the number of cards located on the page.
func (it *CardIterator) Len() int { return len(it.images) }

// Errors returns the extraction errors recorded so far.
func (it *CardIterator) Errors() []*types.ExtractionError { return it.errs }

// safeExtract turns a panic while reading one card into a fully sentineled card.
func (it *CardIterator) safeExtract(idx int) (card types.RawCard, errs []*types.ExtractionError) {
	defer func() {
		if r := recover(); r != nil {
			card = types.NewSentinelCard(idx)
			errs = []*types.ExtractionError{{
				Card:  idx,
				Field: "card",
				Err:   fmt.Errorf("panic: %v", r),
			}}
		}
	}()
	return it.extract(idx, it.images[idx])
}
