package pipeline

import (
	"errors"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/IshaanNene/ListingScout/internal/types"
)

// PriceNormalizeMiddleware parses the raw price text. Contact-for-price
// and unparseable prices drop the listing; they never default to zero.
type PriceNormalizeMiddleware struct {
	logger *slog.Logger
}

func NewPriceNormalizeMiddleware(logger *slog.Logger) *PriceNormalizeMiddleware {
	return &PriceNormalizeMiddleware{logger: logger.With("component", "price_normalize")}
}

func (m *PriceNormalizeMiddleware) Name() string { return "price_normalize" }

func (m *PriceNormalizeMiddleware) Process(l *types.Listing) (*types.Listing, error) {
	if l.Raw == nil {
		return l, nil
	}
	price, err := NormalizePrice(l.Raw.PriceText)
	if err != nil {
		if !errors.Is(err, types.ErrContactForPrice) {
			m.logger.Debug("price dropped", "raw", l.Raw.PriceText, "title", l.Title, "error", err)
		}
		return nil, nil
	}
	l.Price = price
	return l, nil
}

// DateNormalizeMiddleware resolves the raw relative date against a fixed
// reference time. Unknown phrases leave RegisteredAt unset.
type DateNormalizeMiddleware struct {
	now    time.Time
	logger *slog.Logger
}

func NewDateNormalizeMiddleware(now time.Time, logger *slog.Logger) *DateNormalizeMiddleware {
	return &DateNormalizeMiddleware{
		now:    now,
		logger: logger.With("component", "date_normalize"),
	}
}

func (m *DateNormalizeMiddleware) Name() string { return "date_normalize" }

func (m *DateNormalizeMiddleware) Process(l *types.Listing) (*types.Listing, error) {
	if l.Raw == nil {
		return l, nil
	}
	t, err := NormalizeDate(l.Raw.DateText, m.now)
	if err != nil {
		m.logger.Debug("registration date unknown", "raw", l.Raw.DateText, "title", l.Title)
		l.RegisteredAt = nil
		return l, nil
	}
	l.RegisteredAt = &t
	return l, nil
}

// LinkResolveMiddleware turns the card's relative href into an absolute,
// canonical link and resolves relative image URLs.
type LinkResolveMiddleware struct {
	base *url.URL
}

func NewLinkResolveMiddleware(base *url.URL) *LinkResolveMiddleware {
	return &LinkResolveMiddleware{base: base}
}

func (m *LinkResolveMiddleware) Name() string { return "link_resolve" }

func (m *LinkResolveMiddleware) Process(l *types.Listing) (*types.Listing, error) {
	if l.Raw != nil && !types.IsSentinel(l.Raw.Href) {
		l.Link = m.resolve(l.Raw.Href)
	} else {
		l.Link = ""
	}
	if l.HasImage() {
		l.ImageSrc = m.resolve(l.ImageSrc)
	}
	return l, nil
}

func (m *LinkResolveMiddleware) resolve(ref string) string {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ""
	}
	if m.base != nil {
		u = m.base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return CanonicalizeURL(u.String())
}

// FilterByRange keeps listings of the option's category whose price lies
// in [MinPrice, MaxPrice], sorted ascending by price. Equal prices keep
// their scrape order.
func FilterByRange(listings []*types.Listing, opt types.SearchOption) []*types.Listing {
	category := strings.TrimSpace(opt.Category)
	out := make([]*types.Listing, 0, len(listings))
	for _, l := range listings {
		if l.Category != category || !opt.Contains(l.Price) {
			continue
		}
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Price < out[j].Price
	})
	return out
}
