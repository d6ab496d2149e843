package types

import (
	"strings"
	"time"
)

// Sentinel is substituted for any card field that could not be extracted.
const Sentinel = "None"

// Status is the sale state of a listing.
type Status string

const (
	StatusActive  Status = "Active"
	StatusSoldOut Status = "SoldOut"
)

// RawCard is the as-scraped fragment of one listing card.
// Fields that could not be read hold Sentinel.
type RawCard struct {
	// Index is the card's position on its page.
	Index int

	// Page is the search result page the card was found on.
	Page int

	ImageURL    string
	StatusLabel string
	SoldOut     bool

	// InfoText is the title/price/date bundle as read from the card.
	InfoText  string
	Title     string
	PriceText string
	DateText  string

	LocationText string
	Href         string
}

// NewSentinelCard returns a card with every field set to Sentinel.
func NewSentinelCard(index int) RawCard {
	return RawCard{
		Index:        index,
		ImageURL:     Sentinel,
		StatusLabel:  Sentinel,
		InfoText:     Sentinel,
		Title:        Sentinel,
		PriceText:    Sentinel,
		DateText:     Sentinel,
		LocationText: Sentinel,
		Href:         Sentinel,
	}
}

// Listing is one canonical marketplace record eligible for indexing.
type Listing struct {
	ID           string     `json:"-"                      bson:"_id,omitempty"`
	Category     string     `json:"category"               bson:"category"`
	Title        string     `json:"title"                  bson:"title"`
	Price        int64      `json:"price"                  bson:"price"`
	RegisteredAt *time.Time `json:"registeredAt,omitempty" bson:"registeredAt,omitempty"`
	Location     string     `json:"location"               bson:"location"`
	Link         string     `json:"link"                   bson:"link"`
	ImageSrc     string     `json:"imageSrc"               bson:"imageSrc"`
	Status       Status     `json:"status"                 bson:"status"`

	// Seq orders documents with equal prices.
	Seq       int64     `json:"-"                   bson:"seq"`
	CrawledAt time.Time `json:"crawledAt,omitempty" bson:"crawledAt"`

	// Raw is the card the listing was built from; it is not persisted.
	Raw *RawCard `json:"-" bson:"-"`
}

// NewListing starts a listing from a scraped card. Price, date and link
// are filled in by the normalizer.
func NewListing(card RawCard, category string) *Listing {
	status := StatusActive
	if card.SoldOut {
		status = StatusSoldOut
	}
	c := card
	return &Listing{
		Category: category,
		Title:    card.Title,
		Location: card.LocationText,
		ImageSrc: card.ImageURL,
		Status:   status,
		Raw:      &c,
	}
}

// Key returns the dedup key: the link, or the image URL when the link is absent.
func (l *Listing) Key() string {
	if present(l.Link) {
		return l.Link
	}
	if present(l.ImageSrc) {
		return l.ImageSrc
	}
	return ""
}

// HasLink reports whether the listing carries a usable link.
func (l *Listing) HasLink() bool { return present(l.Link) }

// HasImage reports whether the listing carries a usable image URL.
func (l *Listing) HasImage() bool { return present(l.ImageSrc) }

func present(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && s != Sentinel
}

// IsSentinel reports whether s is empty or the extraction sentinel.
func IsSentinel(s string) bool { return !present(s) }
