package parser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/IshaanNene/ListingScout/internal/types"
)

// Card layout under the card node, by element child index.
const (
	childMedia    = 0
	childInfo     = 1
	childLocation = 2
)

// extractCard reads one card given the node of its product image.
// The card node is the image's grandparent. Fields that cannot be read
// keep the sentinel and produce an ExtractionError.
func extractCard(idx int, image *html.Node, labels Labels) (types.RawCard, []*types.ExtractionError) {
	card := types.NewSentinelCard(idx)
	var errs []*types.ExtractionError
	fail := func(field string, err error) {
		errs = append(errs, &types.ExtractionError{Card: idx, Field: field, Err: err})
	}

	node := cardNode(image)
	if node == nil {
		fail("card", fmt.Errorf("%w: image has no card ancestor", types.ErrMissingField))
		return card, errs
	}
	sel := goquery.NewDocumentFromNode(node).Selection

	if href, ok := sel.Attr("href"); ok && strings.TrimSpace(href) != "" {
		card.Href = strings.TrimSpace(href)
	} else {
		fail("href", types.ErrMissingField)
	}

	children := sel.Children()

	if children.Length() > childMedia {
		readMedia(&card, children.Eq(childMedia), labels, fail)
	} else {
		fail("image", fmt.Errorf("%w: no media child", types.ErrMissingField))
	}

	if children.Length() > childInfo {
		readInfo(&card, children.Eq(childInfo), labels.InfoDelimiter, fail)
	} else {
		fail("info", fmt.Errorf("%w: no info child", types.ErrMissingField))
	}

	if children.Length() > childLocation {
		if loc := strings.TrimSpace(children.Eq(childLocation).Text()); loc != "" {
			card.LocationText = loc
		}
	} else {
		fail("location", fmt.Errorf("%w: no location child", types.ErrMissingField))
	}

	return card, errs
}

func readMedia(card *types.RawCard, media *goquery.Selection, labels Labels, fail func(string, error)) {
	imgs := media.Find("img")
	if src, ok := imgs.First().Attr("src"); ok && strings.TrimSpace(src) != "" {
		card.ImageURL = strings.TrimSpace(src)
	} else {
		fail("image", fmt.Errorf("%w: img src", types.ErrMissingField))
	}

	card.StatusLabel = ""
	if labels.SoldOut == "" {
		return
	}
	imgs.EachWithBreak(func(_ int, img *goquery.Selection) bool {
		if alt, _ := img.Attr("alt"); alt == labels.SoldOut {
			card.SoldOut = true
			card.StatusLabel = alt
			return false
		}
		return true
	})
}

func readInfo(card *types.RawCard, info *goquery.Selection, delim string, fail func(string, error)) {
	if len(info.Nodes) == 0 {
		fail("info", types.ErrMissingField)
		return
	}
	text := joinText(info.Nodes[0], delim)
	var parts []string
	if text != "" {
		card.InfoText = text
		parts = strings.Split(text, delim)
	}

	fields := []struct {
		name string
		dst  *string
	}{
		{"title", &card.Title},
		{"price", &card.PriceText},
		{"date", &card.DateText},
	}
	for i, f := range fields {
		if i < len(parts) && strings.TrimSpace(parts[i]) != "" {
			*f.dst = strings.TrimSpace(parts[i])
			continue
		}
		fail(f.name, fmt.Errorf("%w: info segment %d", types.ErrMissingField, i))
	}
}

// cardNode returns the element two levels above the image.
func cardNode(image *html.Node) *html.Node {
	if image == nil || image.Parent == nil || image.Parent.Parent == nil {
		return nil
	}
	n := image.Parent.Parent
	if n.Type != html.ElementNode {
		return nil
	}
	return n
}

// joinText joins the non-blank text nodes under n with sep, in document order.
func joinText(n *html.Node, sep string) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(parts, sep)
}
