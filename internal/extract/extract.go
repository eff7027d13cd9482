// Package extract isolates all source-format knowledge: given a fetched
// document it produces a normalized price, so nothing else in the system
// branches on page shape. The closed set of variants is: catalog search by
// name, catalog page by id, and the two dedicated volatile-item sources.
package extract

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"pricewatch/internal/item"
)

// searchPlatforms restricts catalog searches to PC storefronts.
const searchPlatforms = "1,2,4,2048,4096,8192"

// placeholderCurrency stands in when the page's structured metadata names
// no currency.
const placeholderCurrency = "LTS"

// Request is one planned lookup: the page to fetch and the extractor that
// turns its document into a result.
type Request struct {
	URL     string
	Extract func(doc *goquery.Document) item.Result
}

// Planner maps an identifier to the single source page that prices it.
// Base URLs are configurable so tests can point at local servers.
type Planner struct {
	// CatalogBaseURL is the price-listing catalog (search + item pages).
	CatalogBaseURL string
	// MarketBaseURL is the community market hosting the gems listing.
	MarketBaseURL string
	// ManncoBaseURL is the store hosting the crate-key listing.
	ManncoBaseURL string
}

// For plans the lookup for id. Volatile items resolve through their
// dedicated one-off endpoints; everything else goes to the catalog.
func (p Planner) For(id item.Identifier) Request {
	if id.IsCatalog() {
		return Request{
			URL:     fmt.Sprintf("%s/steam/%s/%d/", p.CatalogBaseURL, id.Namespace, id.CatalogID),
			Extract: func(doc *goquery.Document) item.Result { return catalogPage(id, doc) },
		}
	}

	switch strings.ToLower(id.Name) {
	case "gems", "sack of gems":
		return Request{
			URL:     p.MarketBaseURL + "/market/listings/753/753-Sack%20of%20Gems",
			Extract: func(doc *goquery.Document) item.Result { return marketListing(id, doc) },
		}
	case "mann co. supply crate key":
		return Request{
			URL:     p.ManncoBaseURL + "/item/440-mann-co-supply-crate-key",
			Extract: func(doc *goquery.Document) item.Result { return manncoItem(id, doc) },
		}
	}

	return Request{
		URL: fmt.Sprintf("%s/search/?platform=%s&title=%s",
			p.CatalogBaseURL, searchPlatforms, url.QueryEscape(id.Name)),
		Extract: func(doc *goquery.Document) item.Result { return searchPage(id, doc) },
	}
}

var steamHrefRe = regexp.MustCompile(`/steam/(app|sub)/(\d+)/`)

// searchPage extracts a price from a by-name search result page, plus the
// canonical catalog id and display name of the first qualifying result so
// the cache can migrate the entry's identity.
func searchPage(id item.Identifier, doc *goquery.Document) item.Result {
	link := doc.Find(`.game-info-title[href*="/steam/app/"]`).First()
	if link.Length() == 0 {
		return item.Result{ID: id, Price: item.Unavailable(item.ReasonNotFound)}
	}

	res := item.Result{
		ID:        id,
		Price:     structuredPrice(doc),
		FoundName: strings.TrimSpace(link.Find(`[itemprop="name"]`).First().Text()),
	}
	if m := steamHrefRe.FindStringSubmatch(link.AttrOr("href", "")); m != nil {
		if n, err := strconv.ParseInt(m[2], 10, 64); err == nil {
			res.FoundID = item.ByCatalogID(item.Namespace(m[1]), n)
		}
	}
	return res
}

// catalogPage extracts a price from an item's own catalog page, plus its
// canonical display name.
func catalogPage(id item.Identifier, doc *goquery.Document) item.Result {
	return item.Result{
		ID:        id,
		Price:     structuredPrice(doc),
		FoundName: strings.TrimSpace(doc.Find(`a[itemprop="item"].active span[itemprop="name"]`).First().Text()),
	}
}

// marketListing extracts the gems price from the community market page.
// The promoted buy-order header is the primary field; the first plain
// listing price is the fallback.
func marketListing(id item.Identifier, doc *goquery.Document) item.Result {
	text := strings.TrimSpace(doc.Find(".market_commodity_orders_header_promote").First().Text())
	if text == "" {
		text = strings.TrimSpace(doc.Find(".market_listing_price").First().Text())
	}
	if text == "" {
		return item.Result{ID: id, Price: item.Unavailable(item.ReasonNotFound), FoundName: id.Name}
	}
	return item.Result{ID: id, Price: item.Quoted(text), FoundName: id.Name}
}

// manncoItem extracts the crate-key price. This source has no fallback
// field.
func manncoItem(id item.Identifier, doc *goquery.Document) item.Result {
	text := strings.TrimSpace(doc.Find(".ecurrency").First().Text())
	if text == "" {
		return item.Result{ID: id, Price: item.Unavailable(item.ReasonNotFound), FoundName: id.Name}
	}
	return item.Result{ID: id, Price: item.Quoted(text), FoundName: id.Name}
}

// structuredPrice reads a catalog page's listing block. A page without the
// ld+json metadata block has no listing data at all. With it, the cheapest
// Steam-keyed listing across official stores and keyshops wins; when none
// parses numerically, the page's plain numeric cells are reported verbatim,
// one per listing group.
func structuredPrice(doc *goquery.Document) item.Price {
	ld := doc.Find(`script[type="application/ld+json"]`)
	if ld.Length() == 0 {
		return item.Unavailable(item.ReasonNoListingData)
	}

	currency := placeholderCurrency
	var meta struct {
		Offers struct {
			PriceCurrency string `json:"priceCurrency"`
		} `json:"offers"`
	}
	if err := json.Unmarshal([]byte(ld.First().Text()), &meta); err == nil && meta.Offers.PriceCurrency != "" {
		currency = meta.Offers.PriceCurrency
	}

	// Listing prices always carry exactly two fractional digits, so
	// stripping non-digits yields exact integer minor units.
	best := int64(-1)
	doc.Find("#official-stores .similar-deals-container, #keyshops .similar-deals-container").
		Each(func(_ int, deal *goquery.Selection) {
			if deal.Find("svg.svg-icon-drm-steam").Length() == 0 {
				return
			}
			cents, ok := parseMinorUnits(deal.Find(".price-inner").First().Text())
			if !ok {
				return
			}
			if best < 0 || cents < best {
				best = cents
			}
		})
	if best >= 0 {
		return item.Listed(currency, best)
	}

	var texts []string
	doc.Find(".price-inner.numeric").Each(func(_ int, cell *goquery.Selection) {
		if t := strings.TrimSpace(cell.Text()); t != "" {
			texts = append(texts, t)
		}
	})
	switch len(texts) {
	case 0:
		return item.Unavailable(item.ReasonEmpty)
	case 1:
		return item.Quoted(texts[0])
	default:
		return item.Composite(texts[0], texts[1])
	}
}

// parseMinorUnits strips every non-digit rune and parses the remainder.
func parseMinorUnits(text string) (int64, bool) {
	var digits strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return 0, false
	}
	n, err := strconv.ParseInt(digits.String(), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
