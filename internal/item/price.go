package item

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Reason says why a price could not be produced.
type Reason string

const (
	// ReasonNotFound means the source responded but carried no matching item.
	ReasonNotFound Reason = "not_found"
	// ReasonNoListingData means the item page exists but has no structured
	// price metadata at all.
	ReasonNoListingData Reason = "no_listing_data"
	// ReasonEmpty means structured metadata is present but zero listings
	// qualified.
	ReasonEmpty Reason = "empty"
	// ReasonTransportError means the request failed at the network or HTTP
	// level.
	ReasonTransportError Reason = "transport_error"
	// ReasonTimeout means the fetch deadline expired before a response.
	ReasonTimeout Reason = "timeout"
)

// PriceKind tags the Price variant.
type PriceKind string

const (
	// PriceListed is a single authoritative numeric price.
	PriceListed PriceKind = "listed"
	// PriceComposite is two co-equal human-readable prices from independent
	// listing groups (official stores vs. keyshops).
	PriceComposite PriceKind = "composite"
	// PriceQuoted is a single human-readable price string from a source
	// that reports no currency metadata.
	PriceQuoted PriceKind = "quoted"
	// PriceUnavailable means no price could be produced; Reason says why.
	PriceUnavailable PriceKind = "unavailable"
)

// Price is the normalized result of one lookup attempt. Exactly the fields
// belonging to Kind are meaningful.
type Price struct {
	Kind PriceKind

	// Listed
	Currency   string
	MinorUnits int64

	// Composite
	Primary   string
	Secondary string

	// Quoted
	Text string

	// Unavailable
	Reason Reason
}

// Listed returns a numeric price expressed in minor units of currency.
func Listed(currency string, minorUnits int64) Price {
	return Price{Kind: PriceListed, Currency: currency, MinorUnits: minorUnits}
}

// Composite returns a two-channel human-readable price.
func Composite(primary, secondary string) Price {
	return Price{Kind: PriceComposite, Primary: primary, Secondary: secondary}
}

// Quoted returns a single human-readable price string.
func Quoted(text string) Price {
	return Price{Kind: PriceQuoted, Text: text}
}

// Unavailable returns a terminal lookup failure.
func Unavailable(reason Reason) Price {
	return Price{Kind: PriceUnavailable, Reason: reason}
}

// Available reports whether the price carries usable data. Unavailable
// results are cached like any other but are always eligible for a soft
// refresh regardless of age.
func (p Price) Available() bool {
	return p.Kind != PriceUnavailable && p.Kind != ""
}

var listedRe = regexp.MustCompile(`^([A-Z]{2,5})\|(\d+)$`)

// Encode renders the price as the stable textual form used in persisted
// snapshots: "CUR|minorunits" for listed prices, "a | b" for composite,
// the raw text for quoted, and "error:<reason>" for unavailable.
func (p Price) Encode() string {
	switch p.Kind {
	case PriceListed:
		return fmt.Sprintf("%s|%d", p.Currency, p.MinorUnits)
	case PriceComposite:
		return p.Primary + " | " + p.Secondary
	case PriceUnavailable:
		return "error:" + string(p.Reason)
	default:
		return p.Text
	}
}

// DecodePrice is the inverse of Encode. Unrecognized text decodes as a
// quoted price, so snapshots written by older versions remain readable.
func DecodePrice(s string) Price {
	if r, ok := strings.CutPrefix(s, "error:"); ok {
		return Unavailable(Reason(r))
	}
	if m := listedRe.FindStringSubmatch(s); m != nil {
		n, err := strconv.ParseInt(m[2], 10, 64)
		if err == nil {
			return Listed(m[1], n)
		}
	}
	if before, after, ok := strings.Cut(s, " | "); ok {
		return Composite(before, after)
	}
	return Quoted(s)
}

func (p Price) String() string {
	return p.Encode()
}
