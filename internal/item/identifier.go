package item

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Namespace distinguishes the two kinds of catalog entries the remote
// source tracks: standalone applications and bundles.
type Namespace string

const (
	// NamespaceApp is a standalone application catalog entry.
	NamespaceApp Namespace = "app"
	// NamespaceSub is a bundle ("subscription") catalog entry.
	NamespaceSub Namespace = "sub"
)

// Identifier is a canonical lookup key for a priced item: either a
// free-text name or a numeric catalog id qualified by a namespace.
// The zero value means "no identifier".
type Identifier struct {
	// Name is the free-text name. Set only when no catalog id is known.
	Name string

	// Namespace and CatalogID identify a catalog entry. Namespace is
	// empty for name-based identifiers.
	Namespace Namespace
	CatalogID int64
}

// ByName returns a name-based identifier.
func ByName(name string) Identifier {
	return Identifier{Name: name}
}

// ByCatalogID returns a catalog-id-based identifier.
func ByCatalogID(ns Namespace, id int64) Identifier {
	return Identifier{Namespace: ns, CatalogID: id}
}

// IsCatalog reports whether the identifier carries a catalog id.
func (id Identifier) IsCatalog() bool {
	return id.Namespace != ""
}

// IsZero reports whether the identifier is empty.
func (id Identifier) IsZero() bool {
	return id.Name == "" && id.Namespace == ""
}

// Key returns the stable string encoding used as the cache map key:
// "app/<id>" or "sub/<id>" for catalog identifiers, the raw name otherwise.
func (id Identifier) Key() string {
	if id.IsCatalog() {
		return fmt.Sprintf("%s/%d", id.Namespace, id.CatalogID)
	}
	return id.Name
}

var catalogKeyRe = regexp.MustCompile(`^(app|sub)/(\d+)$`)

// ParseKey is the inverse of Key. A key of the form "app/<digits>" or
// "sub/<digits>" parses as a catalog identifier; anything else is a name.
func ParseKey(key string) Identifier {
	if m := catalogKeyRe.FindStringSubmatch(key); m != nil {
		n, err := strconv.ParseInt(m[2], 10, 64)
		if err == nil {
			return ByCatalogID(Namespace(m[1]), n)
		}
	}
	return ByName(key)
}

// Descriptor is what collaborators submit for tracking: an identifier plus
// an optional display-name hint taken from the page the item was found on.
type Descriptor struct {
	ID       Identifier
	NameHint string
}

// Classification splits items into the general catalog population and the
// small fixed set of fast-moving commodity items.
type Classification int

const (
	// Standard items use the general catalog source and a 7-day
	// freshness window.
	Standard Classification = iota
	// Volatile items use dedicated per-item sources and a 24-hour
	// freshness window.
	Volatile
)

func (c Classification) String() string {
	if c == Volatile {
		return "volatile"
	}
	return "standard"
}

// volatileNames is the fixed set of commodity items whose market moves
// fast enough to need the short freshness window and a dedicated source.
var volatileNames = map[string]struct{}{
	"gems":                      {},
	"sack of gems":              {},
	"mann co. supply crate key": {},
}

// Classify derives the classification from an item's canonical name (or,
// when no name is known, its key). The match is case-insensitive.
func Classify(nameOrKey string) Classification {
	if _, ok := volatileNames[strings.ToLower(nameOrKey)]; ok {
		return Volatile
	}
	return Standard
}
