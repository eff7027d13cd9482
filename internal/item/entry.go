package item

import (
	"encoding/json"
	"time"
)

// Entry is one cached lookup result. At most one live entry exists per
// resolved real-world item: when a name-keyed lookup discovers a catalog
// id, the store migrates the entry to the catalog key.
type Entry struct {
	// Key is the identifier the entry is stored under.
	Key Identifier

	// Name is the canonical display name discovered on the source page,
	// or the submitted name when none was discovered.
	Name string

	// CanonicalID is the catalog identifier the item resolved to, zero
	// when the item is only known by name.
	CanonicalID Identifier

	// Price is the normalized result of the last lookup attempt,
	// including terminal failures.
	Price Price

	// WrittenAt is when the entry was last written.
	WrittenAt time.Time
}

// Classification derives the entry's freshness class from its canonical
// name, falling back to the key when no name is known.
func (e Entry) Classification() Classification {
	name := e.Name
	if name == "" {
		name = e.Key.Key()
	}
	return Classify(name)
}

// Age returns how long ago the entry was written.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.WrittenAt)
}

// entryRecord is the persisted wire form. Field names are frozen: snapshots
// written by earlier versions of the system must keep loading.
type entryRecord struct {
	Price     string `json:"price"`
	Name      string `json:"name"`
	AppID     string `json:"appid,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// MarshalJSON encodes the entry without its key; the key is the enclosing
// map key in the persisted snapshot.
func (e Entry) MarshalJSON() ([]byte, error) {
	rec := entryRecord{
		Price:     e.Price.Encode(),
		Name:      e.Name,
		Timestamp: e.WrittenAt.UnixMilli(),
	}
	if !e.CanonicalID.IsZero() {
		rec.AppID = e.CanonicalID.Key()
	}
	return json.Marshal(rec)
}

// UnmarshalJSON decodes the persisted form. The caller owns filling in Key
// from the enclosing map.
func (e *Entry) UnmarshalJSON(b []byte) error {
	var rec entryRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return err
	}
	e.Price = DecodePrice(rec.Price)
	e.Name = rec.Name
	e.CanonicalID = Identifier{}
	if rec.AppID != "" {
		if id := ParseKey(rec.AppID); id.IsCatalog() {
			e.CanonicalID = id
		}
	}
	e.WrittenAt = time.UnixMilli(rec.Timestamp)
	return nil
}

// Result is what a completed fetch delivers to every coalesced waiter.
type Result struct {
	// ID is the identifier the fetch was submitted under.
	ID Identifier

	// Price is the extraction outcome, never the zero value.
	Price Price

	// FoundName is the canonical display name read off the source page,
	// empty when the page named none.
	FoundName string

	// FoundID is the canonical catalog identifier discovered on a search
	// page, zero when none was discovered.
	FoundID Identifier
}
