package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"pricewatch/internal/item"
)

// Freshness and eviction policy. Freshness is a read-time predicate, never a
// stored flag, so changing these does not require migrating the snapshot.
const (
	// FreshnessStandard is how long a standard item's price stays usable.
	FreshnessStandard = 7 * 24 * time.Hour
	// FreshnessVolatile is how long a volatile item's price stays usable.
	FreshnessVolatile = 24 * time.Hour
	// HardHorizon is the absolute maximum entry age before unconditional
	// deletion, independent of classification.
	HardHorizon = 30 * 24 * time.Hour
)

// Persister loads and saves the whole cache snapshot. Save is an atomic
// whole-state write: a partially written snapshot is never visible.
type Persister interface {
	Load(ctx context.Context) (map[string]item.Entry, error)
	Save(ctx context.Context, entries map[string]item.Entry) error
}

// Store is the durable price cache: a mapping from identifier key to entry,
// persisted after every mutation. Safe for concurrent use.
type Store struct {
	persister Persister
	now       func() time.Time

	mu      sync.RWMutex
	entries map[string]item.Entry
}

// New creates an empty store backed by p. A nil now defaults to time.Now;
// tests inject a fake clock.
func New(p Persister, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		persister: p,
		now:       now,
		entries:   make(map[string]item.Entry),
	}
}

// Load replaces the in-memory state with the persisted snapshot. Called once
// at startup, before any lookups run.
func (s *Store) Load(ctx context.Context) error {
	loaded, err := s.persister.Load(ctx)
	if err != nil {
		return fmt.Errorf("load cache snapshot: %w", err)
	}

	entries := make(map[string]item.Entry, len(loaded))
	for key, e := range loaded {
		e.Key = item.ParseKey(key)
		entries[key] = e
	}

	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
	return nil
}

// Get returns the entry stored under id, if any. Pure lookup, no side
// effects.
func (s *Store) Get(id item.Identifier) (item.Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id.Key()]
	return e, ok
}

// Len returns the number of live entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// IsFresh reports whether the entry's age is within its classification's
// freshness window. Whether the cached price is usable at all is a separate
// question (see item.Price.Available).
func (s *Store) IsFresh(e item.Entry) bool {
	window := FreshnessStandard
	if e.Classification() == item.Volatile {
		window = FreshnessVolatile
	}
	return e.Age(s.now()) < window
}

// Put writes the lookup result for key and persists the snapshot. When a
// canonical catalog id was discovered for a name-keyed item, the entry
// migrates to the catalog key and the name-keyed entry is deleted in the
// same mutation, so at most one live entry exists per resolved item. Any
// other entry already claiming the same canonical id is deleted too.
//
// A persist failure is returned, never swallowed: a lost write would
// desynchronize the in-memory cache from durable state.
func (s *Store) Put(ctx context.Context, key item.Identifier, name string, canonical item.Identifier, price item.Price) (item.Entry, error) {
	entry := item.Entry{
		Name:      name,
		Price:     price,
		WrittenAt: s.now(),
	}

	storeKey := key
	if canonical.IsCatalog() {
		storeKey = canonical
		entry.CanonicalID = canonical
	}
	entry.Key = storeKey

	s.mu.Lock()
	// Evict every other entry resolving to the same item.
	if canonical.IsCatalog() {
		for k, e := range s.entries {
			if k != storeKey.Key() && e.CanonicalID == canonical {
				delete(s.entries, k)
			}
		}
	}
	if storeKey != key {
		delete(s.entries, key.Key())
	}
	s.entries[storeKey.Key()] = entry
	err := s.save(ctx)
	s.mu.Unlock()

	if err != nil {
		return entry, err
	}
	return entry, nil
}

// PruneExpired deletes every entry older than the hard horizon, regardless
// of classification, and persists only if anything was removed. Runs once
// at startup and may be invoked on demand. Returns the number of entries
// removed.
func (s *Store) PruneExpired(ctx context.Context) (int, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, e := range s.entries {
		if e.Age(now) > HardHorizon {
			delete(s.entries, k)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, s.save(ctx)
}

// Clear drops the entire mapping and persists the empty state.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]item.Entry)
	return s.save(ctx)
}

// Snapshot returns a read-only copy of all entries sorted by canonical name
// for stable display. No mutation.
func (s *Store) Snapshot() []item.Entry {
	s.mu.RLock()
	out := make([]item.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Key.Key() < out[j].Key.Key()
	})
	return out
}

// save persists the current state. Callers must hold mu.
func (s *Store) save(ctx context.Context) error {
	snapshot := make(map[string]item.Entry, len(s.entries))
	for k, e := range s.entries {
		snapshot[k] = e
	}
	if err := s.persister.Save(ctx, snapshot); err != nil {
		return fmt.Errorf("save cache snapshot: %w", err)
	}
	return nil
}
