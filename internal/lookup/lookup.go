// Package lookup is the facade collaborators talk to: it resolves item
// descriptors cache-first, delegates misses to the fetch lane, and writes
// results back with identity migration.
package lookup

import (
	"context"
	"log/slog"
	"sync"

	"pricewatch/internal/item"
	"pricewatch/internal/store"
)

// Submitter is the fetch lane. Submissions for the same identifier coalesce
// into one network call.
type Submitter interface {
	Submit(id item.Identifier) <-chan item.Result
}

// Service orchestrates lookups over a cache store and a fetch lane, and
// holds the set of tracked descriptors bulk operations act on.
type Service struct {
	store *store.Store
	lane  Submitter
	log   *slog.Logger

	mu      sync.Mutex
	tracked map[string]item.Descriptor
	order   []string
}

// New creates the orchestrator. A nil logger discards.
func New(st *store.Store, lane Submitter, log *slog.Logger) *Service {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Service{
		store:   st,
		lane:    lane,
		log:     log,
		tracked: make(map[string]item.Descriptor),
	}
}

// Track registers a descriptor for the bulk refresh operations. Tracking
// the same identifier again updates the name hint but keeps its position.
func (s *Service) Track(d item.Descriptor) {
	key := d.ID.Key()
	s.mu.Lock()
	if _, ok := s.tracked[key]; !ok {
		s.order = append(s.order, key)
	}
	s.tracked[key] = d
	s.mu.Unlock()
}

// Tracked returns the tracked descriptors in registration order.
func (s *Service) Tracked() []item.Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]item.Descriptor, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.tracked[key])
	}
	return out
}

// Resolve returns the price for d. A fresh cached entry is returned as is,
// with no network activity; otherwise the lookup goes through the fetch
// lane and its result is written back before returning. The returned error
// is only ever an infrastructure failure (persistence, cancellation) —
// lookup failures come back as entries with an Unavailable price.
func (s *Service) Resolve(ctx context.Context, d item.Descriptor) (item.Entry, error) {
	if e, ok := s.store.Get(d.ID); ok && s.store.IsFresh(e) {
		return e, nil
	}

	select {
	case res := <-s.lane.Submit(d.ID):
		return s.writeBack(ctx, d, res)
	case <-ctx.Done():
		return item.Entry{}, ctx.Err()
	}
}

// SoftRefresh triggers a background resolve for every descriptor whose
// cached result is missing, stale, or unavailable. A cached failure is
// never treated as fresh, whatever its age. Returns the number of lookups
// triggered.
func (s *Service) SoftRefresh(ctx context.Context, ds []item.Descriptor) int {
	n := 0
	for _, d := range ds {
		if e, ok := s.store.Get(d.ID); ok && s.store.IsFresh(e) && e.Price.Available() {
			continue
		}
		n++
		go s.refresh(ctx, d)
	}
	return n
}

// HardRefresh triggers a background fetch for every descriptor, ignoring
// cache freshness. Duplicates still coalesce in the lane, and results are
// still written through the store.
func (s *Service) HardRefresh(ctx context.Context, ds []item.Descriptor) int {
	for _, d := range ds {
		go s.refresh(ctx, d)
	}
	return len(ds)
}

// AutoCheck soft-refreshes at most limit tracked items at startup.
func (s *Service) AutoCheck(ctx context.Context, limit int) int {
	if limit <= 0 {
		return 0
	}
	n := 0
	for _, d := range s.Tracked() {
		if n == limit {
			break
		}
		if e, ok := s.store.Get(d.ID); ok && s.store.IsFresh(e) && e.Price.Available() {
			continue
		}
		n++
		go s.refresh(ctx, d)
	}
	return n
}

// ClearCache drops the whole cache and persists the empty state.
func (s *Service) ClearCache(ctx context.Context) error {
	return s.store.Clear(ctx)
}

// Snapshot exports the cache for display and search collaborators.
func (s *Service) Snapshot() []item.Entry {
	return s.store.Snapshot()
}

// Prune applies the hard eviction horizon on demand.
func (s *Service) Prune(ctx context.Context) (int, error) {
	return s.store.PruneExpired(ctx)
}

// refresh waits for a lane result and writes it back, logging the only
// non-recoverable failure (persistence) instead of returning it, since
// bulk refreshes have no caller left to surface it to.
func (s *Service) refresh(ctx context.Context, d item.Descriptor) {
	select {
	case res := <-s.lane.Submit(d.ID):
		if _, err := s.writeBack(ctx, d, res); err != nil {
			s.log.Error("write back price", "key", d.ID.Key(), "error", err)
		}
	case <-ctx.Done():
	}
}

// writeBack stores a lane result under the descriptor's identity, letting
// the store migrate the entry when the page named a canonical catalog id.
func (s *Service) writeBack(ctx context.Context, d item.Descriptor, res item.Result) (item.Entry, error) {
	name := res.FoundName
	if name == "" {
		name = d.NameHint
	}
	if name == "" {
		name = d.ID.Key()
	}

	canonical := res.FoundID
	if canonical.IsZero() && d.ID.IsCatalog() {
		canonical = d.ID
	}
	return s.store.Put(ctx, d.ID, name, canonical, res.Price)
}
