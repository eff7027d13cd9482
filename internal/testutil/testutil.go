package testutil

import (
	"context"
	"sync"
	"time"

	"pricewatch/internal/item"
)

// Clock is a manually advanced clock for freshness and pruning tests.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at now.
func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

// Now returns the current fake time. Pass c.Now as the store's clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Persister is an in-memory store.Persister recording every save.
type Persister struct {
	mu sync.Mutex

	// Initial is what Load returns; nil loads an empty cache.
	Initial map[string]item.Entry
	// LoadErr, when set, fails Load.
	LoadErr error
	// SaveErr, when set, fails Save.
	SaveErr error

	saves int
	last  map[string]item.Entry
}

// Load implements store.Persister.
func (p *Persister) Load(context.Context) (map[string]item.Entry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.LoadErr != nil {
		return nil, p.LoadErr
	}
	out := make(map[string]item.Entry, len(p.Initial))
	for k, v := range p.Initial {
		out[k] = v
	}
	return out, nil
}

// Save implements store.Persister.
func (p *Persister) Save(_ context.Context, entries map[string]item.Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.SaveErr != nil {
		return p.SaveErr
	}
	p.saves++
	p.last = make(map[string]item.Entry, len(entries))
	for k, v := range entries {
		p.last[k] = v
	}
	return nil
}

// Saves returns how many times Save succeeded.
func (p *Persister) Saves() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saves
}

// Last returns the most recently saved snapshot, nil if none.
func (p *Persister) Last() map[string]item.Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Submitter is a fake fetch lane for orchestrator tests. Each submitted
// identifier resolves immediately with the configured result.
type Submitter struct {
	mu sync.Mutex

	// Results maps identifier key to the result delivered to waiters.
	// Identifiers with no mapping resolve as Unavailable(not_found).
	Results map[string]item.Result

	submitted []item.Identifier
}

// Submit implements lookup.Submitter.
func (s *Submitter) Submit(id item.Identifier) <-chan item.Result {
	s.mu.Lock()
	s.submitted = append(s.submitted, id)
	res, ok := s.Results[id.Key()]
	s.mu.Unlock()

	if !ok {
		res = item.Result{ID: id, Price: item.Unavailable(item.ReasonNotFound)}
	}
	ch := make(chan item.Result, 1)
	ch <- res
	return ch
}

// Submitted returns every identifier submitted so far, in order.
func (s *Submitter) Submitted() []item.Identifier {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]item.Identifier, len(s.submitted))
	copy(out, s.submitted)
	return out
}
