// Package coordinator serializes every outbound lookup behind a single
// rate-limited lane, so the aggregate request rate to the remote sources
// never exceeds the configured ceiling.
package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"
	"resty.dev/v3"

	"pricewatch/internal/extract"
	"pricewatch/internal/item"
)

// DefaultInterval keeps the lane within the catalog source's ceiling of
// ten requests per minute.
const DefaultInterval = 6 * time.Second

// Planner plans the source page for an identifier.
type Planner interface {
	For(id item.Identifier) extract.Request
}

// task tracks one pending identifier and everyone waiting on it.
type task struct {
	id      item.Identifier
	waiters []chan item.Result
}

// Coordinator owns the FIFO queue of distinct pending identifiers and the
// in-flight map used for coalescing. Submissions for an identifier already
// queued or in flight attach to the existing task, so duplicate triggers
// never double-spend rate-limited capacity.
type Coordinator struct {
	planner Planner
	client  *resty.Client
	limiter *rate.Limiter
	jitter  time.Duration
	log     *slog.Logger

	mu      sync.Mutex
	queue   []string
	pending map[string]*task
	wake    chan struct{}
}

// New creates a coordinator draining one request per interval. A positive
// jitter adds a uniform random delay in [0, jitter) to each tick so
// independent consumers do not burst in sync. A nil logger discards.
func New(planner Planner, client *resty.Client, interval, jitter time.Duration, log *slog.Logger) *Coordinator {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Coordinator{
		planner: planner,
		client:  client,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		jitter:  jitter,
		log:     log,
		pending: make(map[string]*task),
		wake:    make(chan struct{}, 1),
	}
}

// Submit queues a lookup for id and returns a channel delivering the
// eventual result. Every failure path resolves to an Unavailable price;
// the channel always receives exactly one value while the coordinator
// runs. Cancellation of an individual lookup is not supported: a
// submitted fetch runs to completion or terminal failure.
func (c *Coordinator) Submit(id item.Identifier) <-chan item.Result {
	ch := make(chan item.Result, 1)
	key := id.Key()

	c.mu.Lock()
	if t, ok := c.pending[key]; ok {
		t.waiters = append(t.waiters, ch)
		c.mu.Unlock()
		return ch
	}
	c.pending[key] = &task{id: id, waiters: []chan item.Result{ch}}
	c.queue = append(c.queue, key)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return ch
}

// Run drains the lane until ctx is cancelled: one queue head per interval
// tick, in first-submitted order. The fetch itself is not gated by the
// timer once started; its latency is additive to the interval.
func (c *Coordinator) Run(ctx context.Context) {
	for {
		c.mu.Lock()
		idle := len(c.queue) == 0
		c.mu.Unlock()

		if idle {
			select {
			case <-ctx.Done():
				return
			case <-c.wake:
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return
		}
		if c.jitter > 0 && !sleep(ctx, rand.N(c.jitter)) {
			return
		}

		c.mu.Lock()
		if len(c.queue) == 0 {
			c.mu.Unlock()
			continue
		}
		key := c.queue[0]
		c.queue = c.queue[1:]
		t := c.pending[key]
		c.mu.Unlock()

		res := c.fetch(ctx, t.id)

		// Waiters attached while the fetch was in flight coalesce too;
		// collect them only after clearing the in-flight entry.
		c.mu.Lock()
		delete(c.pending, key)
		waiters := t.waiters
		c.mu.Unlock()

		for _, w := range waiters {
			w <- res
		}
	}
}

// fetch performs one attempt against the planned source page. Transport
// failures, deadline exhaustion, and HTTP-level failures are terminal for
// the attempt; a retry is a fresh Submit, left to the caller's policy.
func (c *Coordinator) fetch(ctx context.Context, id item.Identifier) item.Result {
	req := c.planner.For(id)
	c.log.Debug("fetching price", "key", id.Key(), "url", req.URL)

	resp, err := c.client.R().SetContext(ctx).Get(req.URL)
	if err != nil {
		reason := item.ReasonTransportError
		var ne net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
			reason = item.ReasonTimeout
		}
		c.log.Warn("fetch failed", "key", id.Key(), "reason", reason, "error", err)
		return item.Result{ID: id, Price: item.Unavailable(reason)}
	}
	if !resp.IsSuccess() {
		c.log.Warn("fetch failed", "key", id.Key(), "status", resp.StatusCode())
		return item.Result{ID: id, Price: item.Unavailable(item.ReasonTransportError)}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.String()))
	if err != nil {
		c.log.Warn("malformed page", "key", id.Key(), "error", err)
		return item.Result{ID: id, Price: item.Unavailable(item.ReasonTransportError)}
	}

	res := req.Extract(doc)
	c.log.Debug("fetched price", "key", id.Key(), "price", res.Price.Encode())
	return res
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
