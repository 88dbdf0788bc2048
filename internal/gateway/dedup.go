package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"movicloud/internal/cache"
	"movicloud/internal/observability"
)

const (
	// DefaultResponseTTL is how long a cached response is served.
	DefaultResponseTTL = 5 * time.Minute
	// DefaultRequestTimeout bounds each shared upstream call.
	DefaultRequestTimeout = 15 * time.Second
)

// Producer performs the network call for a key.
type Producer func(ctx context.Context) (json.RawMessage, error)

// Deduper serves fresh responses from the cache and collapses concurrent
// misses for the same key onto a single producer call.
type Deduper struct {
	store   cache.Store
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
	metrics *observability.Metrics

	// mu guards group and gen, and orders cache writes against ClearAll.
	mu    sync.Mutex
	group *singleflight.Group
	gen   uint64
}

// DeduperOptions tunes a Deduper. Zero values select defaults.
type DeduperOptions struct {
	TTL            time.Duration
	RequestTimeout time.Duration
	Now            func() time.Time
	Metrics        *observability.Metrics
}

// NewDeduper creates a Deduper over store.
func NewDeduper(store cache.Store, opts DeduperOptions) *Deduper {
	d := &Deduper{
		store:   store,
		ttl:     opts.TTL,
		timeout: opts.RequestTimeout,
		now:     opts.Now,
		metrics: opts.Metrics,
		group:   &singleflight.Group{},
	}
	if d.ttl <= 0 {
		d.ttl = DefaultResponseTTL
	}
	if d.timeout <= 0 {
		d.timeout = DefaultRequestTimeout
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// Do returns the fresh cached value for key, joins an in-flight call for key,
// or runs produce exactly once and caches its successful result.
// Failures are never cached. Cancelling ctx stops this caller waiting but
// leaves the shared call running for the others.
func (d *Deduper) Do(ctx context.Context, key string, produce Producer) (json.RawMessage, error) {
	if v, ok := d.lookup(ctx, key); ok {
		d.metrics.CacheHit()
		return v, nil
	}
	d.metrics.CacheMiss()

	d.mu.Lock()
	group, gen := d.group, d.gen
	d.mu.Unlock()

	detached := context.WithoutCancel(ctx)
	leader := false
	ch := group.DoChan(key, func() (interface{}, error) {
		leader = true
		if v, ok := d.lookup(detached, key); ok {
			return v, nil
		}

		callCtx, cancel := context.WithTimeout(detached, d.timeout)
		defer cancel()

		v, err := produce(callCtx)
		if err != nil {
			return nil, err
		}
		d.save(detached, key, gen, v)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if !leader {
			d.metrics.DedupJoin()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(json.RawMessage), nil
	}
}

// ClearAll empties the response cache and the in-flight registry. Calls
// already running still answer their waiters but their results are dropped.
func (d *Deduper) ClearAll(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen++
	d.group = &singleflight.Group{}
	d.metrics.CacheClear()
	return d.store.Clear(ctx)
}

func (d *Deduper) lookup(ctx context.Context, key string) (json.RawMessage, bool) {
	entry, err := d.store.Get(ctx, key)
	if err != nil {
		slog.Warn("response cache read failed", "key", key, "error", err)
		return nil, false
	}
	if !entry.Fresh(d.now(), d.ttl) {
		return nil, false
	}
	return entry.Value, true
}

func (d *Deduper) save(ctx context.Context, key string, gen uint64, value json.RawMessage) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if gen != d.gen {
		return
	}
	entry := &cache.Entry{Key: key, StoredAt: d.now(), Value: value}
	if err := d.store.Set(ctx, entry); err != nil {
		slog.Warn("response cache write failed", "key", key, "error", err)
	}
}
