// Package gateway implements the TMDB request pipeline: a TTL'd configuration
// cache, the direct/proxied routing policy, a response cache with per-key
// request de-duplication, and image URL construction.
package gateway

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"movicloud/internal/core"
	"movicloud/internal/observability"
)

// DefaultConfigTTL is how long a fetched configuration record is served without I/O.
const DefaultConfigTTL = 10 * time.Minute

// SettingsSource supplies the upstream configuration record.
type SettingsSource interface {
	TMDBConfig(ctx context.Context) (core.TMDBConfig, error)
}

// ConfigProvider is the read side of ConfigCache.
type ConfigProvider interface {
	Get(ctx context.Context) (core.TMDBConfig, error)
}

// ChangeFunc is called after a fetched record replaces one with different routing.
type ChangeFunc func(prev, next core.TMDBConfig)

// ConfigCache holds the last fetched configuration record for a TTL and
// guarantees at most one outstanding settings fetch.
type ConfigCache struct {
	source  SettingsSource
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
	metrics *observability.Metrics

	mu        sync.Mutex
	cfg       *core.TMDBConfig
	last      *core.TMDBConfig
	fetchedAt time.Time
	gen       uint64
	listeners []ChangeFunc

	group singleflight.Group
}

// ConfigCacheOptions tunes a ConfigCache. Zero values select defaults.
type ConfigCacheOptions struct {
	TTL          time.Duration
	FetchTimeout time.Duration
	Now          func() time.Time
	Metrics      *observability.Metrics
}

// NewConfigCache creates an empty cache over source.
func NewConfigCache(source SettingsSource, opts ConfigCacheOptions) *ConfigCache {
	c := &ConfigCache{
		source:  source,
		ttl:     opts.TTL,
		timeout: opts.FetchTimeout,
		now:     opts.Now,
		metrics: opts.Metrics,
	}
	if c.ttl <= 0 {
		c.ttl = DefaultConfigTTL
	}
	if c.timeout <= 0 {
		c.timeout = DefaultRequestTimeout
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// OnChange registers fn to be called when a refresh changes proxy routing or base URLs.
func (c *ConfigCache) OnChange(fn ChangeFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Get returns the cached record while fresh, otherwise fetches it.
// Concurrent callers share a single fetch. When the fetch fails a stale
// record is served if one exists, otherwise ErrConfigUnavailable is returned.
func (c *ConfigCache) Get(ctx context.Context) (core.TMDBConfig, error) {
	if cfg, ok := c.fresh(); ok {
		return cfg, nil
	}

	ch := c.group.DoChan("config", func() (interface{}, error) {
		return c.fetch()
	})

	select {
	case <-ctx.Done():
		return core.TMDBConfig{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return core.TMDBConfig{}, res.Err
		}
		return res.Val.(core.TMDBConfig), nil
	}
}

// ClearConfig drops the cached record and its timestamp so the next Get fetches.
// A fetch already in flight still answers its waiters but is not stored.
func (c *ConfigCache) ClearConfig() {
	c.mu.Lock()
	c.cfg = nil
	c.fetchedAt = time.Time{}
	c.gen++
	c.mu.Unlock()

	c.group.Forget("config")
}

func (c *ConfigCache) fresh() (core.TMDBConfig, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfg != nil && c.now().Sub(c.fetchedAt) < c.ttl {
		return *c.cfg, true
	}
	return core.TMDBConfig{}, false
}

func (c *ConfigCache) fetch() (core.TMDBConfig, error) {
	// Another fetch may have landed between our miss and joining the group.
	if cfg, ok := c.fresh(); ok {
		return cfg, nil
	}

	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	next, err := c.source.TMDBConfig(ctx)

	c.mu.Lock()
	if err != nil {
		if c.cfg != nil {
			stale := *c.cfg
			c.mu.Unlock()
			c.metrics.ConfigFetch(observability.OutcomeStale)
			slog.Warn("tmdb settings fetch failed, serving stale configuration", "error", err)
			return stale, nil
		}
		c.mu.Unlock()
		c.metrics.ConfigFetch(observability.OutcomeError)
		slog.Error("tmdb settings fetch failed", "error", err)
		return core.TMDBConfig{}, core.NewConfigUnavailableError(err)
	}

	next = next.WithDefaults()
	if gen != c.gen {
		// Cleared while fetching: answer the waiters, keep nothing.
		c.mu.Unlock()
		c.metrics.ConfigFetch(observability.OutcomeSuccess)
		return next, nil
	}

	prev := c.last
	stored := next
	c.cfg = &stored
	c.last = &stored
	c.fetchedAt = c.now()
	var listeners []ChangeFunc
	if prev != nil && prev.RoutingChanged(next) {
		listeners = append(listeners, c.listeners...)
	}
	c.mu.Unlock()

	c.metrics.ConfigFetch(observability.OutcomeSuccess)

	if len(listeners) > 0 {
		slog.Info("tmdb routing configuration changed",
			"proxy_enabled", next.ProxyEnabled,
			"api_base_url", next.APIBaseURL,
			"image_base_url", next.ImageBaseURL,
		)
		for _, fn := range listeners {
			fn(*prev, next)
		}
	}

	return next, nil
}
