package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"movicloud/internal/cache"
	"movicloud/internal/core"
	"movicloud/internal/i18n"
	"movicloud/internal/observability"
)

// Options configures a Client.
type Options struct {
	// Settings supplies the configuration record. Required.
	Settings SettingsSource
	// Store holds cached responses. Defaults to a MemoryStore.
	Store cache.Store
	// Direct performs direct-mode requests against TMDB. Required.
	Direct Fetcher
	// Proxy performs proxied-mode requests. Without it proxied routes fail.
	Proxy ProxyTransport
	// GatewayURL is the proxied gateway locator used for routing and cache keys.
	GatewayURL string
	Language   *i18n.Language

	ConfigTTL      time.Duration
	ResponseTTL    time.Duration
	RequestTimeout time.Duration

	Metrics *observability.Metrics
	Now     func() time.Time
}

// Client is the catalog gateway: every TMDB request flows through the
// router and the de-duplicating response cache.
type Client struct {
	configs *ConfigCache
	router  *Router
	dedup   *Deduper
	images  *ImageResolver
	direct  Fetcher
	proxy   ProxyTransport
	metrics *observability.Metrics
}

// New wires a Client. A change of proxy routing or base URLs observed by the
// configuration cache clears every cached response.
func New(opts Options) (*Client, error) {
	if opts.Settings == nil {
		return nil, fmt.Errorf("gateway: settings source is required")
	}
	if opts.Direct == nil {
		return nil, fmt.Errorf("gateway: direct fetcher is required")
	}
	if opts.Store == nil {
		opts.Store = cache.NewMemoryStore()
	}
	if opts.Language == nil {
		opts.Language = i18n.NewLanguage(i18n.DefaultLanguage)
	}

	configs := NewConfigCache(opts.Settings, ConfigCacheOptions{
		TTL:          opts.ConfigTTL,
		FetchTimeout: opts.RequestTimeout,
		Now:          opts.Now,
		Metrics:      opts.Metrics,
	})
	c := &Client{
		configs: configs,
		router:  NewRouter(configs, opts.Language, opts.GatewayURL),
		dedup: NewDeduper(opts.Store, DeduperOptions{
			TTL:            opts.ResponseTTL,
			RequestTimeout: opts.RequestTimeout,
			Now:            opts.Now,
			Metrics:        opts.Metrics,
		}),
		images:  NewImageResolver(configs),
		direct:  opts.Direct,
		proxy:   opts.Proxy,
		metrics: opts.Metrics,
	}

	configs.OnChange(func(prev, next core.TMDBConfig) {
		if err := c.dedup.ClearAll(context.Background()); err != nil {
			slog.Error("failed to clear response cache after configuration change", "error", err)
		}
	})

	return c, nil
}

// Fetch returns the raw TMDB JSON for endpoint with params, from the
// response cache when fresh.
func (c *Client) Fetch(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	route, err := c.router.Resolve(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}
	return c.dedup.Do(ctx, route.Key, func(ctx context.Context) (json.RawMessage, error) {
		return c.call(ctx, route)
	})
}

// ClearAll drops every cached response and in-flight registration.
func (c *Client) ClearAll(ctx context.Context) error {
	return c.dedup.ClearAll(ctx)
}

// ClearConfig forces the next request to refetch the configuration record.
func (c *Client) ClearConfig() {
	c.configs.ClearConfig()
}

// Config returns the current configuration record.
func (c *Client) Config(ctx context.Context) (core.TMDBConfig, error) {
	return c.configs.Get(ctx)
}

// Images returns the image URL resolver sharing this client's configuration.
func (c *Client) Images() *ImageResolver {
	return c.images
}

func (c *Client) call(ctx context.Context, route Route) (json.RawMessage, error) {
	start := time.Now()

	var (
		body json.RawMessage
		err  error
	)
	switch route.Mode {
	case ModeProxied:
		if c.proxy == nil {
			err = core.NewInvalidProxyTargetError("no proxied gateway transport is configured", nil)
			break
		}
		body, err = c.proxy.Call(ctx, route.Action, route.Params)
	default:
		body, err = c.direct.Get(ctx, route.Target)
	}

	elapsed := time.Since(start)
	if err != nil {
		c.metrics.UpstreamCall(string(route.Mode), observability.OutcomeError, elapsed.Seconds())
		err = asGatewayError(err)
		slog.Warn("tmdb request failed",
			"mode", route.Mode,
			"endpoint", route.Endpoint,
			"language", route.Language,
			"duration", elapsed,
			"request_id", core.GetRequestID(ctx),
			"error", err,
		)
		return nil, err
	}

	c.metrics.UpstreamCall(string(route.Mode), observability.OutcomeSuccess, elapsed.Seconds())
	slog.Debug("tmdb request completed",
		"mode", route.Mode,
		"endpoint", route.Endpoint,
		"language", route.Language,
		"duration", elapsed,
		"request_id", core.GetRequestID(ctx),
	)
	return body, nil
}

func asGatewayError(err error) error {
	var gwErr *core.GatewayError
	if errors.As(err, &gwErr) {
		return err
	}
	return core.NewUpstreamError(0, "tmdb request failed", err)
}
