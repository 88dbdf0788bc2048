// Package tmdbproxy is the server-side half of proxied routing: it receives
// catalog actions, reads credentials and the outbound proxy from settings,
// and calls TMDB on the client's behalf. It also hosts the connectivity
// probes used by the settings screens.
package tmdbproxy

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"movicloud/internal/catalog"
	"movicloud/internal/core"
	"movicloud/internal/gateway"
	"movicloud/internal/httpclient"
	"movicloud/internal/i18n"
	"movicloud/internal/settings"
	"movicloud/internal/upstream"
)

// Settings is the subset of settings.Service the gateway reads.
type Settings interface {
	TMDB(ctx context.Context) (core.TMDBConfig, error)
	Proxy(ctx context.Context) (settings.Proxy, error)
	Language(ctx context.Context) (string, error)
}

// Options tunes a Service. Zero values select defaults.
type Options struct {
	HTTP     *httpclient.ClientConfig
	Upstream *upstream.Config
	// ProbeURL is the target of proxy connectivity tests.
	ProbeURL string
	// ProbeTimeout bounds each connectivity test.
	ProbeTimeout time.Duration
}

const (
	DefaultProbeURL     = "https://www.google.com"
	DefaultProbeTimeout = 10 * time.Second
)

// Service calls TMDB with server-held credentials.
type Service struct {
	settings     Settings
	httpConfig   httpclient.ClientConfig
	upstream     upstream.Config
	probeURL     string
	probeTimeout time.Duration

	mu      sync.Mutex
	clients map[string]*upstream.Client
}

var _ gateway.ProxyTransport = (*Service)(nil)

// New creates a Service.
func New(s Settings, opts Options) *Service {
	svc := &Service{
		settings:     s,
		httpConfig:   httpclient.DefaultConfig(),
		upstream:     upstream.DefaultConfig("tmdb-gateway"),
		probeURL:     opts.ProbeURL,
		probeTimeout: opts.ProbeTimeout,
		clients:      make(map[string]*upstream.Client),
	}
	if opts.HTTP != nil {
		svc.httpConfig = *opts.HTTP
	}
	if opts.Upstream != nil {
		svc.upstream = *opts.Upstream
	}
	if svc.probeURL == "" {
		svc.probeURL = DefaultProbeURL
	}
	if svc.probeTimeout <= 0 {
		svc.probeTimeout = DefaultProbeTimeout
	}
	return svc
}

// Call resolves action against the catalog and returns the raw TMDB payload.
// The display language comes from params when supported, otherwise from settings.
func (s *Service) Call(ctx context.Context, action string, params url.Values) (json.RawMessage, error) {
	req, err := catalog.Resolve(action, params)
	if err != nil {
		return nil, err
	}

	cfg, err := s.settings.TMDB(ctx)
	if err != nil {
		return nil, core.NewConfigUnavailableError(err)
	}
	if cfg.APIKey == "" {
		return nil, core.NewAPIKeyMissingError()
	}

	lang := params.Get("language")
	if !i18n.IsSupported(lang) {
		if lang, err = s.settings.Language(ctx); err != nil {
			return nil, core.NewConfigUnavailableError(err)
		}
	}

	client, proxy, err := s.clientFor(ctx)
	if err != nil {
		return nil, err
	}

	target := gateway.DirectURL(cfg.APIBaseURL, req.Endpoint, cfg.APIKey, i18n.ResolveTMDBLanguage(lang), req.Params)
	start := time.Now()
	body, err := client.Get(ctx, target)
	if err != nil {
		slog.Warn("tmdb gateway request failed",
			"action", action,
			"endpoint", req.Endpoint,
			"proxied", proxy != "",
			"duration", time.Since(start),
			"request_id", core.GetRequestID(ctx),
			"error", err,
		)
		return nil, err
	}
	return body, nil
}

// clientFor returns the upstream client dialing through the configured
// outbound proxy. Clients are reused per proxy URL so breaker state and
// connection pools survive across calls.
func (s *Service) clientFor(ctx context.Context) (*upstream.Client, string, error) {
	p, err := s.settings.Proxy(ctx)
	if err != nil {
		return nil, "", core.NewConfigUnavailableError(err)
	}
	proxy := p.Outbound()

	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.clients[proxy]; ok {
		return c, proxy, nil
	}

	hc, err := s.newHTTPClient(proxy)
	if err != nil {
		return nil, "", err
	}
	c := upstream.NewWithHTTPClient(hc, s.upstream)
	s.clients[proxy] = c
	return c, proxy, nil
}

func (s *Service) newHTTPClient(proxy string) (*http.Client, error) {
	cfg := s.httpConfig
	cfg.ProxyURL = proxy
	hc, err := httpclient.NewHTTPClient(&cfg)
	if err != nil {
		return nil, core.NewInvalidProxyTargetError("invalid outbound proxy", err)
	}
	return hc, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
