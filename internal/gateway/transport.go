package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"movicloud/internal/core"
)

// Fetcher issues a GET and returns the raw JSON body. *upstream.Client implements it.
type Fetcher interface {
	Get(ctx context.Context, rawURL string) (json.RawMessage, error)
}

// ProxyTransport calls the proxied gateway with an action and its parameters
// and returns the unwrapped TMDB payload.
type ProxyTransport interface {
	Call(ctx context.Context, action string, params url.Values) (json.RawMessage, error)
}

// HTTPProxyTransport reaches a remote gateway over HTTP and unwraps its
// {success, data} envelope.
type HTTPProxyTransport struct {
	fetcher Fetcher
	locator *url.URL
}

// NewHTTPProxyTransport creates a transport for the gateway at locator,
// which must be an absolute http(s) URL.
func NewHTTPProxyTransport(fetcher Fetcher, locator string) (*HTTPProxyTransport, error) {
	u, err := parseGatewayLocator(locator)
	if err != nil {
		return nil, err
	}
	if u.Host == "" {
		return nil, core.NewInvalidProxyTargetError(fmt.Sprintf("gateway locator %q is not an absolute URL", locator), nil)
	}
	return &HTTPProxyTransport{fetcher: fetcher, locator: u}, nil
}

func (t *HTTPProxyTransport) Call(ctx context.Context, action string, params url.Values) (json.RawMessage, error) {
	body, err := t.fetcher.Get(ctx, gatewayTarget(t.locator, action, params))
	if err != nil {
		return nil, err
	}
	return UnwrapEnvelope(body)
}

// UnwrapEnvelope returns the data of a {success, data} envelope, or an
// upstream error when success is not true.
func UnwrapEnvelope(body []byte) (json.RawMessage, error) {
	if !gjson.ValidBytes(body) {
		return nil, core.NewUpstreamError(0, "gateway returned invalid JSON", nil)
	}
	res := gjson.GetManyBytes(body, "success", "data", "message", "error")
	if !res[0].Bool() {
		msg := firstNonEmpty(res[2].String(), res[3].String(), "gateway request failed")
		return nil, core.NewUpstreamError(0, msg, nil)
	}
	if !res[1].Exists() {
		return nil, core.NewUpstreamError(0, "gateway response has no data", nil)
	}
	return json.RawMessage(res[1].Raw), nil
}

// HTTPSettingsSource reads the configuration record from a settings endpoint.
type HTTPSettingsSource struct {
	fetcher Fetcher
	url     string
}

// NewHTTPSettingsSource creates a source reading <baseURL>/api/settings/tmdb.
func NewHTTPSettingsSource(fetcher Fetcher, baseURL string) *HTTPSettingsSource {
	return &HTTPSettingsSource{
		fetcher: fetcher,
		url:     strings.TrimRight(baseURL, "/") + "/api/settings/tmdb",
	}
}

func (s *HTTPSettingsSource) TMDBConfig(ctx context.Context) (core.TMDBConfig, error) {
	body, err := s.fetcher.Get(ctx, s.url)
	if err != nil {
		return core.TMDBConfig{}, err
	}
	data, err := UnwrapEnvelope(body)
	if err != nil {
		return core.TMDBConfig{}, err
	}
	var cfg core.TMDBConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return core.TMDBConfig{}, fmt.Errorf("decode tmdb settings: %w", err)
	}
	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
