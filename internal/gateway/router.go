package gateway

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"movicloud/internal/core"
	"movicloud/internal/i18n"
)

// Mode is the routing mode of a resolved request.
type Mode string

const (
	ModeDirect  Mode = "direct"
	ModeProxied Mode = "proxied"
)

// Route is a fully resolved TMDB request.
type Route struct {
	Mode     Mode
	Endpoint string
	Language string
	// Target is the outbound URL (direct) or the gateway locator (proxied).
	Target string
	// Action and Params are what a ProxyTransport receives in proxied mode.
	Action string
	Params url.Values
	// Key identifies the response in the response cache and in-flight registry.
	Key string
}

// Router picks the routing mode for each request and builds its target.
type Router struct {
	configs    ConfigProvider
	language   *i18n.Language
	gatewayURL string
}

// NewRouter creates a router. gatewayURL is the proxied gateway locator,
// either an absolute http(s) URL or a path such as "/api/tmdb".
func NewRouter(configs ConfigProvider, language *i18n.Language, gatewayURL string) *Router {
	return &Router{configs: configs, language: language, gatewayURL: gatewayURL}
}

// Resolve reads the configuration record and builds the Route for endpoint.
// Empty parameter values are dropped.
func (r *Router) Resolve(ctx context.Context, endpoint string, params url.Values) (Route, error) {
	cfg, err := r.configs.Get(ctx)
	if err != nil {
		return Route{}, err
	}
	if cfg.APIKey == "" {
		return Route{}, core.NewAPIKeyMissingError()
	}

	endpoint = normalizeEndpoint(endpoint)
	if endpoint == "/" {
		return Route{}, core.NewInvalidRequestError("endpoint is required", nil)
	}

	lang := core.GetLanguage(ctx)
	if lang == "" {
		lang = r.language.Current()
	}
	lang = i18n.ResolveTMDBLanguage(lang)

	route := Route{
		Endpoint: endpoint,
		Language: lang,
		Params:   cleanParams(params, "api_key", "language", "action"),
	}

	if !cfg.ProxyEnabled {
		base := strings.TrimRight(cfg.APIBaseURL, "/")
		route.Mode = ModeDirect
		route.Target = DirectURL(base, endpoint, cfg.APIKey, lang, route.Params)
		route.Key = cacheKey(ModeDirect, base, endpoint, lang, route.Params)
		return route, nil
	}

	locator, err := parseGatewayLocator(r.gatewayURL)
	if err != nil {
		return Route{}, err
	}
	route.Mode = ModeProxied
	route.Action = strings.TrimPrefix(endpoint, "/")
	// The gateway is told which language to use; it never sees the key.
	route.Params.Set("language", lang)
	route.Target = gatewayTarget(locator, route.Action, route.Params)
	route.Key = cacheKey(ModeProxied, locator.String(), endpoint, lang, route.Params)
	return route, nil
}

func normalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		endpoint = endpoint[:i]
	}
	return "/" + strings.Trim(endpoint, "/")
}

// cleanParams copies params without empty values or reserved keys.
func cleanParams(params url.Values, reserved ...string) url.Values {
	out := url.Values{}
	for k, vs := range params {
		if k == "" || isReserved(k, reserved) {
			continue
		}
		for _, v := range vs {
			if v != "" {
				out.Add(k, v)
			}
		}
	}
	return out
}

func isReserved(key string, reserved []string) bool {
	for _, r := range reserved {
		if key == r {
			return true
		}
	}
	return false
}

// DirectURL builds a TMDB v3 URL. api_key and language are written before
// any caller parameter.
func DirectURL(base, endpoint, apiKey, lang string, params url.Values) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(base, "/"))
	b.WriteString("/3")
	b.WriteString(endpoint)
	b.WriteString("?api_key=")
	b.WriteString(url.QueryEscape(apiKey))
	b.WriteString("&language=")
	b.WriteString(url.QueryEscape(lang))
	if len(params) > 0 {
		b.WriteByte('&')
		b.WriteString(params.Encode())
	}
	return b.String()
}

func gatewayTarget(locator *url.URL, action string, params url.Values) string {
	u := *locator
	q := url.Values{}
	for k, vs := range params {
		q[k] = append([]string(nil), vs...)
	}
	q.Set("action", action)
	u.RawQuery = q.Encode()
	return u.String()
}

// parseGatewayLocator accepts an absolute http(s) URL or an absolute path.
func parseGatewayLocator(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, core.NewInvalidProxyTargetError("proxied gateway locator is not configured", nil)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, core.NewInvalidProxyTargetError(fmt.Sprintf("malformed gateway locator %q", raw), err)
	}
	switch {
	case u.Scheme == "" && u.Host == "" && strings.HasPrefix(u.Path, "/"):
	case (u.Scheme == "http" || u.Scheme == "https") && u.Host != "":
	default:
		return nil, core.NewInvalidProxyTargetError(fmt.Sprintf("malformed gateway locator %q", raw), nil)
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

// cacheKey serializes everything that distinguishes one response from another.
func cacheKey(mode Mode, discriminator, endpoint, lang string, params url.Values) string {
	canonical := url.Values{}
	for k, vs := range params {
		vs = append([]string(nil), vs...)
		sort.Strings(vs)
		canonical[k] = vs
	}
	return strings.Join([]string{string(mode), discriminator, endpoint, lang, canonical.Encode()}, "|")
}
