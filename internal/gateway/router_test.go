package gateway

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"movicloud/internal/core"
	"movicloud/internal/i18n"
)

func TestRouter_Direct(t *testing.T) {
	r := NewRouter(&staticConfig{cfg: directConfig()}, i18n.NewLanguage(i18n.DefaultLanguage), "/api/tmdb")

	route, err := r.Resolve(context.Background(), "/movie/popular", url.Values{"page": {"2"}})
	require.NoError(t, err)

	assert.Equal(t, ModeDirect, route.Mode)
	assert.Equal(t, "https://api.tmdb.org/3/movie/popular?api_key=test-key&language=zh-CN&page=2", route.Target)
	assert.Equal(t, "/movie/popular", route.Endpoint)
	assert.Equal(t, "zh-CN", route.Language)

	again, err := r.Resolve(context.Background(), "movie/popular/", url.Values{"page": {"2"}})
	require.NoError(t, err)
	assert.Equal(t, route, again, "resolution is deterministic")
}

func TestRouter_CallerCannotOverrideKeyOrLanguage(t *testing.T) {
	r := NewRouter(&staticConfig{cfg: directConfig()}, nil, "")

	route, err := r.Resolve(context.Background(), "/search/multi", url.Values{
		"api_key":  {"evil"},
		"language": {"en-US"},
		"query":    {"blade runner"},
	})
	require.NoError(t, err)

	assert.Equal(t, "https://api.tmdb.org/3/search/multi?api_key=test-key&language=zh-CN&query=blade+runner", route.Target)
	assert.NotContains(t, route.Key, "evil")
}

func TestRouter_Language(t *testing.T) {
	lang := i18n.NewLanguage(i18n.DefaultLanguage)
	r := NewRouter(&staticConfig{cfg: directConfig()}, lang, "")

	tests := []struct {
		name     string
		setting  string
		override string
		want     string
	}{
		{name: "default", want: "zh-CN"},
		{name: "setting", setting: "zh-TW", want: "zh-TW"},
		{name: "override wins", setting: "zh-TW", override: "en-US", want: "en-US"},
		{name: "unsupported override falls back", override: "fr-FR", want: "zh-CN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lang.Set(i18n.DefaultLanguage)
			if tt.setting != "" {
				lang.Set(tt.setting)
			}
			ctx := core.WithLanguage(context.Background(), tt.override)

			route, err := r.Resolve(ctx, "/movie/1", nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, route.Language)
			assert.Contains(t, route.Target, "language="+tt.want)
		})
	}
}

func TestRouter_APIKeyMissing(t *testing.T) {
	cfg := directConfig()
	cfg.APIKey = ""
	r := NewRouter(&staticConfig{cfg: cfg}, nil, "/api/tmdb")

	_, err := r.Resolve(context.Background(), "/movie/popular", nil)
	assert.ErrorIs(t, err, core.ErrAPIKeyMissing)

	// Also in proxied mode: the key is required regardless of routing.
	cfg.ProxyEnabled = true
	r = NewRouter(&staticConfig{cfg: cfg}, nil, "/api/tmdb")
	_, err = r.Resolve(context.Background(), "/movie/popular", nil)
	assert.ErrorIs(t, err, core.ErrAPIKeyMissing)
}

func TestRouter_ConfigErrorPropagates(t *testing.T) {
	r := NewRouter(&staticConfig{err: core.NewConfigUnavailableError(errors.New("down"))}, nil, "")

	_, err := r.Resolve(context.Background(), "/movie/popular", nil)
	assert.ErrorIs(t, err, core.ErrConfigUnavailable)
}

func TestRouter_Proxied(t *testing.T) {
	cfg := directConfig()
	cfg.ProxyEnabled = true
	r := NewRouter(&staticConfig{cfg: cfg}, nil, "/api/tmdb")

	route, err := r.Resolve(context.Background(), "/movie/popular", url.Values{"page": {"2"}})
	require.NoError(t, err)

	assert.Equal(t, ModeProxied, route.Mode)
	assert.Equal(t, "movie/popular", route.Action)
	assert.NotContains(t, route.Target, "api_key")
	assert.NotContains(t, route.Target, "test-key")

	target, err := url.Parse(route.Target)
	require.NoError(t, err)
	assert.Equal(t, "/api/tmdb", target.Path)
	assert.Equal(t, url.Values{
		"action":   {"movie/popular"},
		"page":     {"2"},
		"language": {"zh-CN"},
	}, target.Query())
	assert.Equal(t, url.Values{"page": {"2"}, "language": {"zh-CN"}}, route.Params)
}

func TestRouter_ModeIsPartOfKey(t *testing.T) {
	direct := NewRouter(&staticConfig{cfg: directConfig()}, nil, "/api/tmdb")
	cfg := directConfig()
	cfg.ProxyEnabled = true
	proxied := NewRouter(&staticConfig{cfg: cfg}, nil, "/api/tmdb")

	params := url.Values{"page": {"1"}}
	a, err := direct.Resolve(context.Background(), "/movie/popular", params)
	require.NoError(t, err)
	b, err := proxied.Resolve(context.Background(), "/movie/popular", params)
	require.NoError(t, err)

	assert.NotEqual(t, a.Key, b.Key)
	assert.True(t, strings.HasPrefix(a.Key, "direct|https://api.tmdb.org|"))
	assert.True(t, strings.HasPrefix(b.Key, "proxied|/api/tmdb|"))
}

func TestRouter_KeyIsCanonical(t *testing.T) {
	r := NewRouter(&staticConfig{cfg: directConfig()}, nil, "")

	a, err := r.Resolve(context.Background(), "/discover/movie", url.Values{
		"with_genres": {"28"},
		"page":        {"1"},
		"sort_by":     {"popularity.desc"},
		"region":      {""},
	})
	require.NoError(t, err)
	b, err := r.Resolve(context.Background(), "/discover/movie", url.Values{
		"sort_by":     {"popularity.desc"},
		"page":        {"1"},
		"with_genres": {"28"},
	})
	require.NoError(t, err)

	assert.Equal(t, a.Key, b.Key)
	assert.NotContains(t, a.Target, "region")

	c, err := r.Resolve(context.Background(), "/discover/movie", url.Values{"page": {"2"}})
	require.NoError(t, err)
	assert.NotEqual(t, a.Key, c.Key)
}

func TestRouter_InvalidGatewayLocator(t *testing.T) {
	cfg := directConfig()
	cfg.ProxyEnabled = true

	for _, locator := range []string{"", "ftp://gateway/api/tmdb", "http://", "relative/path", "http://[::1"} {
		t.Run(locator, func(t *testing.T) {
			r := NewRouter(&staticConfig{cfg: cfg}, nil, locator)
			_, err := r.Resolve(context.Background(), "/movie/popular", nil)
			assert.ErrorIs(t, err, core.ErrInvalidProxyTarget)
		})
	}
}

func TestRouter_AbsoluteGatewayLocator(t *testing.T) {
	cfg := directConfig()
	cfg.ProxyEnabled = true
	r := NewRouter(&staticConfig{cfg: cfg}, nil, "https://gateway.example.com/api/tmdb?ignored=1")

	route, err := r.Resolve(context.Background(), "/tv/1399", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://gateway.example.com/api/tmdb?action=tv%2F1399&language=zh-CN", route.Target)
}

func TestRouter_EmptyEndpoint(t *testing.T) {
	r := NewRouter(&staticConfig{cfg: directConfig()}, nil, "")

	_, err := r.Resolve(context.Background(), "  ", nil)
	var gwErr *core.GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, core.ErrorTypeInvalidRequest, gwErr.Type)
}
