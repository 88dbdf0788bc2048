package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"movicloud/internal/core"
	"movicloud/internal/i18n"
	"movicloud/internal/settings"
	"movicloud/internal/storage"
	"movicloud/internal/tmdbproxy"
)

type fakeGateway struct {
	mu     sync.Mutex
	action string
	params url.Values
	data   json.RawMessage
	err    error
}

func (f *fakeGateway) Call(_ context.Context, action string, params url.Values) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.action, f.params = action, params
	return f.data, f.err
}

func (f *fakeGateway) TestTMDB(context.Context) tmdbproxy.ProbeResult {
	return tmdbproxy.ProbeResult{Success: true, Message: "tmdb_reachable", Status: http.StatusOK}
}

func (f *fakeGateway) TestProxy(_ context.Context, proxyURL string) tmdbproxy.ProbeResult {
	if proxyURL == "" {
		return tmdbproxy.ProbeResult{Message: "proxy_not_configured"}
	}
	return tmdbproxy.ProbeResult{Success: true, Message: "proxy_test_success"}
}

type fakeCatalog struct {
	mu           sync.Mutex
	calls        []string
	lastQuery    url.Values
	lastLanguage string
	fail         map[string]error
	cleared      int
	configClears int
}

func (f *fakeCatalog) Action(ctx context.Context, name string, query url.Values) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	f.lastQuery = query
	f.lastLanguage = core.GetLanguage(ctx)
	if err := f.fail[name]; err != nil {
		return nil, err
	}
	return json.RawMessage(`{"action":"` + name + `"}`), nil
}

func (f *fakeCatalog) ClearAll(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
	return nil
}

func (f *fakeCatalog) ClearConfig() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configClears++
}

type fakeImages struct{}

func (fakeImages) AssetURL(_ context.Context, path, size string) (string, error) {
	if path == "" {
		return "", nil
	}
	return "https://image.tmdb.org/t/p/" + size + path, nil
}

func newTestSettings(t *testing.T) *settings.Service {
	t.Helper()
	st, err := storage.NewSQLite(storage.SQLiteConfig{Path: filepath.Join(t.TempDir(), "settings.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	store, err := settings.NewStore(st)
	require.NoError(t, err)

	svc := settings.NewService(store, i18n.NewLanguage(i18n.DefaultLanguage), settings.Defaults{APIKey: "seed-key"})
	require.NoError(t, svc.Seed(context.Background()))
	return svc
}

type testServer struct {
	*Server
	gateway *fakeGateway
	catalog *fakeCatalog
}

func newTestServer(t *testing.T, cfg *Config) *testServer {
	t.Helper()
	gw := &fakeGateway{data: json.RawMessage(`{"results":[]}`)}
	cat := &fakeCatalog{fail: map[string]error{}}
	srv := New(Dependencies{
		Settings: newTestSettings(t),
		Gateway:  gw,
		Catalog:  cat,
		Images:   fakeImages{},
	}, cfg)
	return &testServer{Server: srv, gateway: gw, catalog: cat}
}

func (s *testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) core.Envelope {
	t.Helper()
	var env core.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}
