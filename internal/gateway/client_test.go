package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"movicloud/internal/cache"
	"movicloud/internal/core"
	"movicloud/internal/i18n"
	"movicloud/internal/upstream"
)

// tmdbStub is a fake TMDB API that records every request.
type tmdbStub struct {
	*httptest.Server
	hits    atomic.Int32
	delay   time.Duration
	mu      sync.Mutex
	queries []url.Values
	paths   []string
	status  int
}

func newTMDBStub(t *testing.T) *tmdbStub {
	t.Helper()
	s := &tmdbStub{status: http.StatusOK}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		s.mu.Lock()
		s.queries = append(s.queries, r.URL.Query())
		s.paths = append(s.paths, r.URL.Path)
		status := s.status
		s.mu.Unlock()
		if s.delay > 0 {
			time.Sleep(s.delay)
		}
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"status_code":7,"status_message":"Invalid API key: You must be granted a valid key."}`))
			return
		}
		_, _ = w.Write([]byte(`{"page":1,"results":[{"id":550,"title":"Fight Club","poster_path":"/p.jpg"}],"total_pages":1,"total_results":1,"genres":[{"id":28,"name":"Action"}]}`))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *tmdbStub) lastQuery() url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries[len(s.queries)-1]
}

func (s *tmdbStub) lastPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paths[len(s.paths)-1]
}

// fakeProxy is an in-memory ProxyTransport.
type fakeProxy struct {
	calls   atomic.Int32
	action  string
	params  url.Values
	payload json.RawMessage
}

func (p *fakeProxy) Call(_ context.Context, action string, params url.Values) (json.RawMessage, error) {
	p.calls.Add(1)
	p.action = action
	p.params = params
	return p.payload, nil
}

func newTestClient(t *testing.T, src SettingsSource, opts Options) (*Client, *cache.MemoryStore) {
	t.Helper()
	store := cache.NewMemoryStore()
	opts.Settings = src
	opts.Store = store
	if opts.Direct == nil {
		opts.Direct = upstream.New(upstream.Config{Name: "tmdb"})
	}
	c, err := New(opts)
	require.NoError(t, err)
	return c, store
}

func stubConfig(s *tmdbStub) core.TMDBConfig {
	cfg := directConfig()
	cfg.APIBaseURL = s.URL
	return cfg
}

func TestNew_RequiresSettingsAndFetcher(t *testing.T) {
	_, err := New(Options{Direct: upstream.New(upstream.Config{})})
	assert.Error(t, err)
	_, err = New(Options{Settings: newFakeSource(directConfig())})
	assert.Error(t, err)
}

func TestClient_TwoSimultaneousRequestsIssueOneCall(t *testing.T) {
	stub := newTMDBStub(t)
	stub.delay = 50 * time.Millisecond
	c, _ := newTestClient(t, newFakeSource(stubConfig(stub)), Options{})

	var wg sync.WaitGroup
	results := make([]*core.PagedResponse[core.Movie], 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := c.PopularMovies(context.Background(), 1)
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), stub.hits.Load())
	require.NotNil(t, results[0])
	assert.Equal(t, results[0], results[1])
	assert.Equal(t, "Fight Club", results[0].Results[0].Title)

	q := stub.lastQuery()
	assert.Equal(t, "/3/movie/popular", stub.lastPath())
	assert.Equal(t, "test-key", q.Get("api_key"))
	assert.Equal(t, "zh-CN", q.Get("language"))
	assert.Equal(t, "1", q.Get("page"))
}

func TestClient_ClearAllMidTTL(t *testing.T) {
	stub := newTMDBStub(t)
	c, store := newTestClient(t, newFakeSource(stubConfig(stub)), Options{})
	ctx := context.Background()

	_, err := c.Fetch(ctx, "/movie/popular", url.Values{"page": {"1"}})
	require.NoError(t, err)
	_, err = c.Fetch(ctx, "/movie/popular", url.Values{"page": {"1"}})
	require.NoError(t, err)
	assert.Equal(t, int32(1), stub.hits.Load(), "second call within the TTL is served from the cache")

	require.NoError(t, c.ClearAll(ctx))
	assert.Equal(t, 0, store.Len())

	_, err = c.Fetch(ctx, "/movie/popular", url.Values{"page": {"1"}})
	require.NoError(t, err)
	assert.Equal(t, int32(2), stub.hits.Load())
}

func TestClient_ResponseTTL(t *testing.T) {
	stub := newTMDBStub(t)
	clock := newFakeClock()
	c, _ := newTestClient(t, newFakeSource(stubConfig(stub)), Options{Now: clock.Now})
	ctx := context.Background()

	_, err := c.MovieGenres(ctx)
	require.NoError(t, err)
	clock.Advance(DefaultResponseTTL - time.Second)
	_, err = c.MovieGenres(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), stub.hits.Load())

	clock.Advance(time.Second)
	genres, err := c.MovieGenres(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), stub.hits.Load())
	assert.Equal(t, []core.Genre{{ID: 28, Name: "Action"}}, genres.Genres)
}

func TestClient_UpstreamErrorIsNotCached(t *testing.T) {
	stub := newTMDBStub(t)
	stub.status = http.StatusUnauthorized
	c, store := newTestClient(t, newFakeSource(stubConfig(stub)), Options{})

	_, err := c.Fetch(context.Background(), "/movie/popular", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrUpstreamRequestFailed)
	var gwErr *core.GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, http.StatusUnauthorized, gwErr.HTTPStatusCode())
	assert.Contains(t, gwErr.Message, "Invalid API key")
	assert.Equal(t, 0, store.Len())

	_, err = c.Fetch(context.Background(), "/movie/popular", nil)
	require.Error(t, err)
	assert.Equal(t, int32(2), stub.hits.Load(), "no retries, but the key is free for the next caller")
}

func TestClient_LanguageIsPartOfKey(t *testing.T) {
	stub := newTMDBStub(t)
	lang := i18n.NewLanguage(i18n.TraditionalChinese)
	c, store := newTestClient(t, newFakeSource(stubConfig(stub)), Options{Language: lang})

	_, err := c.Fetch(context.Background(), "/tv/popular", nil)
	require.NoError(t, err)
	assert.Equal(t, "zh-TW", stub.lastQuery().Get("language"))

	_, err = c.Fetch(core.WithLanguage(context.Background(), i18n.English), "/tv/popular", nil)
	require.NoError(t, err)
	assert.Equal(t, "en-US", stub.lastQuery().Get("language"))

	assert.Equal(t, int32(2), stub.hits.Load())
	assert.Equal(t, 2, store.Len())
}

func TestClient_NamedActions(t *testing.T) {
	stub := newTMDBStub(t)
	c, _ := newTestClient(t, newFakeSource(stubConfig(stub)), Options{})
	ctx := context.Background()

	_, err := c.MovieDetails(ctx, 550)
	require.NoError(t, err)
	assert.Equal(t, "/3/movie/550", stub.lastPath())
	assert.Equal(t, "credits,videos,images,similar,recommendations", stub.lastQuery().Get("append_to_response"))

	_, err = c.DiscoverTV(ctx, DiscoverFilter{Sort: "vote_average.desc", Genres: "18", MinRating: 7.5, Page: 2})
	require.NoError(t, err)
	q := stub.lastQuery()
	assert.Equal(t, "/3/discover/tv", stub.lastPath())
	assert.Equal(t, "vote_average.desc", q.Get("sort_by"))
	assert.Equal(t, "18", q.Get("with_genres"))
	assert.Equal(t, "7.5", q.Get("vote_average.gte"))
	assert.Equal(t, "2", q.Get("page"))

	_, err = c.SearchMulti(ctx, "", 1)
	assert.ErrorIs(t, err, core.NewInvalidRequestError("", nil))

	_, err = c.PersonDetails(ctx, 0)
	assert.ErrorIs(t, err, core.NewInvalidRequestError("", nil))
}

func TestClient_ProxiedMode(t *testing.T) {
	cfg := directConfig()
	cfg.ProxyEnabled = true
	proxy := &fakeProxy{payload: json.RawMessage(`{"page":1,"results":[]}`)}
	c, _ := newTestClient(t, newFakeSource(cfg), Options{Proxy: proxy, GatewayURL: "/api/tmdb"})

	res, err := c.TopRatedTV(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Page)
	assert.Equal(t, "tv/top_rated", proxy.action)
	assert.Equal(t, "4", proxy.params.Get("page"))
	assert.Empty(t, proxy.params.Get("api_key"))
}

func TestClient_ProxiedModeWithoutTransport(t *testing.T) {
	cfg := directConfig()
	cfg.ProxyEnabled = true
	c, _ := newTestClient(t, newFakeSource(cfg), Options{GatewayURL: "/api/tmdb"})

	_, err := c.Fetch(context.Background(), "/movie/popular", nil)
	assert.ErrorIs(t, err, core.ErrInvalidProxyTarget)
}

func TestClient_RoutingChangeClearsCache(t *testing.T) {
	stub := newTMDBStub(t)
	src := newFakeSource(stubConfig(stub))
	proxy := &fakeProxy{payload: json.RawMessage(`{"page":1}`)}
	c, store := newTestClient(t, src, Options{Proxy: proxy, GatewayURL: "/api/tmdb"})
	ctx := context.Background()

	_, err := c.Fetch(ctx, "/movie/popular", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())

	proxied := stubConfig(stub)
	proxied.ProxyEnabled = true
	src.set(proxied, nil)
	c.ClearConfig()

	cfg, err := c.Config(ctx)
	require.NoError(t, err)
	assert.True(t, cfg.ProxyEnabled)
	assert.Equal(t, 0, store.Len(), "a routing change clears every cached response")

	_, err = c.Fetch(ctx, "/movie/popular", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(1), proxy.calls.Load())
	assert.Equal(t, int32(1), stub.hits.Load())
}

func TestClient_Images(t *testing.T) {
	c, _ := newTestClient(t, newFakeSource(directConfig()), Options{})

	got, err := c.Images().BackdropURL(context.Background(), "/b.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://image.tmdb.org/t/p/w1280/b.jpg", got)
}
