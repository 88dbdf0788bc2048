package gateway

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"movicloud/internal/core"
)

// fakeSource serves a configurable record and counts fetches.
type fakeSource struct {
	mu    sync.Mutex
	cfg   core.TMDBConfig
	err   error
	block chan struct{}
	calls atomic.Int32
}

func newFakeSource(cfg core.TMDBConfig) *fakeSource {
	return &fakeSource{cfg: cfg}
}

func (s *fakeSource) TMDBConfig(ctx context.Context) (core.TMDBConfig, error) {
	s.calls.Add(1)
	s.mu.Lock()
	block := s.block
	s.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return core.TMDBConfig{}, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, s.err
}

func (s *fakeSource) set(cfg core.TMDBConfig, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.err = err
}

func (s *fakeSource) setBlock(ch chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.block = ch
}

// staticConfig is a ConfigProvider with a fixed answer.
type staticConfig struct {
	cfg   core.TMDBConfig
	err   error
	calls atomic.Int32
}

func (s *staticConfig) Get(context.Context) (core.TMDBConfig, error) {
	s.calls.Add(1)
	return s.cfg, s.err
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func directConfig() core.TMDBConfig {
	return core.TMDBConfig{
		APIKey:       "test-key",
		APIBaseURL:   "https://api.tmdb.org",
		ImageBaseURL: "https://image.tmdb.org",
	}
}
