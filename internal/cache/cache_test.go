package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryFresh(t *testing.T) {
	stored := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	entry := &Entry{Key: "k", StoredAt: stored}

	assert.True(t, entry.Fresh(stored, 5*time.Minute))
	assert.True(t, entry.Fresh(stored.Add(5*time.Minute-time.Nanosecond), 5*time.Minute))
	assert.False(t, entry.Fresh(stored.Add(5*time.Minute), 5*time.Minute))

	var missing *Entry
	assert.False(t, missing.Fresh(stored, time.Hour))
}

func TestMemoryStore(t *testing.T) {
	t.Run("GetSetRoundTrip", func(t *testing.T) {
		store := NewMemoryStore()
		ctx := context.Background()

		got, err := store.Get(ctx, "direct|movie/popular")
		require.NoError(t, err)
		assert.Nil(t, got, "expected nil result for empty store")

		entry := &Entry{Key: "direct|movie/popular", StoredAt: time.Now(), Value: json.RawMessage(`{"page":1}`)}
		require.NoError(t, store.Set(ctx, entry))

		got, err = store.Get(ctx, "direct|movie/popular")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.JSONEq(t, `{"page":1}`, string(got.Value))
	})

	t.Run("SetReplacesWholesale", func(t *testing.T) {
		store := NewMemoryStore()
		ctx := context.Background()

		require.NoError(t, store.Set(ctx, &Entry{Key: "k", Value: json.RawMessage(`1`)}))
		require.NoError(t, store.Set(ctx, &Entry{Key: "k", Value: json.RawMessage(`2`)}))

		got, err := store.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "2", string(got.Value))
		assert.Equal(t, 1, store.Len())
	})

	t.Run("Clear", func(t *testing.T) {
		store := NewMemoryStore()
		ctx := context.Background()

		require.NoError(t, store.Set(ctx, &Entry{Key: "a"}))
		require.NoError(t, store.Set(ctx, &Entry{Key: "b"}))
		require.NoError(t, store.Clear(ctx))

		assert.Equal(t, 0, store.Len())
		got, err := store.Get(ctx, "a")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("CloseIsNoOp", func(t *testing.T) {
		assert.NoError(t, NewMemoryStore().Close())
	})
}

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := NewRedisStore(RedisConfig{URL: "redis://" + mr.Addr(), TTL: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedisStore(t *testing.T) {
	t.Run("GetSetRoundTrip", func(t *testing.T) {
		store, _ := newTestRedisStore(t)
		ctx := context.Background()

		got, err := store.Get(ctx, "proxied|movie/popular|page=1")
		require.NoError(t, err)
		assert.Nil(t, got)

		stored := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		require.NoError(t, store.Set(ctx, &Entry{
			Key:      "proxied|movie/popular|page=1",
			StoredAt: stored,
			Value:    json.RawMessage(`{"results":[]}`),
		}))

		got, err = store.Get(ctx, "proxied|movie/popular|page=1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.True(t, got.StoredAt.Equal(stored))
		assert.JSONEq(t, `{"results":[]}`, string(got.Value))
	})

	t.Run("KeysAreHashed", func(t *testing.T) {
		store, mr := newTestRedisStore(t)
		ctx := context.Background()

		require.NoError(t, store.Set(ctx, &Entry{Key: "direct|https://api.tmdb.org/3/movie/popular?api_key=SECRET"}))

		keys := mr.Keys()
		require.Len(t, keys, 1)
		assert.Contains(t, keys[0], DefaultRedisPrefix)
		assert.NotContains(t, keys[0], "SECRET")
	})

	t.Run("BackstopTTL", func(t *testing.T) {
		store, mr := newTestRedisStore(t)
		ctx := context.Background()

		require.NoError(t, store.Set(ctx, &Entry{Key: "k", StoredAt: time.Now()}))
		mr.FastForward(2 * time.Minute)

		got, err := store.Get(ctx, "k")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("ClearOnlyTouchesPrefix", func(t *testing.T) {
		store, mr := newTestRedisStore(t)
		ctx := context.Background()

		require.NoError(t, mr.Set("unrelated", "keep"))
		for _, k := range []string{"a", "b", "c"} {
			require.NoError(t, store.Set(ctx, &Entry{Key: k}))
		}

		require.NoError(t, store.Clear(ctx))

		assert.Equal(t, []string{"unrelated"}, mr.Keys())
	})

	t.Run("CorruptEntry", func(t *testing.T) {
		store, mr := newTestRedisStore(t)
		ctx := context.Background()

		require.NoError(t, mr.Set(store.redisKey("k"), "not json"))

		_, err := store.Get(ctx, "k")
		assert.Error(t, err)
	})

	t.Run("InvalidURL", func(t *testing.T) {
		_, err := NewRedisStore(RedisConfig{URL: "://bad"})
		assert.Error(t, err)
	})
}
