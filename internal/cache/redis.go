package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultRedisPrefix is the default key prefix for cached responses.
	DefaultRedisPrefix = "movicloud:resp:"

	// DefaultRedisTTL is the backstop expiry Redis applies to entries.
	// Freshness is still decided from Entry.StoredAt; this only bounds memory.
	DefaultRedisTTL = 10 * time.Minute
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379" or "redis://:password@host:6379/0")
	URL string

	// Prefix is prepended to every hashed key (defaults to "movicloud:resp:")
	Prefix string

	// TTL is the backstop expiry for stored entries (defaults to 10 minutes)
	TTL time.Duration
}

// RedisStore implements Store using Redis for distributed storage.
// This is suitable for multi-instance deployments behind a load balancer.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a new Redis-based store and verifies the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultRedisTTL
	}

	slog.Info("redis response cache connected", "prefix", prefix, "ttl", ttl)

	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}, nil
}

// redisKey hashes the logical key so that api keys and long query strings
// never appear verbatim in Redis.
func (s *RedisStore) redisKey(key string) string {
	return s.prefix + strconv.FormatUint(xxhash.Sum64String(key), 16)
}

// Get retrieves the entry for key from Redis.
func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cache entry from redis: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to parse cache entry from redis: %w", err)
	}

	// Hash collision: a different logical key owns this slot.
	if entry.Key != key {
		return nil, nil
	}

	return &entry, nil
}

// Set stores the entry in Redis.
func (s *RedisStore) Set(ctx context.Context, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	if err := s.client.Set(ctx, s.redisKey(entry.Key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache entry in redis: %w", err)
	}

	return nil
}

// Clear deletes every key under the store prefix.
func (s *RedisStore) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 256).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 256 {
			if err := s.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("failed to clear redis cache: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan redis cache: %w", err)
	}
	if len(batch) > 0 {
		if err := s.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("failed to clear redis cache: %w", err)
		}
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
