// Package cache provides storage backends for cached TMDB responses.
// Supports an in-process map and Redis for multi-instance deployments.
package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Entry is a single cached response. Entries are immutable and replaced
// wholesale on refetch.
type Entry struct {
	Key      string          `json:"key"`
	StoredAt time.Time       `json:"stored_at"`
	Value    json.RawMessage `json:"value"`
}

// Fresh reports whether the entry is still usable at now for the given TTL.
func (e *Entry) Fresh(now time.Time, ttl time.Duration) bool {
	if e == nil {
		return false
	}
	return now.Sub(e.StoredAt) < ttl
}

// Store defines the interface for response cache storage.
// Implementations must be safe for concurrent use. Expiry is evaluated by
// the reader from Entry.StoredAt, stores never sweep in the background.
type Store interface {
	// Get retrieves the entry stored under key.
	// Returns nil, nil if nothing is stored.
	Get(ctx context.Context, key string) (*Entry, error)

	// Set stores the entry under entry.Key, replacing any previous entry.
	Set(ctx context.Context, entry *Entry) error

	// Clear removes every entry.
	Clear(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}
