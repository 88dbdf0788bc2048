// Package settings persists the gateway's key/value settings (TMDB
// credentials, routing, outbound proxy, display language, theme) in the
// configured storage backend.
package settings

import (
	"context"
	"fmt"

	"movicloud/internal/storage"
)

// Setting keys.
const (
	KeyTMDBAPIKey       = "tmdb_api_key"
	KeyTMDBAPIBaseURL   = "tmdb_api_base_url"
	KeyTMDBImageBaseURL = "tmdb_image_base_url"
	KeyProxyEnabled     = "proxy_enabled"
	KeyProxyURL         = "proxy_url"
	KeyHTTPProxy        = "http_proxy"
	KeyHTTPSProxy       = "https_proxy"
	KeyAllProxy         = "all_proxy"
	KeyLanguage         = "language"
	KeyTheme            = "theme"
	KeySystemID         = "system_id"
)

// Store is a string key/value table. Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value for key; ok is false when the key is unset.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// All returns every stored setting.
	All(ctx context.Context) (map[string]string, error)
	// Set writes all values atomically, inserting or replacing each key.
	Set(ctx context.Context, values map[string]string) error
	// Delete removes the given keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// NewStore creates the Store matching the storage backend.
func NewStore(store storage.Storage) (Store, error) {
	switch store.Type() {
	case storage.TypeSQLite:
		return NewSQLiteStore(store.SQLiteDB())
	case storage.TypePostgreSQL:
		return NewPostgreSQLStore(store.PostgreSQLPool())
	case storage.TypeMongoDB:
		return NewMongoDBStore(store.MongoDatabase())
	default:
		return nil, fmt.Errorf("unknown storage type: %s", store.Type())
	}
}
