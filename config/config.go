// Package config loads MoviCloud configuration from defaults, an optional
// .env file, an optional config.yaml and environment variables, in that
// order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"movicloud/internal/cache"
	"movicloud/internal/gateway"
	"movicloud/internal/i18n"
	"movicloud/internal/storage"
)

// Cache backend types
const (
	CacheTypeMemory = "memory"
	CacheTypeRedis  = "redis"
)

// configPaths are searched in order; the first existing file wins.
var configPaths = []string{"config.yaml", "config/config.yaml"}

// Config is the complete application configuration.
type Config struct {
	Server  ServerConfig   `yaml:"server"`
	Gateway GatewayConfig  `yaml:"gateway"`
	TMDB    TMDBConfig     `yaml:"tmdb"`
	Cache   CacheConfig    `yaml:"cache"`
	Storage storage.Config `yaml:"storage"`
	Metrics MetricsConfig  `yaml:"metrics"`
	Log     LogConfig      `yaml:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string `yaml:"port"`
	// MasterKey protects /api/* with bearer authentication when set.
	MasterKey string `yaml:"master_key"`
	// BodySizeLimit caps request bodies, e.g. "1M" or "512K".
	BodySizeLimit string `yaml:"body_size_limit"`
}

// GatewayConfig configures the catalog gateway client.
type GatewayConfig struct {
	// URL is the proxied gateway locator: an absolute path served by this
	// process or an absolute http(s) URL of a remote instance.
	URL string `yaml:"url"`
	// SettingsURL, when set, reads TMDB settings from a remote instance
	// instead of the local settings store.
	SettingsURL string `yaml:"settings_url"`
	// AuthToken is sent as a bearer token to a remote gateway or settings URL.
	AuthToken      string        `yaml:"auth_token"`
	ConfigTTL      time.Duration `yaml:"config_ttl"`
	ResponseTTL    time.Duration `yaml:"response_ttl"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// TMDBConfig holds the settings seeded into the store on first start.
// Stored settings always win over these values.
type TMDBConfig struct {
	APIKey       string `yaml:"api_key"`
	APIBaseURL   string `yaml:"api_base_url"`
	ImageBaseURL string `yaml:"image_base_url"`
	ProxyEnabled bool   `yaml:"proxy_enabled"`
	ProxyURL     string `yaml:"proxy_url"`
	Language     string `yaml:"language"`
}

// CacheConfig selects the response store backend.
type CacheConfig struct {
	Type  string      `yaml:"type"`
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis connection settings for the response store.
type RedisConfig struct {
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// LogConfig controls the root slog handler.
type LogConfig struct {
	Level string `yaml:"level"`
	// Format is "json", "text" or empty to pick text on a terminal.
	Format string `yaml:"format"`
}

// LoadResult is returned by Load.
type LoadResult struct {
	Config *Config
	// ConfigFile is the YAML file that was read, or "" when none existed.
	ConfigFile string
}

// Load builds the configuration. A missing .env or config.yaml is not an error.
func Load() (*LoadResult, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := buildDefaultConfig()

	configFile, err := applyYAML(cfg)
	if err != nil {
		return nil, err
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &LoadResult{Config: cfg, ConfigFile: configFile}, nil
}

func buildDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          "8080",
			BodySizeLimit: "1M",
		},
		Gateway: GatewayConfig{
			URL:            "/api/tmdb",
			ConfigTTL:      gateway.DefaultConfigTTL,
			ResponseTTL:    gateway.DefaultResponseTTL,
			RequestTimeout: gateway.DefaultRequestTimeout,
		},
		TMDB: TMDBConfig{
			Language: i18n.DefaultLanguage,
		},
		Cache: CacheConfig{
			Type: CacheTypeMemory,
			Redis: RedisConfig{
				Prefix: cache.DefaultRedisPrefix,
			},
		},
		Storage: storage.DefaultConfig(),
		Metrics: MetricsConfig{
			Endpoint: "/metrics",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// applyYAML decodes the first config file found over cfg. String scalars
// are expanded with expandString before decoding.
func applyYAML(cfg *Config) (string, error) {
	for _, path := range configPaths {
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", path, err)
		}

		var root yaml.Node
		if err := yaml.Unmarshal(data, &root); err != nil {
			return "", fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if root.Kind == 0 {
			return path, nil
		}
		expandNode(&root)
		if err := root.Decode(cfg); err != nil {
			return "", fmt.Errorf("failed to decode %s: %w", path, err)
		}
		return path, nil
	}
	return "", nil
}

func expandNode(n *yaml.Node) {
	if n.Kind == yaml.ScalarNode {
		n.Value = expandString(n.Value)
		return
	}
	for _, child := range n.Content {
		expandNode(child)
	}
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandString replaces ${VAR} and ${VAR:-default} with environment values.
// A variable that is unset and has no default is left as written.
func expandString(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := envPattern.FindStringSubmatch(match)
		name, hasDefault, def := parts[1], parts[2] != "", parts[3]

		value, ok := os.LookupEnv(name)
		if hasDefault && value == "" {
			return def
		}
		if !ok {
			return match
		}
		return value
	})
}

// applyEnvOverrides copies recognised environment variables onto cfg.
func applyEnvOverrides(cfg *Config) error {
	setString("PORT", &cfg.Server.Port)
	setString("MOVICLOUD_MASTER_KEY", &cfg.Server.MasterKey)
	setString("BODY_SIZE_LIMIT", &cfg.Server.BodySizeLimit)

	setString("GATEWAY_URL", &cfg.Gateway.URL)
	setString("GATEWAY_SETTINGS_URL", &cfg.Gateway.SettingsURL)
	setString("GATEWAY_AUTH_TOKEN", &cfg.Gateway.AuthToken)

	setString("TMDB_API_KEY", &cfg.TMDB.APIKey)
	setString("TMDB_API_BASE_URL", &cfg.TMDB.APIBaseURL)
	setString("TMDB_IMAGE_BASE_URL", &cfg.TMDB.ImageBaseURL)
	setString("TMDB_PROXY_URL", &cfg.TMDB.ProxyURL)
	setString("TMDB_LANGUAGE", &cfg.TMDB.Language)

	setString("CACHE_TYPE", &cfg.Cache.Type)
	setString("REDIS_URL", &cfg.Cache.Redis.URL)
	setString("REDIS_PREFIX", &cfg.Cache.Redis.Prefix)

	setString("STORAGE_TYPE", &cfg.Storage.Type)
	setString("SQLITE_PATH", &cfg.Storage.SQLite.Path)
	setString("POSTGRES_URL", &cfg.Storage.PostgreSQL.URL)
	setString("MONGODB_URL", &cfg.Storage.MongoDB.URL)
	setString("MONGODB_DATABASE", &cfg.Storage.MongoDB.Database)

	setString("METRICS_ENDPOINT", &cfg.Metrics.Endpoint)
	setString("LOG_LEVEL", &cfg.Log.Level)
	setString("LOG_FORMAT", &cfg.Log.Format)

	return errors.Join(
		setInt("POSTGRES_MAX_CONNS", &cfg.Storage.PostgreSQL.MaxConns),
		setBool("TMDB_PROXY_ENABLED", &cfg.TMDB.ProxyEnabled),
		setBool("METRICS_ENABLED", &cfg.Metrics.Enabled),
		setDuration("CONFIG_TTL", &cfg.Gateway.ConfigTTL),
		setDuration("RESPONSE_TTL", &cfg.Gateway.ResponseTTL),
		setDuration("REQUEST_TIMEOUT", &cfg.Gateway.RequestTimeout),
	)
}

func setString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = n
	return nil
}

func setBool(key string, dst *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = b
	return nil
}

// setDuration accepts plain seconds ("600") or a Go duration ("10m").
func setDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := parseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = d
	return nil
}

func parseDuration(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(v)
}

// Validate checks the loaded configuration for values the app cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if err := ValidateBodySizeLimit(c.Server.BodySizeLimit); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.Gateway.URL) == "" {
		errs = append(errs, errors.New("gateway.url must not be empty"))
	}
	for name, d := range map[string]time.Duration{
		"gateway.config_ttl":      c.Gateway.ConfigTTL,
		"gateway.response_ttl":    c.Gateway.ResponseTTL,
		"gateway.request_timeout": c.Gateway.RequestTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if c.TMDB.Language != "" && !i18n.IsSupported(c.TMDB.Language) {
		errs = append(errs, fmt.Errorf("unsupported language: %s", c.TMDB.Language))
	}

	switch c.Cache.Type {
	case CacheTypeMemory, "":
	case CacheTypeRedis:
		if c.Cache.Redis.URL == "" {
			errs = append(errs, errors.New("cache.redis.url is required when cache.type is redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache type: %s (valid: memory, redis)", c.Cache.Type))
	}

	switch c.Log.Format {
	case "", "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown log format: %s (valid: json, text)", c.Log.Format))
	}

	return errors.Join(errs...)
}

const (
	minBodySize = 1 << 10
	maxBodySize = 100 << 20
)

var bodySizePattern = regexp.MustCompile(`^(\d+)([KkMm][Bb]?)?$`)

// ValidateBodySizeLimit checks a size string such as "1048576", "512K" or
// "10MB". Empty means the server default. Values must lie between 1KB and 100MB.
func ValidateBodySizeLimit(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	m := bodySizePattern.FindStringSubmatch(s)
	if m == nil {
		return fmt.Errorf("invalid body size limit %q: expected a number with optional K or M suffix", s)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid body size limit %q: %w", s, err)
	}
	switch strings.ToUpper(strings.TrimSuffix(strings.ToUpper(m[2]), "B")) {
	case "K":
		n <<= 10
	case "M":
		n <<= 20
	}
	if n < minBodySize || n > maxBodySize {
		return fmt.Errorf("body size limit %q out of range (1K to 100M)", s)
	}
	return nil
}
