// Package app provides the main application struct for centralized dependency management
// and lifecycle control of the MoviCloud gateway.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"movicloud/config"
	"movicloud/internal/cache"
	"movicloud/internal/gateway"
	"movicloud/internal/i18n"
	"movicloud/internal/observability"
	"movicloud/internal/server"
	"movicloud/internal/settings"
	"movicloud/internal/storage"
	"movicloud/internal/tmdbproxy"
	"movicloud/internal/upstream"
)

// App represents the main application with all its dependencies.
// It provides centralized lifecycle management for all components.
type App struct {
	config    *config.Config
	storage   storage.Storage
	settings  settings.Store
	responses cache.Store
	gateway   *gateway.Client
	server    *server.Server

	shutdownMu sync.Mutex
	shutdown   bool
}

// Config holds the configuration options for creating an App.
type Config struct {
	// AppConfig holds the loaded application configuration produced by config.Load.
	AppConfig *config.LoadResult

	// Registry receives the gateway metrics and backs /metrics.
	// Defaults to the global Prometheus registry.
	Registry *prometheus.Registry
}

// New creates a new App with all dependencies initialized.
// The caller must call Shutdown to release resources.
func New(ctx context.Context, cfg Config) (*App, error) {
	if cfg.AppConfig == nil {
		return nil, fmt.Errorf("app config is required")
	}
	if cfg.AppConfig.Config == nil {
		return nil, fmt.Errorf("app config contains nil Config")
	}

	appCfg := cfg.AppConfig.Config
	app := &App{config: appCfg}

	st, err := storage.New(ctx, appCfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	app.storage = st

	store, err := settings.NewStore(st)
	if err != nil {
		return nil, app.abort(fmt.Errorf("failed to create settings store: %w", err))
	}
	app.settings = store

	language := i18n.NewLanguage(appCfg.TMDB.Language)
	svc := settings.NewService(store, language, settings.Defaults{
		APIKey:       appCfg.TMDB.APIKey,
		APIBaseURL:   appCfg.TMDB.APIBaseURL,
		ImageBaseURL: appCfg.TMDB.ImageBaseURL,
		ProxyEnabled: appCfg.TMDB.ProxyEnabled,
		ProxyURL:     appCfg.TMDB.ProxyURL,
		Language:     appCfg.TMDB.Language,
	})
	if err := svc.Seed(ctx); err != nil {
		return nil, app.abort(fmt.Errorf("failed to seed settings: %w", err))
	}

	responses, err := newResponseStore(appCfg)
	if err != nil {
		return nil, app.abort(err)
	}
	app.responses = responses

	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if cfg.Registry != nil {
		registerer, gatherer = cfg.Registry, cfg.Registry
	}
	var metrics *observability.Metrics
	if appCfg.Metrics.Enabled {
		metrics = observability.NewMetrics(registerer)
	}

	tmdb := tmdbproxy.New(svc, tmdbproxy.Options{})

	source, proxy, err := gatewayEndpoints(appCfg.Gateway, svc, tmdb)
	if err != nil {
		return nil, app.abort(err)
	}

	client, err := gateway.New(gateway.Options{
		Settings:       source,
		Store:          responses,
		Direct:         upstream.New(upstream.DefaultConfig("tmdb")),
		Proxy:          proxy,
		GatewayURL:     appCfg.Gateway.URL,
		Language:       language,
		ConfigTTL:      appCfg.Gateway.ConfigTTL,
		ResponseTTL:    appCfg.Gateway.ResponseTTL,
		RequestTimeout: appCfg.Gateway.RequestTimeout,
		Metrics:        metrics,
	})
	if err != nil {
		return nil, app.abort(fmt.Errorf("failed to create gateway client: %w", err))
	}
	app.gateway = client

	// Saved routing settings invalidate the cached record; the refetch
	// reports the change and clears every cached response.
	svc.OnRoutingChange(client.ClearConfig)

	app.logStartupInfo(cfg.AppConfig.ConfigFile)

	app.server = server.New(server.Dependencies{
		Settings: svc,
		Gateway:  tmdb,
		Catalog:  client,
		Images:   client.Images(),
	}, &server.Config{
		MasterKey:       appCfg.Server.MasterKey,
		MetricsEnabled:  appCfg.Metrics.Enabled,
		MetricsEndpoint: appCfg.Metrics.Endpoint,
		MetricsGatherer: gatherer,
		BodySizeLimit:   appCfg.Server.BodySizeLimit,
	})

	return app, nil
}

// newResponseStore creates the response store selected by cfg.Cache.
func newResponseStore(cfg *config.Config) (cache.Store, error) {
	switch cfg.Cache.Type {
	case config.CacheTypeRedis:
		store, err := cache.NewRedisStore(cache.RedisConfig{
			URL:    cfg.Cache.Redis.URL,
			Prefix: cfg.Cache.Redis.Prefix,
			TTL:    2 * cfg.Gateway.ResponseTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis response store: %w", err)
		}
		return store, nil
	default:
		return cache.NewMemoryStore(), nil
	}
}

// gatewayEndpoints picks the settings source and proxied transport. An
// absolute gateway URL or a settings URL points at a remote instance;
// otherwise both are served in-process.
func gatewayEndpoints(cfg config.GatewayConfig, svc *settings.Service, local *tmdbproxy.Service) (gateway.SettingsSource, gateway.ProxyTransport, error) {
	var remote *upstream.Client
	remoteClient := func() *upstream.Client {
		if remote == nil {
			c := upstream.DefaultConfig("remote-gateway")
			if cfg.AuthToken != "" {
				c.Headers = http.Header{"Authorization": []string{"Bearer " + cfg.AuthToken}}
			}
			remote = upstream.New(c)
		}
		return remote
	}

	var source gateway.SettingsSource = settings.NewSource(svc)
	if cfg.SettingsURL != "" {
		source = gateway.NewHTTPSettingsSource(remoteClient(), cfg.SettingsURL)
	}

	var proxy gateway.ProxyTransport = local
	if isAbsoluteURL(cfg.URL) {
		t, err := gateway.NewHTTPProxyTransport(remoteClient(), cfg.URL)
		if err != nil {
			return nil, nil, err
		}
		proxy = t
	}
	return source, proxy, nil
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	return err == nil && u.Scheme != "" && u.Host != ""
}

// Gateway returns the catalog gateway client.
func (a *App) Gateway() *gateway.Client {
	return a.gateway
}

// Handler returns the HTTP handler of the server.
func (a *App) Handler() http.Handler {
	return a.server
}

// Start starts the HTTP server on the given address.
// This is a blocking call that returns when the server stops.
func (a *App) Start(addr string) error {
	if a.server == nil {
		return fmt.Errorf("server is not initialized")
	}
	slog.Info("starting server", "address", addr)
	if err := a.server.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			slog.Info("server stopped gracefully")
			return nil
		}
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Shutdown gracefully tears down app components in dependency order:
// HTTP server, response store, settings store, storage.
//
// Shutdown is idempotent; after the first call, subsequent calls are no-ops.
// It attempts every close step and returns a joined error if any step fails.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownMu.Lock()
	if a.shutdown {
		a.shutdownMu.Unlock()
		return nil
	}
	a.shutdown = true
	a.shutdownMu.Unlock()

	slog.Info("shutting down application...")

	var errs []error

	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}
	if err := a.closeResources(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	slog.Info("application shutdown complete")
	return nil
}

// closeResources closes everything below the HTTP server.
func (a *App) closeResources() error {
	var errs []error
	if a.responses != nil {
		if err := a.responses.Close(); err != nil {
			slog.Error("response store close error", "error", err)
			errs = append(errs, fmt.Errorf("response store close: %w", err))
		}
	}
	if a.settings != nil {
		if err := a.settings.Close(); err != nil {
			slog.Error("settings store close error", "error", err)
			errs = append(errs, fmt.Errorf("settings close: %w", err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			slog.Error("storage close error", "error", err)
			errs = append(errs, fmt.Errorf("storage close: %w", err))
		}
	}
	return errors.Join(errs...)
}

// abort releases what New has opened so far and returns err, annotated
// with any close failure.
func (a *App) abort(err error) error {
	if closeErr := a.closeResources(); closeErr != nil {
		return fmt.Errorf("%w (also: close error: %v)", err, closeErr)
	}
	return err
}

// logStartupInfo logs the application configuration on startup.
func (a *App) logStartupInfo(configFile string) {
	cfg := a.config

	if configFile != "" {
		slog.Info("configuration loaded", "file", configFile)
	}

	// Security warnings
	if cfg.Server.MasterKey == "" {
		slog.Warn("SECURITY WARNING: MOVICLOUD_MASTER_KEY not set - server running in UNSAFE MODE",
			"security_risk", "unauthenticated access allowed",
			"recommendation", "set MOVICLOUD_MASTER_KEY environment variable to secure this gateway")
	} else {
		slog.Info("authentication enabled", "mode", "master_key")
	}

	if cfg.Metrics.Enabled {
		slog.Info("prometheus metrics enabled", "endpoint", cfg.Metrics.Endpoint)
	} else {
		slog.Info("prometheus metrics disabled")
	}

	slog.Info("storage configured", "type", a.storage.Type())
	slog.Info("response cache configured",
		"type", cfg.Cache.Type,
		"response_ttl", cfg.Gateway.ResponseTTL,
		"config_ttl", cfg.Gateway.ConfigTTL,
		"request_timeout", cfg.Gateway.RequestTimeout,
	)
	slog.Info("gateway routing configured",
		"gateway_url", cfg.Gateway.URL,
		"remote_settings", cfg.Gateway.SettingsURL != "",
	)
}
