// Package server provides the HTTP API of the catalog gateway.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"path"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultBodySizeLimit applies when Config.BodySizeLimit is empty.
const DefaultBodySizeLimit = "1M"

// Server wraps the Echo server
type Server struct {
	echo    *echo.Echo
	handler *Handler
}

// Config holds server configuration options
type Config struct {
	MasterKey       string // Optional: Master key for authentication
	MetricsEnabled  bool   // Whether to expose Prometheus metrics endpoint
	MetricsEndpoint string // HTTP path for metrics endpoint (default: /metrics)
	BodySizeLimit   string // Max request body size, e.g. "1M" (default: 1M)

	// MetricsGatherer backs the metrics endpoint (default: prometheus.DefaultGatherer)
	MetricsGatherer prometheus.Gatherer
}

// New creates a new HTTP server
func New(deps Dependencies, cfg *Config) *Server {
	if cfg == nil {
		cfg = &Config{}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	handler := NewHandler(deps)

	// Build list of paths that skip authentication
	authSkipPaths := []string{"/health"}

	// Determine metrics path
	metricsPath := "/metrics"
	if cfg.MetricsEnabled {
		if cfg.MetricsEndpoint != "" {
			// Normalize path to prevent traversal attacks
			metricsPath = path.Clean("/" + cfg.MetricsEndpoint)
		}
		authSkipPaths = append(authSkipPaths, metricsPath)
	}

	// Global middleware stack (order matters)
	e.Use(RequestIDMiddleware())
	e.Use(middleware.RequestLoggerWithConfig(requestLoggerConfig()))
	e.Use(middleware.Recover())

	bodySizeLimit := DefaultBodySizeLimit
	if cfg.BodySizeLimit != "" {
		bodySizeLimit = cfg.BodySizeLimit
	}
	e.Use(middleware.BodyLimit(bodySizeLimit))

	// Authentication (skips public paths)
	if cfg.MasterKey != "" {
		e.Use(AuthMiddleware(cfg.MasterKey, authSkipPaths))
	}
	e.Use(LanguageMiddleware())

	// Public routes
	e.GET("/health", handler.Health)
	if cfg.MetricsEnabled {
		gatherer := cfg.MetricsGatherer
		if gatherer == nil {
			gatherer = prometheus.DefaultGatherer
		}
		e.GET(metricsPath, echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := e.Group("/api")

	settings := api.Group("/settings")
	settings.GET("/tmdb", handler.GetTMDBSettings)
	settings.POST("/tmdb", handler.SaveTMDBSettings)
	settings.GET("/proxy", handler.GetProxySettings)
	settings.POST("/proxy", handler.SaveProxySettings)
	settings.POST("/test-proxy", handler.TestProxy)
	settings.GET("/language", handler.GetLanguage)
	settings.POST("/language", handler.SaveLanguage)
	settings.GET("/theme", handler.GetTheme)
	settings.POST("/theme", handler.SaveTheme)
	settings.GET("/system-id", handler.GetSystemID)
	settings.POST("/reset", handler.ResetSettings)

	api.GET("/tmdb", handler.ProxyTMDB)
	api.GET("/network/test-tmdb", handler.TestTMDB)

	api.GET("/catalog/home", handler.CatalogHome)
	api.GET("/catalog/*", handler.CatalogAction)
	api.GET("/images", handler.ImageURL)
	api.POST("/cache/clear", handler.ClearCache)

	return &Server{
		echo:    e,
		handler: handler,
	}
}

// Start starts the HTTP server on the given address
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP implements the http.Handler interface, allowing Server to be used with httptest
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func requestLoggerConfig() middleware.RequestLoggerConfig {
	return middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Error != nil || v.Status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}
			slog.LogAttrs(c.Request().Context(), level, "request", attrs...)
			return nil
		},
	}
}
