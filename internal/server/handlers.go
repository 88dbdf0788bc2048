package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"

	"movicloud/internal/core"
	"movicloud/internal/settings"
	"movicloud/internal/tmdbproxy"
	"movicloud/internal/version"
)

// TMDBGateway serves the proxied gateway endpoint and the connectivity probes.
type TMDBGateway interface {
	Call(ctx context.Context, action string, params url.Values) (json.RawMessage, error)
	TestTMDB(ctx context.Context) tmdbproxy.ProbeResult
	TestProxy(ctx context.Context, proxyURL string) tmdbproxy.ProbeResult
}

// Catalog is the cached catalog client.
type Catalog interface {
	Action(ctx context.Context, name string, query url.Values) (json.RawMessage, error)
	ClearAll(ctx context.Context) error
	ClearConfig()
}

// ImageResolver builds image CDN URLs.
type ImageResolver interface {
	AssetURL(ctx context.Context, path, size string) (string, error)
}

// Dependencies are the services the handlers call.
type Dependencies struct {
	Settings *settings.Service
	Gateway  TMDBGateway
	Catalog  Catalog
	Images   ImageResolver
}

// Handler holds the HTTP handlers
type Handler struct {
	settings *settings.Service
	gateway  TMDBGateway
	catalog  Catalog
	images   ImageResolver
	started  time.Time
}

// NewHandler creates a new handler with the given dependencies
func NewHandler(deps Dependencies) *Handler {
	return &Handler{
		settings: deps.Settings,
		gateway:  deps.Gateway,
		catalog:  deps.Catalog,
		images:   deps.Images,
		started:  time.Now(),
	}
}

// Health handles GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   version.Version,
		"uptime":    int64(time.Since(h.started).Seconds()),
	})
}

// handleError converts gateway errors to appropriate HTTP responses
func handleError(c echo.Context, err error) error {
	var gatewayErr *core.GatewayError
	if errors.As(err, &gatewayErr) {
		return c.JSON(gatewayErr.HTTPStatusCode(), gatewayErr.ToJSON())
	}

	slog.ErrorContext(c.Request().Context(), "unexpected handler error", "error", err)

	// Fallback for unexpected errors
	return c.JSON(http.StatusInternalServerError, map[string]interface{}{
		"error": map[string]interface{}{
			"type":    "internal_error",
			"message": "an unexpected error occurred",
		},
	})
}

// success writes a {success: true} envelope.
func success(c echo.Context, data any, message string) error {
	env := core.Envelope{Success: true, Message: message}
	if data != nil {
		raw, ok := data.(json.RawMessage)
		if !ok {
			var err error
			if raw, err = json.Marshal(data); err != nil {
				return handleError(c, err)
			}
		}
		env.Data = raw
	}
	return c.JSON(http.StatusOK, env)
}

// failure writes a {success: false} envelope. message is a stable key the
// UI translates; a gateway error contributes its status and detail.
func failure(c echo.Context, message string, err error) error {
	status := http.StatusInternalServerError
	env := core.Envelope{Success: false, Message: message}

	var gatewayErr *core.GatewayError
	if errors.As(err, &gatewayErr) {
		status = gatewayErr.HTTPStatusCode()
		env.Error = gatewayErr.Message
	} else {
		slog.ErrorContext(c.Request().Context(), message, "error", err)
	}
	return c.JSON(status, env)
}

// queryWithout copies the request query minus the named keys.
func queryWithout(c echo.Context, keys ...string) url.Values {
	q := url.Values{}
	for k, v := range c.QueryParams() {
		q[k] = append([]string(nil), v...)
	}
	for _, k := range keys {
		q.Del(k)
	}
	return q
}
