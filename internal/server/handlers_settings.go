package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"movicloud/internal/core"
	"movicloud/internal/settings"
)

// GetTMDBSettings handles GET /api/settings/tmdb
func (h *Handler) GetTMDBSettings(c echo.Context) error {
	cfg, err := h.settings.TMDB(c.Request().Context())
	if err != nil {
		return failure(c, "get_tmdb_settings_failed", err)
	}
	return success(c, cfg, "")
}

// SaveTMDBSettings handles POST /api/settings/tmdb
func (h *Handler) SaveTMDBSettings(c echo.Context) error {
	var req settings.TMDBUpdate
	if err := c.Bind(&req); err != nil {
		return failure(c, "tmdb_settings_save_failed", core.NewInvalidRequestError("invalid request body", err))
	}
	if err := h.settings.SaveTMDB(c.Request().Context(), req); err != nil {
		return failure(c, "tmdb_settings_save_failed", err)
	}
	return success(c, nil, "tmdb_settings_saved")
}

// GetProxySettings handles GET /api/settings/proxy
func (h *Handler) GetProxySettings(c echo.Context) error {
	p, err := h.settings.Proxy(c.Request().Context())
	if err != nil {
		return failure(c, "get_proxy_settings_failed", err)
	}
	return success(c, p, "")
}

// SaveProxySettings handles POST /api/settings/proxy
func (h *Handler) SaveProxySettings(c echo.Context) error {
	var req settings.ProxyUpdate
	if err := c.Bind(&req); err != nil {
		return failure(c, "proxy_settings_save_failed", core.NewInvalidRequestError("invalid request body", err))
	}
	if err := h.settings.SaveProxy(c.Request().Context(), req); err != nil {
		return failure(c, "proxy_settings_save_failed", err)
	}
	return success(c, nil, "proxy_settings_saved")
}

// TestProxy handles POST /api/settings/test-proxy
func (h *Handler) TestProxy(c echo.Context) error {
	var req struct {
		ProxyURL string `json:"proxyUrl"`
	}
	if err := c.Bind(&req); err != nil {
		return failure(c, "proxy_test_failed", core.NewInvalidRequestError("invalid request body", err))
	}
	return c.JSON(http.StatusOK, h.gateway.TestProxy(c.Request().Context(), req.ProxyURL))
}

// GetLanguage handles GET /api/settings/language
func (h *Handler) GetLanguage(c echo.Context) error {
	lang, err := h.settings.Language(c.Request().Context())
	if err != nil {
		return failure(c, "get_language_failed", err)
	}
	return success(c, map[string]string{"language": lang}, "")
}

// SaveLanguage handles POST /api/settings/language
func (h *Handler) SaveLanguage(c echo.Context) error {
	var req struct {
		Language string `json:"language"`
	}
	if err := c.Bind(&req); err != nil {
		return failure(c, "language_save_failed", core.NewInvalidRequestError("invalid request body", err))
	}
	if err := h.settings.SaveLanguage(c.Request().Context(), req.Language); err != nil {
		return failure(c, "language_save_failed", err)
	}
	return success(c, map[string]string{"language": req.Language}, "language_saved")
}

// GetTheme handles GET /api/settings/theme
func (h *Handler) GetTheme(c echo.Context) error {
	theme, err := h.settings.Theme(c.Request().Context())
	if err != nil {
		return failure(c, "get_theme_failed", err)
	}
	return success(c, theme, "")
}

// SaveTheme handles POST /api/settings/theme. The body is stored as given.
func (h *Handler) SaveTheme(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return failure(c, "theme_save_failed", core.NewInvalidRequestError("invalid request body", err))
	}
	stored, err := h.settings.SaveTheme(c.Request().Context(), json.RawMessage(body))
	if err != nil {
		return failure(c, "theme_save_failed", err)
	}
	return success(c, stored, "theme_saved")
}

// GetSystemID handles GET /api/settings/system-id
func (h *Handler) GetSystemID(c echo.Context) error {
	id, err := h.settings.SystemID(c.Request().Context())
	if err != nil {
		return failure(c, "get_system_id_failed", err)
	}
	return success(c, map[string]string{"systemId": id}, "")
}

// ResetSettings handles POST /api/settings/reset
func (h *Handler) ResetSettings(c echo.Context) error {
	if err := h.settings.Reset(c.Request().Context()); err != nil {
		return failure(c, "factory_reset_failed", err)
	}
	return success(c, nil, "factory_reset_success")
}
