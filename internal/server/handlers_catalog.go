package server

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"
)

// homeSections are the named actions aggregated by GET /api/catalog/home.
var homeSections = []string{
	"trending",
	"popular-movies",
	"top-rated-movies",
	"popular-tv",
	"top-rated-tv",
}

// ProxyTMDB handles GET /api/tmdb, the proxied gateway endpoint.
func (h *Handler) ProxyTMDB(c echo.Context) error {
	data, err := h.gateway.Call(c.Request().Context(), c.QueryParam("action"), queryWithout(c, "action"))
	if err != nil {
		return failure(c, "request_failed", err)
	}
	return success(c, data, "")
}

// TestTMDB handles GET /api/network/test-tmdb
func (h *Handler) TestTMDB(c echo.Context) error {
	return c.JSON(http.StatusOK, h.gateway.TestTMDB(c.Request().Context()))
}

// CatalogAction handles GET /api/catalog/*. The path names a catalog
// action or a TMDB endpoint; the raw TMDB payload is returned.
func (h *Handler) CatalogAction(c echo.Context) error {
	data, err := h.catalog.Action(c.Request().Context(), c.Param("*"), queryWithout(c, "lang"))
	if err != nil {
		return handleError(c, err)
	}
	return c.JSONBlob(http.StatusOK, data)
}

// CatalogHome handles GET /api/catalog/home. Sections are fetched
// concurrently and the first failure aborts the response.
func (h *Handler) CatalogHome(c echo.Context) error {
	g, ctx := errgroup.WithContext(c.Request().Context())

	var mu sync.Mutex
	sections := make(map[string]json.RawMessage, len(homeSections))
	for _, name := range homeSections {
		g.Go(func() error {
			data, err := h.catalog.Action(ctx, name, nil)
			if err != nil {
				return err
			}
			mu.Lock()
			sections[name] = data
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, sections)
}

// ImageURL handles GET /api/images?path=&size=
func (h *Handler) ImageURL(c echo.Context) error {
	u, err := h.images.AssetURL(c.Request().Context(), c.QueryParam("path"), c.QueryParam("size"))
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"url": u})
}

// ClearCache handles POST /api/cache/clear. Cached responses are dropped
// and the configuration record is refetched on the next request.
func (h *Handler) ClearCache(c echo.Context) error {
	if err := h.catalog.ClearAll(c.Request().Context()); err != nil {
		return handleError(c, err)
	}
	h.catalog.ClearConfig()
	return c.JSON(http.StatusOK, map[string]bool{"cleared": true})
}
