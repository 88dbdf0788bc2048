package server

import (
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"movicloud/internal/core"
	"movicloud/internal/i18n"
)

// LanguageHeader overrides the display language for one request.
const LanguageHeader = "X-Display-Language"

// RequestIDMiddleware propagates X-Request-ID, generating a UUID when the
// client sent none, and stores it in the request context.
func RequestIDMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = uuid.NewString()
				req.Header.Set(echo.HeaderXRequestID, id)
			}
			c.Response().Header().Set(echo.HeaderXRequestID, id)
			c.SetRequest(req.WithContext(core.WithRequestID(req.Context(), id)))
			return next(c)
		}
	}
}

// LanguageMiddleware applies a per-request display language from the
// X-Display-Language header or the lang query parameter. Unsupported
// values are ignored.
func LanguageMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			lang := strings.TrimSpace(c.Request().Header.Get(LanguageHeader))
			if lang == "" {
				lang = strings.TrimSpace(c.QueryParam("lang"))
			}
			if i18n.IsSupported(lang) {
				req := c.Request()
				c.SetRequest(req.WithContext(core.WithLanguage(req.Context(), lang)))
			}
			return next(c)
		}
	}
}
