package core

import "context"

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	requestIDKey contextKey = "request-id"
	languageKey  contextKey = "display-language"
)

// WithRequestID returns a new context with the request ID attached.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
// Returns empty string if not found.
func GetRequestID(ctx context.Context) string {
	if v := ctx.Value(requestIDKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// WithLanguage overrides the display language for a single request.
func WithLanguage(ctx context.Context, lang string) context.Context {
	if lang == "" {
		return ctx
	}
	return context.WithValue(ctx, languageKey, lang)
}

// GetLanguage returns the per-request display language override, if any.
func GetLanguage(ctx context.Context) string {
	if v, ok := ctx.Value(languageKey).(string); ok {
		return v
	}
	return ""
}
