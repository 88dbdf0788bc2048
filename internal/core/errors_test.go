package core

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestGatewayError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *GatewayError
		expected string
	}{
		{
			name: "error without cause",
			err: &GatewayError{
				Type:    ErrorTypeInvalidRequest,
				Message: "bad request",
			},
			expected: "invalid_request_error: bad request",
		},
		{
			name: "error with cause",
			err: &GatewayError{
				Type:    ErrorTypeConfigUnavailable,
				Message: "tmdb configuration unavailable",
				Err:     errors.New("connection refused"),
			},
			expected: "config_unavailable: tmdb configuration unavailable: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestGatewayError_Unwrap(t *testing.T) {
	originalErr := errors.New("original error")
	gatewayErr := NewUpstreamError(0, "wrapped error", originalErr)

	if unwrapped := gatewayErr.Unwrap(); unwrapped != originalErr {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, originalErr)
	}
	if !errors.Is(gatewayErr, originalErr) {
		t.Error("expected errors.Is to reach the original error")
	}
}

func TestGatewayError_IsSentinel(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		want     bool
	}{
		{"config unavailable", NewConfigUnavailableError(errors.New("boom")), ErrConfigUnavailable, true},
		{"api key missing", NewAPIKeyMissingError(), ErrAPIKeyMissing, true},
		{"upstream", NewUpstreamError(http.StatusNotFound, "missing", nil), ErrUpstreamRequestFailed, true},
		{"proxy target", NewInvalidProxyTargetError("bad", nil), ErrInvalidProxyTarget, true},
		{"wrapped", fmt.Errorf("fetch: %w", NewAPIKeyMissingError()), ErrAPIKeyMissing, true},
		{"mismatch", NewAPIKeyMissingError(), ErrConfigUnavailable, false},
		{"plain error", errors.New("plain"), ErrUpstreamRequestFailed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(tt.err, tt.sentinel); got != tt.want {
				t.Errorf("errors.Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGatewayError_HTTPStatusCode(t *testing.T) {
	tests := []struct {
		name     string
		err      *GatewayError
		expected int
	}{
		{"explicit status code", &GatewayError{Type: ErrorTypeUpstream, StatusCode: http.StatusServiceUnavailable}, http.StatusServiceUnavailable},
		{"config unavailable default", &GatewayError{Type: ErrorTypeConfigUnavailable}, http.StatusServiceUnavailable},
		{"api key missing default", &GatewayError{Type: ErrorTypeAPIKeyMissing}, http.StatusPreconditionFailed},
		{"upstream default", &GatewayError{Type: ErrorTypeUpstream}, http.StatusBadGateway},
		{"invalid request default", &GatewayError{Type: ErrorTypeInvalidRequest}, http.StatusBadRequest},
		{"not found default", &GatewayError{Type: ErrorTypeNotFound}, http.StatusNotFound},
		{"proxy target default", &GatewayError{Type: ErrorTypeInvalidProxyTarget}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.HTTPStatusCode(); got != tt.expected {
				t.Errorf("HTTPStatusCode() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestParseUpstreamError(t *testing.T) {
	tests := []struct {
		name        string
		statusCode  int
		body        string
		wantStatus  int
		wantMessage string
	}{
		{
			name:        "tmdb error body",
			statusCode:  http.StatusUnauthorized,
			body:        `{"status_code":7,"status_message":"Invalid API key: You must be granted a valid key.","success":false}`,
			wantStatus:  http.StatusUnauthorized,
			wantMessage: "Invalid API key: You must be granted a valid key.",
		},
		{
			name:        "not found keeps status",
			statusCode:  http.StatusNotFound,
			body:        `{"status_code":34,"status_message":"The resource you requested could not be found."}`,
			wantStatus:  http.StatusNotFound,
			wantMessage: "The resource you requested could not be found.",
		},
		{
			name:        "server error becomes bad gateway",
			statusCode:  http.StatusInternalServerError,
			body:        "oops",
			wantStatus:  http.StatusBadGateway,
			wantMessage: "oops",
		},
		{
			name:        "empty body uses status text",
			statusCode:  http.StatusServiceUnavailable,
			body:        "",
			wantStatus:  http.StatusBadGateway,
			wantMessage: "Service Unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ParseUpstreamError(tt.statusCode, []byte(tt.body), nil)
			if err.Type != ErrorTypeUpstream {
				t.Errorf("Type = %v, want %v", err.Type, ErrorTypeUpstream)
			}
			if err.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", err.StatusCode, tt.wantStatus)
			}
			if err.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", err.Message, tt.wantMessage)
			}
		})
	}
}

func TestTMDBConfig_RoutingChanged(t *testing.T) {
	base := TMDBConfig{APIKey: "k", APIBaseURL: "https://api.tmdb.org", ImageBaseURL: "https://image.tmdb.org"}

	if base.RoutingChanged(base) {
		t.Error("identical config should not be a routing change")
	}

	keyOnly := base
	keyOnly.APIKey = "other"
	if base.RoutingChanged(keyOnly) {
		t.Error("api key rotation alone should not be a routing change")
	}

	proxied := base
	proxied.ProxyEnabled = true
	if !base.RoutingChanged(proxied) {
		t.Error("toggling proxy should be a routing change")
	}

	moved := base
	moved.ImageBaseURL = "https://images.example.com"
	if !base.RoutingChanged(moved) {
		t.Error("image base change should be a routing change")
	}
}

func TestTMDBConfig_WithDefaults(t *testing.T) {
	cfg := TMDBConfig{APIKey: "k"}.WithDefaults()
	if cfg.APIBaseURL != DefaultAPIBaseURL {
		t.Errorf("APIBaseURL = %q, want %q", cfg.APIBaseURL, DefaultAPIBaseURL)
	}
	if cfg.ImageBaseURL != DefaultImageBaseURL {
		t.Errorf("ImageBaseURL = %q, want %q", cfg.ImageBaseURL, DefaultImageBaseURL)
	}
}
