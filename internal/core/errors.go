// Package core provides the shared types and error taxonomy of the catalog gateway.
package core

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ErrorType represents the type of error that occurred
type ErrorType string

const (
	// ErrorTypeConfigUnavailable indicates the settings source failed and no configuration is cached (503)
	ErrorTypeConfigUnavailable ErrorType = "config_unavailable"
	// ErrorTypeAPIKeyMissing indicates the configuration was fetched but carries no TMDB API key (412)
	ErrorTypeAPIKeyMissing ErrorType = "api_key_missing"
	// ErrorTypeUpstream indicates a transport error or non-success response from TMDB or the gateway (502)
	ErrorTypeUpstream ErrorType = "upstream_request_failed"
	// ErrorTypeInvalidProxyTarget indicates a malformed gateway locator or outbound proxy URL (500)
	ErrorTypeInvalidProxyTarget ErrorType = "invalid_proxy_target"
	// ErrorTypeInvalidRequest indicates a client error (4xx)
	ErrorTypeInvalidRequest ErrorType = "invalid_request_error"
	// ErrorTypeNotFound indicates a not found error (404)
	ErrorTypeNotFound ErrorType = "not_found_error"
)

// Sentinels for errors.Is. A GatewayError matches a sentinel when the types are equal.
var (
	ErrConfigUnavailable     = &GatewayError{Type: ErrorTypeConfigUnavailable, Message: "tmdb configuration unavailable"}
	ErrAPIKeyMissing         = &GatewayError{Type: ErrorTypeAPIKeyMissing, Message: "tmdb api key is not configured"}
	ErrUpstreamRequestFailed = &GatewayError{Type: ErrorTypeUpstream, Message: "upstream request failed"}
	ErrInvalidProxyTarget    = &GatewayError{Type: ErrorTypeInvalidProxyTarget, Message: "invalid proxy target"}
)

// GatewayError is the base error type for all gateway errors
type GatewayError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code"`
	// Original error for debugging (not exposed to clients)
	Err error `json:"-"`
}

// Error implements the error interface
func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the error unwrapping interface
func (e *GatewayError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a GatewayError of the same type.
func (e *GatewayError) Is(target error) bool {
	t, ok := target.(*GatewayError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// HTTPStatusCode returns the appropriate HTTP status code for this error
func (e *GatewayError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}
	switch e.Type {
	case ErrorTypeConfigUnavailable:
		return http.StatusServiceUnavailable
	case ErrorTypeAPIKeyMissing:
		return http.StatusPreconditionFailed
	case ErrorTypeUpstream:
		return http.StatusBadGateway
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ToJSON converts the error to a JSON-compatible map
func (e *GatewayError) ToJSON() map[string]interface{} {
	return map[string]interface{}{
		"error": map[string]interface{}{
			"type":    e.Type,
			"message": e.Message,
		},
	}
}

// NewConfigUnavailableError wraps a settings source failure.
func NewConfigUnavailableError(err error) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeConfigUnavailable,
		Message:    "tmdb configuration unavailable",
		StatusCode: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// NewAPIKeyMissingError reports a configuration without an API key.
func NewAPIKeyMissingError() *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeAPIKeyMissing,
		Message:    "tmdb api key is not configured",
		StatusCode: http.StatusPreconditionFailed,
	}
}

// NewUpstreamError creates a new upstream failure. statusCode 0 means 502.
func NewUpstreamError(statusCode int, message string, err error) *GatewayError {
	if statusCode == 0 {
		statusCode = http.StatusBadGateway
	}
	return &GatewayError{
		Type:       ErrorTypeUpstream,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// NewInvalidProxyTargetError reports a malformed gateway or proxy locator.
func NewInvalidProxyTargetError(message string, err error) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeInvalidProxyTarget,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewInvalidRequestError creates a new invalid request error (400)
func NewInvalidRequestError(message string, err error) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeInvalidRequest,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        err,
	}
}

// NewNotFoundError creates a new not found error (404)
func NewNotFoundError(message string) *GatewayError {
	return &GatewayError{
		Type:       ErrorTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

// ParseUpstreamError parses a TMDB error body and returns an upstream GatewayError.
// Client errors (4xx) keep their status code so callers can tell a bad id from an outage.
func ParseUpstreamError(statusCode int, body []byte, originalErr error) *GatewayError {
	var errorResponse struct {
		StatusCode    int    `json:"status_code"`
		StatusMessage string `json:"status_message"`
	}

	message := string(body)
	if err := json.Unmarshal(body, &errorResponse); err == nil && errorResponse.StatusMessage != "" {
		message = errorResponse.StatusMessage
	}
	if message == "" {
		message = http.StatusText(statusCode)
	}

	switch {
	case statusCode >= 400 && statusCode < 500:
		return NewUpstreamError(statusCode, message, originalErr)
	default:
		return NewUpstreamError(http.StatusBadGateway, message, originalErr)
	}
}
