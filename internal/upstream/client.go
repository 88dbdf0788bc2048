// Package upstream provides the HTTP client used to reach TMDB and the
// catalog gateway endpoint:
// - Raw JSON GETs with bounded body size
// - brotli/gzip response decoding
// - Standardized error parsing (TMDB status_message bodies)
// - Circuit breaking
//
// The client never retries; a failed call is reported to the caller as is.
package upstream

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/sony/gobreaker/v2"

	"movicloud/internal/core"
	"movicloud/internal/httpclient"
)

// maxBodySize bounds a single upstream payload.
const maxBodySize = 10 * 1024 * 1024

// Config holds configuration for the upstream client
type Config struct {
	// Name identifies the upstream in breaker state and logs
	Name string

	// UserAgent is sent with every request
	UserAgent string

	// Headers are added to every GET, e.g. Authorization for a remote gateway
	Headers http.Header

	// CircuitBreaker is optional; nil disables breaking
	CircuitBreaker *CircuitBreakerConfig
}

// CircuitBreakerConfig holds circuit breaker settings
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening the circuit
	FailureThreshold uint32
	// HalfOpenRequests is the number of probe requests allowed while half-open
	HalfOpenRequests uint32
	// Timeout is how long the circuit stays open before probing again
	Timeout time.Duration
}

// DefaultConfig returns default client configuration
func DefaultConfig(name string) Config {
	return Config{
		Name:      name,
		UserAgent: "MoviCloud/1.0",
		CircuitBreaker: &CircuitBreakerConfig{
			FailureThreshold: 5,
			HalfOpenRequests: 1,
			Timeout:          30 * time.Second,
		},
	}
}

// Client is the HTTP client for TMDB-shaped upstreams
type Client struct {
	httpClient *http.Client
	config     Config
	breaker    *gobreaker.CircuitBreaker[[]byte]
}

// New creates a new upstream client using the default HTTP client
func New(config Config) *Client {
	return NewWithHTTPClient(httpclient.NewDefaultHTTPClient(), config)
}

// NewWithHTTPClient creates a new upstream client with a custom HTTP client
func NewWithHTTPClient(httpClient *http.Client, config Config) *Client {
	c := &Client{
		httpClient: httpClient,
		config:     config,
	}

	if cb := config.CircuitBreaker; cb != nil {
		threshold := cb.FailureThreshold
		c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:        config.Name,
			MaxRequests: cb.HalfOpenRequests,
			Timeout:     cb.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			// A 4xx is the caller's problem, not an outage.
			IsSuccessful: func(err error) bool {
				var gwErr *core.GatewayError
				if errors.As(err, &gwErr) && gwErr.StatusCode >= 400 && gwErr.StatusCode < 500 {
					return true
				}
				return err == nil
			},
		})
	}

	return c
}

// Get fetches rawURL and returns the JSON body of a 200 response.
func (c *Client) Get(ctx context.Context, rawURL string) (json.RawMessage, error) {
	if c.breaker == nil {
		return c.get(ctx, rawURL)
	}

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.get(ctx, rawURL)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, core.NewUpstreamError(http.StatusServiceUnavailable,
			"circuit breaker is open - upstream temporarily unavailable", err)
	}
	return body, err
}

// Head issues a HEAD request and returns the status code.
func (c *Client) Head(ctx context.Context, rawURL string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return 0, core.NewInvalidRequestError("failed to create request", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, core.NewUpstreamError(0, "failed to send request", err)
	}
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

// BreakerState returns the current circuit state ("closed", "open", "half-open").
func (c *Client) BreakerState() string {
	if c.breaker == nil {
		return gobreaker.StateClosed.String()
	}
	return c.breaker.State().String()
}

// get executes a single HTTP request
func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, core.NewInvalidRequestError("failed to create request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "br, gzip")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	for key, values := range c.config.Headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, core.NewUpstreamError(0, "failed to send request", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := readBody(resp)
	if err != nil {
		return nil, core.NewUpstreamError(0, "failed to read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, core.ParseUpstreamError(resp.StatusCode, body, nil)
	}

	return body, nil
}

// readBody decodes the response according to Content-Encoding and enforces maxBodySize.
func readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	switch resp.Header.Get("Content-Encoding") {
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(reader, maxBodySize+1))
	if err != nil {
		return nil, err
	}
	if n > maxBodySize {
		return nil, fmt.Errorf("response body too large (exceeds %d bytes)", maxBodySize)
	}
	return buf.Bytes(), nil
}
