package tmdbproxy

import (
	"context"
	"errors"
	"net"
	"net/http"
	"regexp"
	"strings"
	"syscall"
	"time"

	"movicloud/internal/upstream"
)

// ProbeResult reports a connectivity test. Message is a stable key the UI translates.
type ProbeResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Status    int    `json:"status,omitempty"`
	LatencyMS int64  `json:"latencyMs"`
}

var proxyFormat = regexp.MustCompile(`^(http|https|socks5)://[\w\-.]+:\d+$`)

// TestTMDB checks that the configured TMDB API host answers, dialing
// through the outbound proxy when one is enabled. Any HTTP response,
// including 401 for a bad key, counts as reachable.
func (s *Service) TestTMDB(ctx context.Context) ProbeResult {
	cfg, err := s.settings.TMDB(ctx)
	if err != nil {
		return ProbeResult{Message: "network_test_failed"}
	}
	client, _, err := s.clientFor(ctx)
	if err != nil {
		return ProbeResult{Message: "network_test_failed"}
	}

	key := cfg.APIKey
	if key == "" {
		key = "test"
	}
	target := strings.TrimRight(cfg.APIBaseURL, "/") + "/3/configuration?api_key=" + key

	ctx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()

	start := time.Now()
	status, err := client.Head(ctx, target)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		if isTimeout(err) {
			return ProbeResult{Message: "request_timeout", LatencyMS: latency}
		}
		return ProbeResult{Message: "tmdb_unreachable", LatencyMS: latency}
	}
	return ProbeResult{Success: true, Message: "tmdb_reachable", Status: status, LatencyMS: latency}
}

// TestProxy sends a HEAD request to the probe URL through proxyURL.
func (s *Service) TestProxy(ctx context.Context, proxyURL string) ProbeResult {
	proxyURL = strings.TrimSpace(proxyURL)
	if proxyURL == "" {
		return ProbeResult{Message: "proxy_not_configured"}
	}
	if !proxyFormat.MatchString(proxyURL) {
		return ProbeResult{Message: "invalid_proxy_format"}
	}

	hc, err := s.newHTTPClient(proxyURL)
	if err != nil {
		return ProbeResult{Message: "invalid_proxy_format"}
	}
	client := upstream.NewWithHTTPClient(hc, upstream.Config{Name: "proxy-probe", UserAgent: s.upstream.UserAgent})

	ctx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()

	start := time.Now()
	status, err := client.Head(ctx, s.probeURL)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return ProbeResult{Message: classifyDialError(err), LatencyMS: latency}
	}

	switch {
	case status >= 200 && status < 300, status == http.StatusMovedPermanently, status == http.StatusFound:
		return ProbeResult{Success: true, Message: "proxy_test_success", Status: status, LatencyMS: latency}
	default:
		return ProbeResult{Success: true, Message: "proxy_connected_but_target_error", Status: status, LatencyMS: latency}
	}
}

func classifyDialError(err error) string {
	var dnsErr *net.DNSError
	switch {
	case isTimeout(err):
		return "request_timeout"
	case errors.Is(err, syscall.ECONNREFUSED):
		return "connection_refused"
	case errors.As(err, &dnsErr):
		return "could_not_resolve_host"
	default:
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			return "proxy_failed_to_connect"
		}
		return "proxy_test_failed"
	}
}
