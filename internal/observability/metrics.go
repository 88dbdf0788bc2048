// Package observability provides Prometheus instrumentation for the gateway.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeStale   = "stale"
)

// Metrics holds the gateway counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	dedupJoins     prometheus.Counter
	upstreamCalls  *prometheus.CounterVec
	configFetches  *prometheus.CounterVec
	cacheClears    prometheus.Counter
	upstreamTiming *prometheus.HistogramVec
}

// NewMetrics registers the gateway metrics on reg.
// Pass prometheus.DefaultRegisterer to expose them on /metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		cacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: "movicloud",
			Name:      "response_cache_hits_total",
			Help:      "Requests served from a fresh response cache entry.",
		}),
		cacheMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: "movicloud",
			Name:      "response_cache_misses_total",
			Help:      "Requests that found no fresh response cache entry.",
		}),
		dedupJoins: f.NewCounter(prometheus.CounterOpts{
			Namespace: "movicloud",
			Name:      "dedup_joins_total",
			Help:      "Requests that joined an already in-flight upstream call.",
		}),
		upstreamCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "movicloud",
			Name:      "upstream_requests_total",
			Help:      "Upstream calls issued, by routing mode and outcome.",
		}, []string{"mode", "outcome"}),
		configFetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "movicloud",
			Name:      "config_fetches_total",
			Help:      "Settings source fetches, by outcome.",
		}, []string{"outcome"}),
		cacheClears: f.NewCounter(prometheus.CounterOpts{
			Namespace: "movicloud",
			Name:      "cache_clears_total",
			Help:      "Global response cache and dedup invalidations.",
		}),
		upstreamTiming: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "movicloud",
			Name:      "upstream_request_duration_seconds",
			Help:      "Upstream call latency by routing mode.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),
	}
}

// CacheHit records a fresh cache hit.
func (m *Metrics) CacheHit() {
	if m != nil {
		m.cacheHits.Inc()
	}
}

// CacheMiss records a cache miss.
func (m *Metrics) CacheMiss() {
	if m != nil {
		m.cacheMisses.Inc()
	}
}

// DedupJoin records a caller sharing an in-flight call.
func (m *Metrics) DedupJoin() {
	if m != nil {
		m.dedupJoins.Inc()
	}
}

// UpstreamCall records a settled upstream call.
func (m *Metrics) UpstreamCall(mode, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.upstreamCalls.WithLabelValues(mode, outcome).Inc()
	m.upstreamTiming.WithLabelValues(mode).Observe(seconds)
}

// ConfigFetch records a settings fetch outcome.
func (m *Metrics) ConfigFetch(outcome string) {
	if m != nil {
		m.configFetches.WithLabelValues(outcome).Inc()
	}
}

// CacheClear records a global invalidation.
func (m *Metrics) CacheClear() {
	if m != nil {
		m.cacheClears.Inc()
	}
}
