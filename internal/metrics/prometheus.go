// Package metrics exports concoro metrics to Prometheus. A Metrics value
// observes the cache, the deduplicator and the concorsi service.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/concoro-it/concoro/concorsi"
	"github.com/concoro-it/concoro/dedupe"
	"github.com/concoro-it/concoro/internal/cacheinfra"
)

const namespace = "concoro"

// Metrics holds all concoro collectors on a private registry.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	cacheHitsTotal    *prometheus.CounterVec
	cacheMissesTotal  prometheus.Counter
	cacheEvictedTotal prometheus.Counter
	remoteErrorsTotal *prometheus.CounterVec
	dedupeTotal       *prometheus.CounterVec
	storeQueriesTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a new metrics instance.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "route"},
		),
		cacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of cache hits by tier",
			},
			[]string{"tier"},
		),
		cacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of cache misses",
			},
		),
		cacheEvictedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_evicted_total",
				Help:      "Total number of memory cache entries evicted or purged",
			},
		),
		remoteErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_remote_errors_total",
				Help:      "Total number of failed remote cache operations",
			},
			[]string{"op"},
		),
		dedupeTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dedupe_calls_total",
				Help:      "Deduplicated calls by key family and result (executed, shared, stale_restart)",
			},
			[]string{"family", "result"},
		),
		storeQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_queries_total",
				Help:      "Document store calls by operation and outcome",
			},
			[]string{"op", "outcome"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.cacheHitsTotal,
		m.cacheMissesTotal,
		m.cacheEvictedTotal,
		m.remoteErrorsTotal,
		m.dedupeTotal,
		m.storeQueriesTotal,
	)

	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// RecordRequest records a request metric.
func (m *Metrics) RecordRequest(method, route string, status int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// CacheHit implements cacheinfra.Observer.
func (m *Metrics) CacheHit(tier string) {
	m.cacheHitsTotal.WithLabelValues(tier).Inc()
}

// CacheMiss implements cacheinfra.Observer.
func (m *Metrics) CacheMiss() {
	m.cacheMissesTotal.Inc()
}

// CacheEvicted implements cacheinfra.Observer.
func (m *Metrics) CacheEvicted(count int) {
	m.cacheEvictedTotal.Add(float64(count))
}

// RemoteError implements cacheinfra.Observer.
func (m *Metrics) RemoteError(op string) {
	m.remoteErrorsTotal.WithLabelValues(op).Inc()
}

// Executed implements dedupe.Observer.
func (m *Metrics) Executed(key string) {
	m.dedupeTotal.WithLabelValues(KeyFamily(key), "executed").Inc()
}

// Shared implements dedupe.Observer.
func (m *Metrics) Shared(key string) {
	m.dedupeTotal.WithLabelValues(KeyFamily(key), "shared").Inc()
}

// StaleRestart implements dedupe.Observer.
func (m *Metrics) StaleRestart(key string) {
	m.dedupeTotal.WithLabelValues(KeyFamily(key), "stale_restart").Inc()
}

// StoreQuery implements concorsi.Observer.
func (m *Metrics) StoreQuery(op, outcome string) {
	m.storeQueriesTotal.WithLabelValues(op, outcome).Inc()
}

// KeyFamily reduces a cache key to its first two segments so that labels stay
// bounded: "concorsi:list:page_size:2" becomes "concorsi:list".
func KeyFamily(key string) string {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) < 2 {
		return "other"
	}
	return parts[0] + ":" + parts[1]
}

// Middleware returns an HTTP middleware recording requests under route.
// route should be the registered pattern, not the raw path.
func (m *Metrics) Middleware(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		m.RecordRequest(r.Method, route, rw.statusCode, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

var (
	_ cacheinfra.Observer = (*Metrics)(nil)
	_ dedupe.Observer     = (*Metrics)(nil)
	_ concorsi.Observer   = (*Metrics)(nil)
)
