package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the service. It also implements
// the permission cache counter hooks.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	cacheEvictions  prometheus.Counter
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "helmsman_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "helmsman_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "helmsman_permission_cache_hits_total",
		Help: "Permission cache lookups served from the cache.",
	})
	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "helmsman_permission_cache_misses_total",
		Help: "Permission cache lookups that fell through to the database.",
	})
	cacheEvictions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "helmsman_permission_cache_evictions_total",
		Help: "Permission cache entries evicted by the entry bound.",
	})
	registry.MustRegister(requests, duration, cacheHits, cacheMisses, cacheEvictions)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		cacheEvictions:  cacheEvictions,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// PermissionCacheHit implements the cache metrics hook.
func (m *Metrics) PermissionCacheHit() {
	if m != nil {
		m.cacheHits.Inc()
	}
}

// PermissionCacheMiss implements the cache metrics hook.
func (m *Metrics) PermissionCacheMiss() {
	if m != nil {
		m.cacheMisses.Inc()
	}
}

// PermissionCacheEviction implements the cache metrics hook.
func (m *Metrics) PermissionCacheEviction() {
	if m != nil {
		m.cacheEvictions.Inc()
	}
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
