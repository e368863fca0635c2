package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vango-dev/pagekeeper/pkg/pages"
)

// MetricsConfig configures the Prometheus metrics.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "pagekeeper").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for request duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus metrics.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

// defaultMetricsConfig returns the default metrics configuration.
func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace:   "pagekeeper",
		Subsystem:   "",
		ConstLabels: nil,
		Buckets:     prometheus.DefBuckets,
		Registry:    prometheus.DefaultRegisterer,
	}
}

// Metrics holds the Prometheus metrics for page registries and the HTTP
// surface. It is a pages.Observer: subscribe it to every registry whose
// pages should be counted.
//
// Metrics collected:
//   - pagekeeper_open_pages: Gauge of open pages across registries
//   - pagekeeper_kept_alive_pages: Gauge of keep-alive members across registries
//   - pagekeeper_registry_events_total: Counter of registry events by type
//   - pagekeeper_registry_batches_total: Counter of registry batches by operation
//   - pagekeeper_identity_collisions_total: Counter of rejected navigations
//   - pagekeeper_active_sessions: Gauge of live client sessions
//   - pagekeeper_http_requests_total: Counter of API requests by route, method and status
//   - pagekeeper_http_request_duration_seconds: Histogram of API request duration
type Metrics struct {
	openPages       prometheus.Gauge
	keptAlive       prometheus.Gauge
	registryEvents  *prometheus.CounterVec
	registryBatches *prometheus.CounterVec
	collisions      prometheus.Counter
	activeSessions  prometheus.Gauge
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewMetrics registers the metrics with the configured registry.
//
// Example:
//
//	m := middleware.NewMetrics(middleware.WithNamespace("myapp"))
//	reg := pages.New(pages.Config{Observers: []pages.Observer{m}})
//
//	// Expose metrics endpoint
//	http.Handle("/metrics", promhttp.Handler())
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		openPages: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "open_pages",
			Help:        "Number of open pages across all registries",
			ConstLabels: config.ConstLabels,
		}),

		keptAlive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "kept_alive_pages",
			Help:        "Number of pages in the keep-alive membership across all registries",
			ConstLabels: config.ConstLabels,
		}),

		registryEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "registry_events_total",
			Help:        "Total number of registry events by type",
			ConstLabels: config.ConstLabels,
		}, []string{"type"}),

		registryBatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "registry_batches_total",
			Help:        "Total number of registry batches by operation",
			ConstLabels: config.ConstLabels,
		}, []string{"op"}),

		collisions: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "identity_collisions_total",
			Help:        "Total number of navigations rejected for an identity collision",
			ConstLabels: config.ConstLabels,
		}),

		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_sessions",
			Help:        "Number of live client sessions",
			ConstLabels: config.ConstLabels,
		}),

		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "http_requests_total",
			Help:        "Total number of API requests",
			ConstLabels: config.ConstLabels,
		}, []string{"route", "method", "status"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "http_request_duration_seconds",
			Help:        "API request duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"route", "method"}),
	}
}

// Observe implements pages.Observer. Gauges move by deltas so one Metrics
// can be shared by many registries.
func (m *Metrics) Observe(b pages.Batch) {
	m.registryBatches.WithLabelValues(b.Op).Inc()
	for _, e := range b.Events {
		m.registryEvents.WithLabelValues(string(e.Type)).Inc()
		switch e.Type {
		case pages.EventAdd:
			m.openPages.Inc()
		case pages.EventRemove:
			m.openPages.Dec()
		case pages.EventCache:
			m.keptAlive.Inc()
		case pages.EventUncache:
			m.keptAlive.Dec()
		}
	}
}

// =============================================================================
// Metrics Recording Functions
// =============================================================================

// RecordCollision records a navigation rejected for an identity collision.
func (m *Metrics) RecordCollision() {
	m.collisions.Inc()
}

// RecordSessionCreate records a new session.
func (m *Metrics) RecordSessionCreate() {
	m.activeSessions.Inc()
}

// RecordSessionDestroy records a session removal.
func (m *Metrics) RecordSessionDestroy() {
	m.activeSessions.Dec()
}

// Handler wraps next and records request count and duration. Requests are
// labeled with the chi route pattern to keep cardinality bounded.
func (m *Metrics) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := newStatusWriter(w)

		next.ServeHTTP(sw, r)

		route := routePattern(r)
		m.requestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
		m.requestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(sw.Status())).Inc()
	})
}

// routePattern returns the matched chi pattern, or "unmatched".
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
