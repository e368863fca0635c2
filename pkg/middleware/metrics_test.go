package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/vango-dev/pagekeeper/pkg/pages"
	"github.com/vango-dev/pagekeeper/pkg/route"
)

func metricCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("counter Write() error: %v", err)
	}
	if m.Counter == nil {
		t.Fatal("expected counter metric to have Counter field")
	}
	return m.GetCounter().GetValue()
}

func metricGaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("gauge Write() error: %v", err)
	}
	if m.Gauge == nil {
		t.Fatal("expected gauge metric to have Gauge field")
	}
	return m.GetGauge().GetValue()
}

func metricHistogramCount(t *testing.T, o prometheus.Observer) uint64 {
	t.Helper()
	metric, ok := o.(prometheus.Metric)
	if !ok {
		t.Fatalf("observer %T does not implement prometheus.Metric", o)
	}
	var m dto.Metric
	if err := metric.Write(&m); err != nil {
		t.Fatalf("histogram Write() error: %v", err)
	}
	if m.Histogram == nil {
		t.Fatal("expected histogram metric to have Histogram field")
	}
	return m.GetHistogram().GetSampleCount()
}

func newTestRegistry(m *Metrics) *pages.Registry {
	return pages.New(pages.Config{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Observers: []pages.Observer{m},
	})
}

func TestMetricsObserveRegistry(t *testing.T) {
	m := NewMetrics(WithRegistry(prometheus.NewRegistry()))
	a := newTestRegistry(m)
	b := newTestRegistry(m)

	for _, fp := range []string{"/users", "/roles", "/settings"} {
		if err := a.HandleNavigation(route.Target{FullPath: fp}); err != nil {
			t.Fatal(err)
		}
	}
	if err := b.HandleNavigation(route.Target{FullPath: "/report", Meta: route.Meta{NoCache: true}}); err != nil {
		t.Fatal(err)
	}

	if got := metricGaugeValue(t, m.openPages); got != 4 {
		t.Fatalf("open_pages=%v, want 4", got)
	}
	if got := metricGaugeValue(t, m.keptAlive); got != 3 {
		t.Fatalf("kept_alive_pages=%v, want 3", got)
	}

	a.CloseOthers()
	if got := metricGaugeValue(t, m.openPages); got != 2 {
		t.Fatalf("open_pages after CloseOthers=%v, want 2", got)
	}
	if got := metricCounterValue(t, m.registryBatches.WithLabelValues(pages.OpCloseOthers)); got != 1 {
		t.Fatalf("registry_batches_total(close-others)=%v, want 1", got)
	}
	if got := metricCounterValue(t, m.registryEvents.WithLabelValues(string(pages.EventRemove))); got != 2 {
		t.Fatalf("registry_events_total(remove)=%v, want 2", got)
	}
}

func TestMetricsRefreshLeavesGaugesBalanced(t *testing.T) {
	m := NewMetrics(WithRegistry(prometheus.NewRegistry()))
	reg := newTestRegistry(m)
	if err := reg.HandleNavigation(route.Target{FullPath: "/users"}); err != nil {
		t.Fatal(err)
	}

	rf, err := reg.BeginRefresh("/users")
	if err != nil {
		t.Fatal(err)
	}
	if got := metricGaugeValue(t, m.keptAlive); got != 0 {
		t.Fatalf("kept_alive_pages during refresh=%v, want 0", got)
	}
	rf.Complete()
	if got := metricGaugeValue(t, m.keptAlive); got != 1 {
		t.Fatalf("kept_alive_pages after refresh=%v, want 1", got)
	}
	if got := metricCounterValue(t, m.registryEvents.WithLabelValues(string(pages.EventRefresh))); got != 1 {
		t.Fatalf("registry_events_total(refresh)=%v, want 1", got)
	}
}

func TestMetricsRecorders(t *testing.T) {
	m := NewMetrics(WithRegistry(prometheus.NewRegistry()), WithNamespace("test"))

	m.RecordCollision()
	m.RecordSessionCreate()
	m.RecordSessionCreate()
	m.RecordSessionDestroy()

	if got := metricCounterValue(t, m.collisions); got != 1 {
		t.Fatalf("identity_collisions_total=%v, want 1", got)
	}
	if got := metricGaugeValue(t, m.activeSessions); got != 1 {
		t.Fatalf("active_sessions=%v, want 1", got)
	}
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics(WithRegistry(prometheus.NewRegistry()))

	r := chi.NewRouter()
	r.Use(m.Handler)
	r.Get("/api/sessions/{id}/state", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{}"))
	})
	r.Post("/api/sessions/{id}/navigate", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/api/sessions/a/state", nil),
		httptest.NewRequest(http.MethodGet, "/api/sessions/b/state", nil),
		httptest.NewRequest(http.MethodPost, "/api/sessions/a/navigate", nil),
		httptest.NewRequest(http.MethodGet, "/nope", nil),
	} {
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	tests := []struct {
		route, method, status string
		want                  float64
	}{
		{"/api/sessions/{id}/state", "GET", "200", 2},
		{"/api/sessions/{id}/navigate", "POST", "409", 1},
		{"unmatched", "GET", "404", 1},
	}
	for _, tt := range tests {
		if got := metricCounterValue(t, m.requestsTotal.WithLabelValues(tt.route, tt.method, tt.status)); got != tt.want {
			t.Errorf("http_requests_total(%s %s %s)=%v, want %v", tt.method, tt.route, tt.status, got, tt.want)
		}
	}
	if got := metricHistogramCount(t, m.requestDuration.WithLabelValues("/api/sessions/{id}/state", "GET")); got != 2 {
		t.Errorf("http_request_duration_seconds count=%d, want 2", got)
	}
}

func TestMetricsDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(WithRegistry(reg))

	defer func() {
		if recover() == nil {
			t.Fatal("expected duplicate registration to panic")
		}
	}()
	NewMetrics(WithRegistry(reg))
}
