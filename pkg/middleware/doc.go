// Package middleware provides observability for page registries and the
// HTTP API that serves them.
//
// This package includes:
//   - Prometheus metrics, fed by registry batches and HTTP requests
//   - OpenTelemetry tracing middleware for chi routers
//
// # Prometheus Metrics
//
// Metrics is a pages.Observer. Subscribe one instance to every registry
// and its gauges track open and kept-alive pages across all of them:
//
//	m := middleware.NewMetrics(middleware.WithRegistry(promReg))
//	reg := pages.New(pages.Config{Observers: []pages.Observer{m}})
//
// Wrap the router to count requests by route pattern:
//
//	r := chi.NewRouter()
//	r.Use(m.Handler)
//	r.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
//
// # OpenTelemetry Middleware
//
// OpenTelemetry starts a server span per request and renames it to the
// matched chi route pattern:
//
//	r.Use(middleware.OpenTelemetry(
//	    middleware.WithTracerName("my-app"),
//	    middleware.WithRequestFilter(func(r *http.Request) bool {
//	        return r.URL.Path != "/healthz"
//	    }),
//	))
//
// Handlers reach the span with SpanFromContext(r.Context()).
package middleware
