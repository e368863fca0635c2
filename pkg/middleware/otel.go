package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Default tracer name for pagekeeper.
const defaultTracerName = "pagekeeper"

// OTelConfig configures the OpenTelemetry middleware.
type OTelConfig struct {
	// TracerName is the name of the tracer (default: "pagekeeper").
	TracerName string

	// IncludeSessionID adds the session URL parameter to spans.
	// Enabled by default.
	IncludeSessionID bool

	// Filter determines which requests to trace.
	// Return true to trace the request, false to skip.
	// If nil, all requests are traced.
	Filter func(r *http.Request) bool

	// AttributeExtractor extracts custom attributes from the request.
	AttributeExtractor func(r *http.Request) []attribute.KeyValue

	// tracer is the resolved tracer instance.
	tracer trace.Tracer
}

// OTelOption configures the OpenTelemetry middleware.
type OTelOption func(*OTelConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) OTelOption {
	return func(c *OTelConfig) {
		c.TracerName = name
	}
}

// WithIncludeSessionID enables/disables the session ID span attribute.
func WithIncludeSessionID(include bool) OTelOption {
	return func(c *OTelConfig) {
		c.IncludeSessionID = include
	}
}

// WithRequestFilter sets a filter function for requests.
func WithRequestFilter(filter func(r *http.Request) bool) OTelOption {
	return func(c *OTelConfig) {
		c.Filter = filter
	}
}

// WithAttributeExtractor sets a custom attribute extractor.
func WithAttributeExtractor(extractor func(r *http.Request) []attribute.KeyValue) OTelOption {
	return func(c *OTelConfig) {
		c.AttributeExtractor = extractor
	}
}

// defaultOTelConfig returns the default OpenTelemetry configuration.
func defaultOTelConfig() OTelConfig {
	return OTelConfig{
		TracerName:       defaultTracerName,
		IncludeSessionID: true,
	}
}

// OpenTelemetry creates middleware that traces every API request.
//
// The middleware:
//   - Creates a server span per request with method and path
//   - Renames the span to the chi route pattern once routing is done
//   - Stores the span in the request context for handlers
//   - Marks 5xx responses as errors
//
// The tracer uses the global OpenTelemetry tracer provider. Configure it
// in main() before starting the server:
//
//	otel.SetTracerProvider(tp)
func OpenTelemetry(opts ...OTelOption) func(http.Handler) http.Handler {
	config := defaultOTelConfig()
	for _, opt := range opts {
		opt(&config)
	}

	// Resolve tracer from global provider
	config.tracer = otel.Tracer(config.TracerName)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if config.Filter != nil && !config.Filter(r) {
				next.ServeHTTP(w, r)
				return
			}

			attrs := []attribute.KeyValue{
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
			}
			if config.AttributeExtractor != nil {
				attrs = append(attrs, config.AttributeExtractor(r)...)
			}

			ctx, span := config.tracer.Start(
				r.Context(),
				fmt.Sprintf("%s %s", r.Method, r.URL.Path),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(attrs...),
				trace.WithTimestamp(time.Now()),
			)
			defer span.End()

			ctx = context.WithValue(ctx, spanContextKey{}, span)
			r = r.WithContext(ctx)
			sw := newStatusWriter(w)

			next.ServeHTTP(sw, r)

			route := routePattern(r)
			span.SetName(fmt.Sprintf("%s %s", r.Method, route))
			span.SetAttributes(
				attribute.String("http.route", route),
				attribute.Int("http.status_code", sw.Status()),
			)
			if config.IncludeSessionID {
				if id := sessionParam(r); id != "" {
					span.SetAttributes(attribute.String("pagekeeper.session_id", id))
				}
			}

			if sw.Status() >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(sw.Status()))
			} else {
				span.SetStatus(codes.Ok, "")
			}
		})
	}
}

// spanContextKey is the key for storing the request span in the context.
type spanContextKey struct{}

// SpanFromContext retrieves the request span stored by OpenTelemetry.
// Returns nil if the request was not traced.
//
// Example:
//
//	func handler(w http.ResponseWriter, r *http.Request) {
//	    if span := middleware.SpanFromContext(r.Context()); span != nil {
//	        span.SetAttributes(attribute.Int("pages.open", n))
//	    }
//	}
func SpanFromContext(ctx context.Context) trace.Span {
	if span, ok := ctx.Value(spanContextKey{}).(trace.Span); ok {
		return span
	}
	return nil
}

// RecordError records err on the request span, if any.
func RecordError(ctx context.Context, err error) {
	if span := SpanFromContext(ctx); span != nil && err != nil {
		span.RecordError(err)
	}
}
