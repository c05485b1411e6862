package telemetry

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// HTTPMetricsMeterName is the meter name of the API instruments
const HTTPMetricsMeterName = "github.com/stacklok/catalog-cache/http"

const (
	// unmatchedRoute labels requests chi could not route, keeping label
	// cardinality bounded
	unmatchedRoute = "unknown_route"
	// noProfile labels requests outside /profiles/{profile}
	noProfile = "none"
)

// HTTPMetrics records latency, volume and payload size of API requests.
// A nil *HTTPMetrics records nothing.
type HTTPMetrics struct {
	duration     metric.Float64Histogram
	requests     metric.Int64Counter
	inFlight     metric.Int64UpDownCounter
	responseSize metric.Int64Histogram
}

// NewHTTPMetrics creates the API instruments, or returns nil for a nil provider.
func NewHTTPMetrics(provider metric.MeterProvider) (*HTTPMetrics, error) {
	if provider == nil {
		return nil, nil
	}
	meter := provider.Meter(HTTPMetricsMeterName)

	m := &HTTPMetrics{}
	var err error
	if m.duration, err = meter.Float64Histogram(
		"catalog_cache_http_request_duration_seconds",
		metric.WithDescription("Duration of API requests in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5),
	); err != nil {
		return nil, err
	}
	if m.requests, err = meter.Int64Counter(
		"catalog_cache_http_requests_total",
		metric.WithDescription("Total number of API requests"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}
	if m.inFlight, err = meter.Int64UpDownCounter(
		"catalog_cache_http_active_requests",
		metric.WithDescription("Number of API requests being served"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}
	// browse pages of a few hundred items run into the hundreds of kilobytes
	if m.responseSize, err = meter.Int64Histogram(
		"catalog_cache_http_response_size_bytes",
		metric.WithDescription("Size of API response bodies"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(256, 1024, 8192, 65536, 262144, 1048576, 4194304),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// Middleware records one observation per request once the handler returns.
func (m *HTTPMetrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// the request context is cancelled once ServeHTTP returns
		ctx := context.WithoutCancel(r.Context())
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		m.inFlight.Add(ctx, 1)
		defer m.inFlight.Add(ctx, -1)

		next.ServeHTTP(ww, r)

		route, profile := routeLabels(r)
		attrs := metric.WithAttributes(
			attribute.String("method", r.Method),
			attribute.String("route", route),
			attribute.String("profile", profile),
			attribute.String("status_code", strconv.Itoa(ww.Status())),
		)
		m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
		m.requests.Add(ctx, 1, attrs)
		m.responseSize.Record(ctx, int64(ww.BytesWritten()), attrs)
	})
}

// routeLabels returns the chi route pattern, e.g.
// /api/v1/profiles/{profile}/{type}/items, and the profile it was served for.
func routeLabels(r *http.Request) (route, profile string) {
	route, profile = unmatchedRoute, noProfile
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return route, profile
	}
	if p := rctx.RoutePattern(); p != "" {
		route = p
	}
	if id := rctx.URLParam("profile"); id != "" {
		profile = id
	}
	return route, profile
}
