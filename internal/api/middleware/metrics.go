package middleware

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/clearskies/clearskies/internal/source"
)

const meterName = "github.com/clearskies/clearskies/internal/api/middleware"

// Metrics records HTTP server instruments.
type Metrics struct {
	duration metric.Float64Histogram
	requests metric.Int64Counter
	inFlight metric.Int64UpDownCounter
	size     metric.Int64Histogram
}

// NewMetrics creates the HTTP instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return NewMetricsWithMeter(otel.Meter(meterName))
}

// NewMetricsWithMeter creates the HTTP instruments on meter.
func NewMetricsWithMeter(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)
	if m.duration, err = meter.Float64Histogram("clearskies.http.server.duration",
		metric.WithDescription("Time to serve an API request"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.requests, err = meter.Int64Counter("clearskies.http.server.requests",
		metric.WithDescription("API requests served"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}
	if m.inFlight, err = meter.Int64UpDownCounter("clearskies.http.server.in_flight",
		metric.WithDescription("API requests being served"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}
	if m.size, err = meter.Int64Histogram("clearskies.http.server.response_size",
		metric.WithDescription("API response body size"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	return &m, nil
}

// Middleware records one sample per request, labelled by the matched route
// so device ids in paths do not create new series.
func (m *Metrics) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := r.Context()

			method := metric.WithAttributes(attribute.String("http.request.method", r.Method))
			m.inFlight.Add(ctx, 1, method)
			defer m.inFlight.Add(ctx, -1, method)

			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)

			route := routePattern(r)
			if route == "" {
				route = "unmatched"
			}
			attrs := metric.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("http.route", route),
				attribute.Int("http.response.status_code", rec.statusCode),
				attribute.String("http.response.status_class", statusClass(rec.statusCode)),
			)

			m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
			m.requests.Add(ctx, 1, attrs)
			m.size.Record(ctx, rec.written, attrs)
		})
	}
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// SourceMetrics records upstream source calls and cache lookups. It
// satisfies source.RequestRecorder and narration.CacheRecorder.
type SourceMetrics struct {
	duration metric.Float64Histogram
	requests metric.Int64Counter
	lookups  metric.Int64Counter
}

// NewSourceMetrics creates the source instruments on the global meter provider.
func NewSourceMetrics() (*SourceMetrics, error) {
	return NewSourceMetricsWithMeter(otel.Meter(meterName))
}

// NewSourceMetricsWithMeter creates the source instruments on meter.
func NewSourceMetricsWithMeter(meter metric.Meter) (*SourceMetrics, error) {
	var (
		m   SourceMetrics
		err error
	)
	if m.duration, err = meter.Float64Histogram("clearskies.source.duration",
		metric.WithDescription("Time spent in one upstream source call"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.requests, err = meter.Int64Counter("clearskies.source.requests",
		metric.WithDescription("Upstream source calls by outcome"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}
	if m.lookups, err = meter.Int64Counter("clearskies.source.cache.lookups",
		metric.WithDescription("Source cache lookups"),
		metric.WithUnit("{lookup}"),
	); err != nil {
		return nil, err
	}
	return &m, nil
}

// RecordRequest records one call. Failed calls carry the same reason the
// health report shows.
func (m *SourceMetrics) RecordRequest(name, operation string, duration time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = source.Reason(err)
	}
	attrs := metric.WithAttributes(
		attribute.String("source.name", name),
		attribute.String("source.operation", operation),
		attribute.String("source.outcome", outcome),
	)

	// Call contexts are often already cancelled here.
	ctx := context.Background()
	m.duration.Record(ctx, duration.Seconds(), attrs)
	m.requests.Add(ctx, 1, attrs)
}

// RecordCacheHit records a cache hit.
func (m *SourceMetrics) RecordCacheHit(name, operation string) {
	m.recordLookup(name, operation, true)
}

// RecordCacheMiss records a cache miss.
func (m *SourceMetrics) RecordCacheMiss(name, operation string) {
	m.recordLookup(name, operation, false)
}

func (m *SourceMetrics) recordLookup(name, operation string, hit bool) {
	m.lookups.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("source.name", name),
		attribute.String("source.operation", operation),
		attribute.Bool("cache.hit", hit),
	))
}
