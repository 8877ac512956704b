package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/clearskies/clearskies/internal/api/middleware"
	"github.com/clearskies/clearskies/internal/provider/resilience"
)

func newReader(t *testing.T) (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return reader, provider
}

// counterPoints returns the data points of the named int64 counter.
func counterPoints(t *testing.T, reader *sdkmetric.ManualReader, name string) []metricdata.DataPoint[int64] {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is not an int64 sum", name)
			return sum.DataPoints
		}
	}
	t.Fatalf("metric %s not recorded", name)
	return nil
}

func attr(dp metricdata.DataPoint[int64], key string) attribute.Value {
	v, _ := dp.Attributes.Value(attribute.Key(key))
	return v
}

func TestNewMetrics_GlobalMeter(t *testing.T) {
	m, err := middleware.NewMetrics()
	require.NoError(t, err)
	assert.NotNil(t, m)

	sm, err := middleware.NewSourceMetrics()
	require.NoError(t, err)
	assert.NotNil(t, sm)
}

func TestMetrics_LabelsByRoutePattern(t *testing.T) {
	reader, provider := newReader(t)
	m, err := middleware.NewMetricsWithMeter(provider.Meter("test"))
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(m.Middleware())
	r.Get("/admin/devices/{deviceId}", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"deviceId":"x"}`))
	})

	for _, id := range []string{"device-a", "device-b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/devices/"+id, http.NoBody))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nowhere", http.NoBody))
	require.Equal(t, http.StatusNotFound, rec.Code)

	points := counterPoints(t, reader, "clearskies.http.server.requests")
	require.Len(t, points, 2)

	byRoute := map[string]metricdata.DataPoint[int64]{}
	for _, dp := range points {
		byRoute[attr(dp, "http.route").AsString()] = dp
	}

	device := byRoute["/admin/devices/{deviceId}"]
	assert.Equal(t, int64(2), device.Value)
	assert.Equal(t, "2xx", attr(device, "http.response.status_class").AsString())

	unmatched := byRoute["unmatched"]
	assert.Equal(t, int64(1), unmatched.Value)
	assert.Equal(t, int64(http.StatusNotFound), attr(unmatched, "http.response.status_code").AsInt64())
	assert.Equal(t, "4xx", attr(unmatched, "http.response.status_class").AsString())
}

func TestMetrics_DefaultStatus(t *testing.T) {
	reader, provider := newReader(t)
	m, err := middleware.NewMetricsWithMeter(provider.Meter("test"))
	require.NoError(t, err)

	handler := m.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ops/health", http.NoBody))

	points := counterPoints(t, reader, "clearskies.http.server.requests")
	require.Len(t, points, 1)
	assert.Equal(t, int64(http.StatusOK), attr(points[0], "http.response.status_code").AsInt64())
}

func TestSourceMetrics_Outcomes(t *testing.T) {
	reader, provider := newReader(t)
	m, err := middleware.NewSourceMetricsWithMeter(provider.Meter("test"))
	require.NoError(t, err)

	m.RecordRequest("openaq", "fetch", 120*time.Millisecond, nil)
	m.RecordRequest("openaq", "fetch", 80*time.Millisecond, nil)
	m.RecordRequest("openaq", "fetch", 10*time.Second, context.DeadlineExceeded)
	m.RecordRequest("openweather", "current", time.Millisecond, resilience.ErrCircuitOpen)
	m.RecordRequest("gemini", "sections", time.Second, errors.New("500"))

	outcomes := map[string]int64{}
	for _, dp := range counterPoints(t, reader, "clearskies.source.requests") {
		key := attr(dp, "source.name").AsString() + "/" + attr(dp, "source.outcome").AsString()
		outcomes[key] = dp.Value
	}

	assert.Equal(t, map[string]int64{
		"openaq/ok":                2,
		"openaq/timeout":           1,
		"openweather/circuit open": 1,
		"gemini/upstream error":    1,
	}, outcomes)
}

func TestSourceMetrics_CacheLookups(t *testing.T) {
	reader, provider := newReader(t)
	m, err := middleware.NewSourceMetricsWithMeter(provider.Meter("test"))
	require.NoError(t, err)

	m.RecordCacheHit("gemini", "sections")
	m.RecordCacheHit("gemini", "sections")
	m.RecordCacheMiss("gemini", "sections")

	hits := map[bool]int64{}
	for _, dp := range counterPoints(t, reader, "clearskies.source.cache.lookups") {
		hits[attr(dp, "cache.hit").AsBool()] = dp.Value
	}
	assert.Equal(t, map[bool]int64{true: 2, false: 1}, hits)
}
