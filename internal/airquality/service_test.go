package airquality_test

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearskies/clearskies/internal/airquality"
	"github.com/clearskies/clearskies/internal/aqi"
	"github.com/clearskies/clearskies/internal/source"
)

// mockProvider returns canned stations and per-station measurements.
type mockProvider struct {
	stations     []airquality.Station
	measurements map[int][]airquality.Measurement
	daily        []airquality.DailyMean
	err          error
	stationCalls atomic.Int32
	latestCalls  atomic.Int32
}

func (m *mockProvider) NearbyStations(_ context.Context, _, _ float64, _ int) ([]airquality.Station, error) {
	m.stationCalls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return m.stations, nil
}

func (m *mockProvider) LatestMeasurements(_ context.Context, st airquality.Station) ([]airquality.Measurement, error) {
	m.latestCalls.Add(1)
	ms, ok := m.measurements[st.ID]
	if !ok {
		return nil, errors.New("station offline")
	}
	return ms, nil
}

func (m *mockProvider) DailyMeans(_ context.Context, _ int, _, _ time.Time) ([]airquality.DailyMean, error) {
	return m.daily, nil
}

func sfProvider() *mockProvider {
	now := time.Now()
	return &mockProvider{
		stations: []airquality.Station{
			{ID: 2, Name: "Oakland West", DistanceKm: 12.8, Sensors: map[int]airquality.Sensor{20: {Parameter: aqi.PM25}}},
			{ID: 1, Name: "SF Arkansas", Operator: "AirNow", DistanceKm: 1.8, Sensors: map[int]airquality.Sensor{10: {Parameter: aqi.PM25}}},
			{ID: 3, Name: "Offline", DistanceKm: 5},
		},
		measurements: map[int][]airquality.Measurement{
			1: {
				{StationID: 1, Parameter: aqi.PM25, Value: 42, Unit: "µg/m³", MeasuredAt: now},
				{StationID: 1, Parameter: aqi.NO2, Value: 20, Unit: "ppb", MeasuredAt: now},
			},
			2: {
				{StationID: 2, Parameter: aqi.PM25, Value: 38, Unit: "µg/m³", MeasuredAt: now.Add(-time.Hour)},
			},
		},
	}
}

func newTestService(p airquality.Provider) *airquality.Service {
	return airquality.NewService(airquality.ServiceConfig{
		Provider: p,
		Logger:   zerolog.New(io.Discard),
	})
}

func TestService_Fetch(t *testing.T) {
	provider := sfProvider()
	svc := newTestService(provider)

	result := svc.Fetch(context.Background(), 37.7749, -122.4194)

	require.True(t, result.Availability.Available)
	assert.Equal(t, source.GroundConfidence, result.Availability.Confidence)
	assert.Equal(t, 3, result.StationCount)

	pm25, ok := result.Value(aqi.PM25)
	require.True(t, ok)
	assert.Equal(t, 40.0, pm25)
	assert.Equal(t, 2, result.Readings[aqi.PM25].StationCount)
	assert.Equal(t, 1, result.Readings[aqi.NO2].StationCount)

	require.NotNil(t, result.Nearest)
	assert.Equal(t, "SF Arkansas", result.Nearest.Name)
	assert.Equal(t, int32(3), provider.latestCalls.Load())
}

func TestService_FetchCachesByRoundedLocation(t *testing.T) {
	provider := sfProvider()
	svc := newTestService(provider)

	svc.Fetch(context.Background(), 37.7749, -122.4194)
	svc.Fetch(context.Background(), 37.77491, -122.41942)
	assert.Equal(t, int32(1), provider.stationCalls.Load())

	svc.Fetch(context.Background(), 37.80, -122.42)
	assert.Equal(t, int32(2), provider.stationCalls.Load())

	svc.InvalidateCache()
	svc.Fetch(context.Background(), 37.7749, -122.4194)
	assert.Equal(t, int32(3), provider.stationCalls.Load())
}

func TestService_FetchServesStaleOnError(t *testing.T) {
	provider := sfProvider()
	svc := airquality.NewService(airquality.ServiceConfig{
		Provider: provider,
		Logger:   zerolog.New(io.Discard),
		CacheTTL: time.Millisecond,
	})

	first := svc.Fetch(context.Background(), 37.7749, -122.4194)
	require.True(t, first.Availability.Available)

	time.Sleep(5 * time.Millisecond)
	provider.err = errors.New("boom")

	second := svc.Fetch(context.Background(), 37.7749, -122.4194)
	assert.True(t, second.Availability.Available)
	assert.Equal(t, first.Readings, second.Readings)
}

func TestService_FetchUnavailable(t *testing.T) {
	tests := []struct {
		name     string
		provider airquality.Provider
		reason   string
	}{
		{"no provider", nil, source.ReasonNotConfigured},
		{"provider error", &mockProvider{err: errors.New("dial tcp: refused")}, source.ReasonUpstream},
		{"no stations", &mockProvider{}, source.ReasonNoData},
		{"stations without data", &mockProvider{stations: []airquality.Station{{ID: 9}}}, source.ReasonNoData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var svc *airquality.Service
			if tt.provider == nil {
				svc = airquality.NewService(airquality.ServiceConfig{Logger: zerolog.New(io.Discard)})
			} else {
				svc = newTestService(tt.provider)
			}

			result := svc.Fetch(context.Background(), 37.7749, -122.4194)
			assert.False(t, result.Availability.Available)
			assert.Equal(t, tt.reason, result.Availability.Reason)
			assert.Empty(t, result.Readings)
		})
	}
}

func TestService_DailyHistory(t *testing.T) {
	provider := sfProvider()
	provider.daily = []airquality.DailyMean{{Date: time.Now().AddDate(0, 0, -1), Value: 9.5}}
	svc := newTestService(provider)

	means, err := svc.DailyHistory(context.Background(), 37.7749, -122.4194, 7)
	require.NoError(t, err)
	require.Len(t, means, 1)
	assert.Equal(t, 9.5, means[0].Value)

	_, err = newTestService(&mockProvider{}).DailyHistory(context.Background(), 0, 0, 7)
	assert.ErrorIs(t, err, airquality.ErrNoStations)
}
