package satellite_test

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/clearskies/clearskies/internal/satellite"
	"github.com/clearskies/clearskies/internal/source"
)

type stubStore struct {
	grid  *satellite.Grid
	err   error
	calls atomic.Int32
}

func (s *stubStore) Latest(_ context.Context) (*satellite.Grid, error) {
	s.calls.Add(1)
	return s.grid, s.err
}

func (s *stubStore) Save(_ context.Context, _ string, _ []byte) error { return nil }

func nycGrid() *satellite.Grid {
	return &satellite.Grid{
		Product:    "TEMPO_NO2_L3",
		Unit:       "molecules/cm^2",
		ObservedAt: time.Date(2026, 10, 15, 18, 0, 0, 0, time.UTC),
		Lats:       []float64{40.70, 40.75, 40.80},
		Lons:       []float64{-74.00, -73.95},
		Values:     [][]float64{{1e15, 2e15}, {3.5e15, 3e15}, {4e15, 5e15}},
	}
}

func newService(store satellite.SnapshotStore) *satellite.Service {
	return satellite.NewService(satellite.ServiceConfig{
		Store:  store,
		Logger: zerolog.New(io.Discard),
	})
}

func TestService_Fetch(t *testing.T) {
	store := &stubStore{grid: nycGrid()}
	svc := newService(store)

	r := svc.Fetch(context.Background(), 40.7549, -73.9840)

	assert.True(t, r.Availability.Available)
	assert.Equal(t, source.Satellite, r.Availability.Source)
	assert.Equal(t, 0.88, r.Availability.Confidence)
	assert.InDelta(t, 3.5e15, r.NO2, 1)
	assert.Less(t, r.DistanceKm, 5.0)
	assert.Equal(t, "TEMPO_NO2_L3", r.Product)

	svc.Fetch(context.Background(), 40.7549, -73.9840)
	assert.Equal(t, int32(1), store.calls.Load(), "snapshot should be cached")

	svc.Invalidate()
	svc.Fetch(context.Background(), 40.7549, -73.9840)
	assert.Equal(t, int32(2), store.calls.Load())
}

func TestService_Unavailable(t *testing.T) {
	tests := []struct {
		name     string
		store    satellite.SnapshotStore
		lat, lon float64
		reason   string
	}{
		{"no store", nil, 40.75, -73.98, source.ReasonNotConfigured},
		{"outside coverage", &stubStore{grid: nycGrid()}, 51.5, -0.12, source.ReasonOutOfCoverage},
		{"no snapshot", &stubStore{err: satellite.ErrNoSnapshot}, 40.75, -73.98, source.ReasonNoData},
		{"cell too far", &stubStore{grid: nycGrid()}, 42.36, -71.06, source.ReasonNoData},
		{"store failure", &stubStore{err: assert.AnError}, 40.75, -73.98, source.ReasonUpstream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var svc *satellite.Service
			if tt.store == nil {
				svc = satellite.NewService(satellite.ServiceConfig{Logger: zerolog.New(io.Discard)})
			} else {
				svc = newService(tt.store)
			}

			r := svc.Fetch(context.Background(), tt.lat, tt.lon)
			assert.False(t, r.Availability.Available)
			assert.Equal(t, tt.reason, r.Availability.Reason)
			assert.Zero(t, r.NO2)
		})
	}
}
