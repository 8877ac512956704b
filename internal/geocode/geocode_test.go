package geocode_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearskies/clearskies/internal/geocode"
)

const sfResponse = `{
	"display_name": "Market Street, San Francisco",
	"address": {
		"road": "Market Street",
		"neighbourhood": "Financial District",
		"city": "San Francisco",
		"state": "California",
		"postcode": "94103",
		"country": "United States",
		"country_code": "us"
	}
}`

func TestEstimateTimezone(t *testing.T) {
	tests := []struct {
		lon  float64
		want string
	}{
		{-122.4194, "UTC-8"},
		{-73.984, "UTC-4"},
		{0, "UTC"},
		{10, "UTC"},
		{139.69, "UTC+9"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, geocode.EstimateTimezone(tt.lon))
	}

	name, offset := time.Now().In(geocode.EstimatedZone(-122.4194)).Zone()
	assert.Equal(t, "UTC-8", name)
	assert.Equal(t, -8*3600, offset)
}

func TestFallback(t *testing.T) {
	loc := geocode.Fallback(37.7749, -122.4194)

	assert.Equal(t, "37.7749, -122.4194", loc.DisplayName)
	assert.Equal(t, "UTC-8", loc.Timezone)
	assert.Equal(t, geocode.DataSourceCoordinates, loc.DataSource)
	assert.Equal(t, 100, loc.PrecisionMeters)
}

func TestClient_Reverse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "18", r.URL.Query().Get("zoom"))
		assert.Equal(t, "1", r.URL.Query().Get("addressdetails"))
		assert.Equal(t, "ClearSkies Air Quality App", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(sfResponse))
	}))
	defer server.Close()

	client := geocode.NewClient(geocode.ClientConfig{BaseURL: server.URL})

	loc, err := client.Reverse(context.Background(), 37.7749, -122.4194)
	require.NoError(t, err)

	assert.Equal(t, "Financial District, San Francisco, California, United States", loc.DisplayName)
	assert.Equal(t, "San Francisco", loc.City)
	assert.Equal(t, "US", loc.CountryCode)
	assert.Equal(t, "Market Street", loc.Road)
	assert.Equal(t, geocode.DataSourceNominatim, loc.DataSource)
	assert.Equal(t, "UTC-8", loc.Timezone)
	assert.Contains(t, loc.PrecisionDescription, "Accurate to")
}

func TestClient_ReverseNoAddress(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error":"Unable to geocode"}`))
	}))
	defer server.Close()

	client := geocode.NewClient(geocode.ClientConfig{BaseURL: server.URL})

	_, err := client.Reverse(context.Background(), 0, -160)
	assert.ErrorIs(t, err, geocode.ErrNoAddress)
}

func TestService_CachesAndFallsBack(t *testing.T) {
	var calls atomic.Int32
	var fail atomic.Bool

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		if fail.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(sfResponse))
	}))
	defer server.Close()

	service := geocode.NewService(geocode.ServiceConfig{
		Reverser: geocode.NewClient(geocode.ClientConfig{BaseURL: server.URL}),
		Logger:   zerolog.Nop(),
	})
	ctx := context.Background()

	first := service.Resolve(ctx, 37.7749, -122.4194)
	second := service.Resolve(ctx, 37.7749, -122.4194)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load())

	fail.Store(true)
	other := service.Resolve(ctx, 40.7549, -73.9840)
	assert.Equal(t, geocode.DataSourceCoordinates, other.DataSource)
	assert.Equal(t, "40.7549, -73.9840", other.DisplayName)
}

func TestService_Disabled(t *testing.T) {
	service := geocode.NewService(geocode.ServiceConfig{Logger: zerolog.Nop()})

	loc := service.Resolve(context.Background(), 51.5, -0.12)
	assert.Equal(t, geocode.DataSourceCoordinates, loc.DataSource)
	assert.Equal(t, "UTC", loc.Timezone)
}
