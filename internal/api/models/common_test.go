package models_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearskies/clearskies/internal/api/models"
)

func TestLocation_Coordinates(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		lat     float64
		lon     float64
		wantErr error
	}{
		{name: "numbers", body: `{"latitude": 37.7749, "longitude": -122.4194}`, lat: 37.7749, lon: -122.4194},
		{name: "numeric strings", body: `{"latitude": "40.7", "longitude": " -74.0 "}`, lat: 40.7, lon: -74.0},
		{name: "out of range is parsed", body: `{"latitude": 91, "longitude": 0}`, lat: 91, lon: 0},
		{name: "missing latitude", body: `{"longitude": 1}`, wantErr: models.ErrMissingLocation},
		{name: "null longitude", body: `{"latitude": 1, "longitude": null}`, wantErr: models.ErrMissingLocation},
		{name: "word", body: `{"latitude": "north", "longitude": 1}`, wantErr: models.ErrInvalidLocation},
		{name: "NaN string", body: `{"latitude": "NaN", "longitude": 1}`, wantErr: models.ErrInvalidLocation},
		{name: "boolean", body: `{"latitude": true, "longitude": 1}`, wantErr: models.ErrInvalidLocation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var loc models.Location
			require.NoError(t, json.Unmarshal([]byte(tt.body), &loc))

			lat, lon, err := loc.Coordinates()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.lat, lat, 1e-9)
			assert.InDelta(t, tt.lon, lon, 1e-9)
		})
	}
}

func TestDashboardRequest_EmbeddedLocation(t *testing.T) {
	var req models.DashboardRequest
	body := `{"latitude": 1.5, "longitude": 2.5, "persona": "school_administrator", "userPreferences": {"sensitiveGroup": true}}`
	require.NoError(t, json.Unmarshal([]byte(body), &req))

	lat, lon, err := req.Coordinates()
	require.NoError(t, err)
	assert.Equal(t, 1.5, lat)
	assert.Equal(t, 2.5, lon)
	assert.Equal(t, "school_administrator", req.Persona)
	require.NotNil(t, req.UserPreferences)
	assert.True(t, req.UserPreferences.SensitiveGroup)
}

func TestHistoricalRequest_Days(t *testing.T) {
	for period, want := range map[string]int{"": 7, "7d": 7, "30d": 30, "90d": 90, "1y": 7} {
		assert.Equal(t, want, models.HistoricalRequest{Period: period}.Days(), period)
	}
}
