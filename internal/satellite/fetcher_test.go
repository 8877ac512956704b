package satellite_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearskies/clearskies/internal/satellite"
)

func TestFetcher_Refresh(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer earthdata-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(sampleGrid))
	}))
	defer server.Close()

	store := satellite.NewDirStore(t.TempDir())
	fetcher := satellite.NewFetcher(satellite.FetcherConfig{
		URL:    server.URL,
		Token:  "earthdata-token",
		Store:  store,
		Logger: zerolog.New(io.Discard),
	})

	name, err := fetcher.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "TEMPO_NO2_L3_20261015T180000Z", name)

	grid, err := store.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "TEMPO_NO2_L3_20261015T180000Z.json", grid.Name)
}

func TestFetcher_RejectsBadPayloads(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, ""},
		{"malformed grid", http.StatusOK, `{"lats":[],"lons":[],"values":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			fetcher := satellite.NewFetcher(satellite.FetcherConfig{
				URL:    server.URL,
				Store:  satellite.NewDirStore(t.TempDir()),
				Logger: zerolog.New(io.Discard),
			})

			_, err := fetcher.Refresh(context.Background())
			assert.Error(t, err)
		})
	}
}
