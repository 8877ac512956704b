package bootstrap_test

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearskies/clearskies/internal/bootstrap"
	"github.com/clearskies/clearskies/internal/config"
	"github.com/clearskies/clearskies/internal/featureflags"
	"github.com/clearskies/clearskies/internal/source"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		level     string
		debugSeen bool
	}{
		{"debug", true},
		{"INFO", false},
		{"nonsense", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := bootstrap.NewLogger(&buf, "clearskies-api", "test", tt.level)
			logger.Debug().Msg("debug line")
			logger.Info().Msg("info line")

			assert.Equal(t, tt.debugSeen, bytes.Contains(buf.Bytes(), []byte("debug line")))
			assert.Contains(t, buf.String(), `"service":"clearskies-api"`)
			assert.Contains(t, buf.String(), "info line")
		})
	}
}

func memoryConfig() *config.Config {
	cfg := config.Default()
	cfg.History.Driver = config.DriverMemory
	cfg.Sources.Geocoding.Enabled = false
	return cfg
}

func TestOpenStores_Memory(t *testing.T) {
	stores, err := bootstrap.OpenStores(context.Background(), memoryConfig(), zerolog.Nop())
	require.NoError(t, err)
	defer stores.Close()

	assert.Nil(t, stores.Pool)
	assert.Nil(t, stores.SQLite)
	assert.NotNil(t, stores.History)
	assert.NotNil(t, stores.Flags)
	assert.NotNil(t, stores.Devices)
	assert.Empty(t, stores.Subsystems())
}

func TestOpenStores_SQLite(t *testing.T) {
	cfg := memoryConfig()
	cfg.History.Driver = config.DriverSQLite
	cfg.History.SQLitePath = filepath.Join(t.TempDir(), "history.db")

	stores, err := bootstrap.OpenStores(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer stores.Close()

	require.NotNil(t, stores.SQLite)
	probes := stores.Subsystems()
	require.Contains(t, probes, "sqlite")
	assert.NoError(t, probes["sqlite"].Ping(context.Background()))
}

func TestBuildServices(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig()
	cfg.Sources.Satellite.Dir = t.TempDir()

	stores, err := bootstrap.OpenStores(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	defer stores.Close()

	svc, err := bootstrap.BuildServices(ctx, cfg, stores, zerolog.Nop())
	require.NoError(t, err)
	defer svc.Close()

	assert.NotNil(t, svc.Aggregator)
	assert.NotNil(t, svc.History)
	assert.Nil(t, svc.Fetcher)
	assert.True(t, svc.Flags.IsEnabled(ctx, featureflags.FlagNarration))

	names := svc.Registry.GetProviderNames()
	assert.Contains(t, names, source.GroundSensor)
	assert.Contains(t, names, source.Satellite)
	assert.NotContains(t, names, source.Weather)
	assert.NotContains(t, names, source.Narration)
}

func TestBuildServices_SnapshotFetcher(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig()
	cfg.Sources.Satellite.Dir = t.TempDir()
	cfg.Sources.Satellite.SnapshotURL = "http://localhost:1/tempo.json"
	cfg.Sources.OpenWeather.APIKey = "weather-key"

	stores, err := bootstrap.OpenStores(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	defer stores.Close()

	svc, err := bootstrap.BuildServices(ctx, cfg, stores, zerolog.Nop())
	require.NoError(t, err)
	defer svc.Close()

	assert.NotNil(t, svc.Fetcher)
	assert.Contains(t, svc.Registry.GetProviderNames(), source.Weather)
	assert.NotContains(t, svc.Registry.GetProviderNames(), "tempo-snapshots")
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	server := &http.Server{
		Addr: addr,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}),
		ReadHeaderTimeout: time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- bootstrap.Serve(ctx, server, time.Second, zerolog.Nop())
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusNoContent
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}
