package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearskies/clearskies/internal/api/handler"
	"github.com/clearskies/clearskies/internal/api/models"
	"github.com/clearskies/clearskies/internal/featureflags"
	"github.com/clearskies/clearskies/internal/provider/resilience"
)

func decodeStatus(t *testing.T, rec *httptest.ResponseRecorder) models.SystemStatus {
	t.Helper()
	var env struct {
		Success bool                `json:"success"`
		Data    models.SystemStatus `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	require.True(t, env.Success)
	return env.Data
}

func TestOpsHandler_SystemStatus(t *testing.T) {
	registry := resilience.NewRegistry()
	registry.RegisterSource("openaq")
	registry.RegisterSource("tempo")
	registry.RecordSuccess("openaq")
	registry.RecordFailure("tempo", errors.New("snapshot missing"))

	flags := featureflags.NewService(featureflags.ServiceConfig{
		Repository: featureflags.NewInMemoryRepository(),
		Logger:     zerolog.Nop(),
	})
	require.NoError(t, flags.Set(context.Background(), map[string]bool{featureflags.FlagNarration: false}, "quota"))

	h := handler.NewOpsHandler(handler.OpsConfig{
		Version: "1.2.3",
		Subsystems: map[string]handler.Pinger{
			"sqlite": handler.PingFunc(func(context.Context) error { return nil }),
		},
		Registry: registry,
		Flags:    flags,
	})

	rec := httptest.NewRecorder()
	h.SystemStatus(rec, httptest.NewRequest(http.MethodGet, "/ops/status", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)

	status := decodeStatus(t, rec)
	assert.Equal(t, models.HealthStatusDegraded, status.Status)
	require.Len(t, status.Providers, 2)
	assert.Equal(t, "openaq", status.Providers[0].Provider)
	assert.Equal(t, models.HealthStatusOK, status.Providers[0].Status)
	assert.NotNil(t, status.Providers[0].LastSuccessAt)
	assert.Equal(t, "tempo", status.Providers[1].Provider)
	assert.Equal(t, models.HealthStatusDegraded, status.Providers[1].Status)
	assert.Equal(t, 1, status.Providers[1].ConsecutiveFailures)
	require.NotNil(t, status.Providers[1].Message)
	assert.Equal(t, "snapshot missing", *status.Providers[1].Message)
	assert.Equal(t, []string{featureflags.FlagNarration}, status.ActiveDegradationFlags)
}

func TestOpsHandler_PingsConcurrently(t *testing.T) {
	slow := handler.PingFunc(func(ctx context.Context) error {
		select {
		case <-time.After(200 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	h := handler.NewOpsHandler(handler.OpsConfig{
		Subsystems: map[string]handler.Pinger{
			"postgres": slow,
			"sqlite":   slow,
			"valkey":   slow,
			"broken":   handler.PingFunc(func(context.Context) error { return errors.New("connection refused") }),
		},
	})

	start := time.Now()
	rec := httptest.NewRecorder()
	h.SystemStatus(rec, httptest.NewRequest(http.MethodGet, "/ops/status", http.NoBody))
	assert.Less(t, time.Since(start), 550*time.Millisecond)

	status := decodeStatus(t, rec)
	assert.Equal(t, models.HealthStatusFail, status.Status)
	require.Len(t, status.Subsystems, 4)
	assert.Equal(t, "broken", status.Subsystems[0].Name)
	assert.Equal(t, models.HealthStatusFail, status.Subsystems[0].Status)
	for _, s := range status.Subsystems[1:] {
		assert.Equal(t, models.HealthStatusOK, s.Status, s.Name)
		assert.GreaterOrEqual(t, s.LatencyMs, int64(150), s.Name)
	}
}

func TestOpsHandler_Readiness(t *testing.T) {
	tests := []struct {
		name string
		ping error
		want int
	}{
		{"ready", nil, http.StatusOK},
		{"subsystem down", errors.New("connection refused"), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handler.NewOpsHandler(handler.OpsConfig{
				Subsystems: map[string]handler.Pinger{
					"postgres": handler.PingFunc(func(context.Context) error { return tt.ping }),
				},
			})

			rec := httptest.NewRecorder()
			h.ReadinessCheck(rec, httptest.NewRequest(http.MethodGet, "/ops/ready", http.NoBody))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
