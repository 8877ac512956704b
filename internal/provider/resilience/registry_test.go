package resilience_test

import (
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearskies/clearskies/internal/provider/resilience"
)

func newRegisteredClient(registry *resilience.Registry, name string) *resilience.Client {
	cfg := resilience.DefaultClientConfig(name)
	cfg.Registry = registry
	return resilience.NewClient(cfg)
}

func TestRegistry_RegisterAndGetHealth(t *testing.T) {
	registry := resilience.NewRegistry()
	client := newRegisteredClient(registry, "openaq")

	assert.Equal(t, 1, registry.ProviderCount())
	assert.Equal(t, "openaq", client.Name())

	health := registry.GetHealth("openaq")
	require.NotNil(t, health)
	assert.Equal(t, gobreaker.StateClosed, health.CircuitState)
	assert.True(t, health.IsHealthy())
	assert.Equal(t, "healthy", health.Status())
}

func TestRegistry_RegisterSource(t *testing.T) {
	registry := resilience.NewRegistry()
	registry.RegisterSource("tempo")
	registry.RegisterSource("tempo")

	assert.Equal(t, 1, registry.ProviderCount())

	registry.RecordFailure("tempo", assert.AnError)
	health := registry.GetHealth("tempo")
	require.NotNil(t, health)
	assert.Equal(t, gobreaker.StateClosed, health.CircuitState)
	assert.True(t, health.IsDegraded())
	assert.Equal(t, "degraded", health.Status())
}

func TestRegistry_Unregister(t *testing.T) {
	registry := resilience.NewRegistry()
	_ = newRegisteredClient(registry, "openaq")

	registry.Unregister("openaq")

	assert.Equal(t, 0, registry.ProviderCount())
	assert.Nil(t, registry.GetHealth("openaq"))
}

func TestRegistry_RecordOutcomes(t *testing.T) {
	registry := resilience.NewRegistry()
	_ = newRegisteredClient(registry, "openweather")

	registry.RecordFailure("openweather", assert.AnError)
	registry.RecordFailure("openweather", assert.AnError)

	health := registry.GetHealth("openweather")
	require.NotNil(t, health)
	require.NotNil(t, health.LastFailureAt)
	assert.WithinDuration(t, time.Now(), *health.LastFailureAt, time.Second)
	assert.Equal(t, assert.AnError.Error(), health.LastError)
	assert.Equal(t, 2, health.ConsecutiveFailures)

	registry.RecordSuccess("openweather")

	health = registry.GetHealth("openweather")
	require.NotNil(t, health.LastSuccessAt)
	assert.Zero(t, health.ConsecutiveFailures)
	assert.True(t, health.IsHealthy())
}

func TestRegistry_GetAllHealthSorted(t *testing.T) {
	registry := resilience.NewRegistry()
	for _, name := range []string{"tempo", "gemini", "openaq"} {
		_ = newRegisteredClient(registry, name)
	}

	healthList := registry.GetAllHealth()
	require.Len(t, healthList, 3)
	assert.Equal(t, "gemini", healthList[0].Name)
	assert.Equal(t, "openaq", healthList[1].Name)
	assert.Equal(t, "tempo", healthList[2].Name)

	assert.Equal(t, []string{"gemini", "openaq", "tempo"}, registry.GetProviderNames())
}

func TestRegistry_UnknownNames(t *testing.T) {
	registry := resilience.NewRegistry()

	assert.Nil(t, registry.GetHealth("nonexistent"))
	assert.NotPanics(t, func() {
		registry.RecordSuccess("nonexistent")
		registry.RecordFailure("nonexistent", assert.AnError)
	})
}

func TestProviderHealth_States(t *testing.T) {
	tests := []struct {
		state      gobreaker.State
		isHealthy  bool
		isDegraded bool
		isUnhealth bool
		status     string
	}{
		{gobreaker.StateClosed, true, false, false, "healthy"},
		{gobreaker.StateHalfOpen, false, true, false, "degraded"},
		{gobreaker.StateOpen, false, false, true, "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			h := &resilience.ProviderHealth{CircuitState: tt.state}
			assert.Equal(t, tt.isHealthy, h.IsHealthy())
			assert.Equal(t, tt.isDegraded, h.IsDegraded())
			assert.Equal(t, tt.isUnhealth, h.IsUnhealthy())
			assert.Equal(t, tt.status, h.Status())
		})
	}
}
