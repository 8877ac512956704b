package alerts_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearskies/clearskies/internal/alerts"
	"github.com/clearskies/clearskies/internal/aqi"
)

var now = time.Date(2025, 10, 1, 15, 0, 0, 0, time.UTC)

func TestGenerate_Thresholds(t *testing.T) {
	tests := []struct {
		aqi       int
		active    int
		upcoming  int
		severity  alerts.Severity
		predicted int
	}{
		{aqi: 0},
		{aqi: 50},
		{aqi: 51, upcoming: 1, predicted: 61},
		{aqi: 100, upcoming: 1, predicted: 120},
		{aqi: 101, active: 1, upcoming: 1, severity: alerts.SeverityWarning, predicted: 121},
		{aqi: 150, active: 1, upcoming: 1, severity: alerts.SeverityWarning, predicted: 180},
		{aqi: 151, active: 1, upcoming: 1, severity: alerts.SeverityCritical, predicted: 181},
	}

	for _, tt := range tests {
		t.Run(aqi.CategoryOf(tt.aqi).Label(), func(t *testing.T) {
			result := alerts.Generate(tt.aqi, now)

			require.Len(t, result.ActiveAlerts, tt.active)
			require.Len(t, result.UpcomingAlerts, tt.upcoming)
			if tt.active > 0 {
				assert.Equal(t, tt.severity, result.ActiveAlerts[0].Severity)
			}
			if tt.upcoming > 0 {
				assert.Equal(t, tt.predicted, result.UpcomingAlerts[0].PredictedAQI)
			}
		})
	}
}

func TestGenerate_WarningAlert(t *testing.T) {
	result := alerts.Generate(112, now)

	require.Len(t, result.ActiveAlerts, 1)
	alert := result.ActiveAlerts[0]

	assert.Equal(t, "alert-unhealthy-sensitive-001", alert.ID)
	assert.Equal(t, "Unhealthy-Sensitive Air Quality Advisory", alert.Title)
	assert.Equal(t, aqi.UnhealthyForSensitiveGroups, alert.Category)
	assert.Equal(t, 2, alert.Priority)
	assert.Equal(t, "moderate", alert.Urgency)
	assert.Equal(t, aqi.HealthMessageOf(112), alert.Message)
	assert.Equal(t, alerts.Issuer, alert.IssuedBy)
	assert.Equal(t, now, alert.ValidFrom)
	assert.Equal(t, now.Add(8*time.Hour), alert.ValidTo)
	assert.Len(t, alert.Recommendations, 4)
	assert.Len(t, alert.AffectedGroups, 4)
	assert.NotContains(t, alert.AffectedGroups, "Everyone")

	require.Len(t, result.UpcomingAlerts, 1)
	upcoming := result.UpcomingAlerts[0]
	assert.Equal(t, 134, upcoming.PredictedAQI)
	assert.Equal(t, alerts.UpcomingType, upcoming.Type)
	assert.Equal(t, now.Add(12*time.Hour), upcoming.Timestamp)
}

func TestGenerate_RecommendationsAccumulate(t *testing.T) {
	warning := alerts.Generate(101, now).ActiveAlerts[0]
	critical := alerts.Generate(151, now).ActiveAlerts[0]
	severe := alerts.Generate(201, now).ActiveAlerts[0]

	assert.Equal(t, warning.Recommendations, critical.Recommendations[:len(warning.Recommendations)])
	assert.Len(t, critical.Recommendations, 7)
	assert.Contains(t, critical.Recommendations, "Wear an N95 mask outdoors")
	assert.Equal(t, 3, critical.Priority)
	assert.Equal(t, "high", critical.Urgency)

	assert.Equal(t, critical.Recommendations, severe.Recommendations[:len(critical.Recommendations)])
	assert.Len(t, severe.Recommendations, 9)
	assert.Contains(t, severe.AffectedGroups, "Everyone")
	assert.Equal(t, "alert-very-unhealthy-001", severe.ID)
}

func TestGenerate_EmptySlicesNotNil(t *testing.T) {
	result := alerts.Generate(20, now)

	assert.NotNil(t, result.ActiveAlerts)
	assert.NotNil(t, result.UpcomingAlerts)
}

func TestForGroup(t *testing.T) {
	result := alerts.ForGroup(80, true, now)

	assert.True(t, result.SensitiveGroup)
	assert.Empty(t, result.ActiveAlerts)
	assert.Len(t, result.UpcomingAlerts, 1)
}
