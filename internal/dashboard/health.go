package dashboard

import (
	"context"
	"time"

	"github.com/clearskies/clearskies/internal/source"
)

// Reference point probed by the health report.
const (
	ReferenceLat  = 40.7549
	ReferenceLon  = -73.9840
	ReferenceName = "Midtown Manhattan, NYC"
)

// Service and overall health statuses.
const (
	StatusOperational   = "operational"
	StatusDegraded      = "degraded"
	StatusNotConfigured = "not_configured"

	StatusHealthy = "healthy"
)

// ServiceHealth is the probe result for one upstream.
type ServiceHealth struct {
	Status              string `json:"status"`
	Available           bool   `json:"available"`
	Reason              string `json:"reason,omitempty"`
	ResponseTimeMs      int64  `json:"response_time_ms"`
	CircuitState        string `json:"circuit_state,omitempty"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	LastError           string `json:"last_error,omitempty"`
}

// TestLocation is the point the probe used.
type TestLocation struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Name string  `json:"name"`
}

// HealthReport is the outcome of Health.
type HealthReport struct {
	Status              string                   `json:"status"`
	Timestamp           time.Time                `json:"timestamp"`
	Version             string                   `json:"version"`
	TestLocation        TestLocation             `json:"test_location"`
	Services            map[string]ServiceHealth `json:"services"`
	SampleAQI           int                      `json:"sample_aqi"`
	TotalResponseTimeMs int64                    `json:"total_response_time_ms"`
}

// Health probes every source at the reference point. A source that is not
// configured does not degrade the overall status.
func (a *Aggregator) Health(ctx context.Context) HealthReport {
	started := time.Now()
	snap := a.fetch(ctx, ReferenceLat, ReferenceLon, partSatellite|partGround|partWeather)
	sc := a.score(snap)

	services := map[string]ServiceHealth{
		source.Satellite:    a.serviceHealth(snap.satellite.Availability, snap.satelliteTook),
		source.GroundSensor: a.serviceHealth(snap.ground.Availability, snap.groundTook),
		source.Weather:      a.serviceHealth(snap.weather.Availability, snap.weatherTook),
	}

	narrationAv := source.Unavailable(source.Narration, source.ReasonNotConfigured, a.now().UTC())
	if a.narrator != nil && a.narrator.Configured() {
		narrationAv = source.Available(source.Narration, 1, narrationAv.FetchedAt)
	}
	services[source.Narration] = a.serviceHealth(narrationAv, 0)

	status := StatusHealthy
	for _, s := range services {
		if s.Status == StatusDegraded {
			status = StatusDegraded
		}
	}

	return HealthReport{
		Status:    status,
		Timestamp: a.now().UTC(),
		Version:   APIVersion,
		TestLocation: TestLocation{
			Lat:  ReferenceLat,
			Lon:  ReferenceLon,
			Name: ReferenceName,
		},
		Services:            services,
		SampleAQI:           sc.result.Index,
		TotalResponseTimeMs: time.Since(started).Milliseconds(),
	}
}

func (a *Aggregator) serviceHealth(av source.Availability, took time.Duration) ServiceHealth {
	h := ServiceHealth{
		Available:      av.Available,
		Reason:         av.Reason,
		ResponseTimeMs: took.Milliseconds(),
	}
	switch {
	case av.Available:
		h.Status = StatusOperational
	case av.Reason == source.ReasonNotConfigured || av.Reason == reasonDisabled:
		h.Status = StatusNotConfigured
	default:
		h.Status = StatusDegraded
	}

	if a.registry != nil {
		if ph := a.registry.GetHealth(av.Source); ph != nil {
			h.CircuitState = ph.CircuitState.String()
			h.ConsecutiveFailures = ph.ConsecutiveFailures
			h.LastError = ph.LastError
			if ph.IsUnhealthy() && h.Status == StatusOperational {
				h.Status = StatusDegraded
			}
		}
	}
	return h
}
