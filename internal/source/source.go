// Package source holds the vocabulary shared by every upstream data source:
// availability, provenance and the observer that reports call outcomes.
package source

import (
	"time"
)

// Source names used in availability records, logs and metrics.
const (
	Satellite    = "tempo"
	GroundSensor = "openaq"
	Weather      = "openweather"
	Narration    = "gemini"
	Geocoding    = "nominatim"
	Wildfire     = "firms"
)

// Confidence values attached to a successful fetch.
const (
	SatelliteConfidence = 0.88
	GroundConfidence    = 0.94
	BlendedConfidence   = 0.92
)

// Provenance records how a value was obtained.
type Provenance string

const (
	Live      Provenance = "live"
	Estimated Provenance = "estimated"
	Synthetic Provenance = "synthetic"
)

// Availability describes the outcome of one fetch from one source.
type Availability struct {
	Source     string    `json:"source"`
	Available  bool      `json:"available"`
	Confidence float64   `json:"confidence"`
	Reason     string    `json:"reason,omitempty"`
	FetchedAt  time.Time `json:"fetchedAt"`
}

// Available returns a successful availability record.
func Available(name string, confidence float64, at time.Time) Availability {
	return Availability{Source: name, Available: true, Confidence: confidence, FetchedAt: at}
}

// Unavailable returns a failed availability record with a human readable reason.
func Unavailable(name, reason string, at time.Time) Availability {
	return Availability{Source: name, Reason: reason, FetchedAt: at}
}

// Common unavailability reasons.
const (
	ReasonNotConfigured = "not configured"
	ReasonOutOfCoverage = "location outside coverage"
	ReasonNoData        = "no data for location"
	ReasonTimeout       = "timeout"
	ReasonUpstream      = "upstream error"
	ReasonCircuitOpen   = "circuit open"
)
