// Package models provides request and response models for the ClearSkies API.
package models

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

// Location parsing errors.
var (
	ErrMissingLocation = errors.New("latitude and longitude are required")
	ErrInvalidLocation = errors.New("latitude and longitude must be valid numbers")
)

// Envelope wraps every successful response.
type Envelope struct {
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Location is the coordinate pair accepted by every data endpoint. Values
// may be JSON numbers or numeric strings.
type Location struct {
	Latitude  any `json:"latitude"`
	Longitude any `json:"longitude"`
}

// Coordinates parses the pair. Range checks are left to the caller.
func (l Location) Coordinates() (lat, lon float64, err error) {
	if l.Latitude == nil || l.Longitude == nil {
		return 0, 0, ErrMissingLocation
	}
	lat, okLat := toFloat(l.Latitude)
	lon, okLon := toFloat(l.Longitude)
	if !okLat || !okLon {
		return 0, 0, ErrInvalidLocation
	}
	return lat, lon, nil
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// UserPreferences are optional client settings sent with a dashboard request.
type UserPreferences struct {
	SensitiveGroup bool   `json:"sensitiveGroup"`
	Units          string `json:"units,omitempty"`
}

// DashboardRequest is the body of POST /dashboard.
type DashboardRequest struct {
	Location
	Persona         string           `json:"persona,omitempty"`
	DeviceID        string           `json:"deviceId,omitempty"`
	UserPreferences *UserPreferences `json:"userPreferences,omitempty"`
}

// ForecastRequest is the body of POST /api/forecast. Hours defaults to 24.
type ForecastRequest struct {
	Location
	Hours int `json:"hours,omitempty"`
}

// AlertsRequest is the body of POST /api/alerts.
type AlertsRequest struct {
	Location
	SensitiveGroup bool `json:"sensitiveGroup,omitempty"`
}

// HistoricalRequest is the body of POST /api/historical.
type HistoricalRequest struct {
	Location
	Period string `json:"period,omitempty"`
}

// Supported historical periods.
var periodDays = map[string]int{
	"7d":  7,
	"30d": 30,
	"90d": 90,
}

// Days maps Period to a day count. Unknown or empty periods mean seven days.
func (r HistoricalRequest) Days() int {
	if d, ok := periodDays[r.Period]; ok {
		return d
	}
	return 7
}

// HealthStatus represents the health status of a service.
type HealthStatus string

const (
	HealthStatusOK       HealthStatus = "OK"
	HealthStatusDegraded HealthStatus = "DEGRADED"
	HealthStatusFail     HealthStatus = "FAIL"
)

// Timestamp is a helper type for time.Time with custom JSON formatting.
type Timestamp time.Time

// MarshalJSON implements json.Marshaler for Timestamp.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Time(t).Format(time.RFC3339) + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler for Timestamp.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	// Remove quotes
	s := string(data[1 : len(data)-1])
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return err
	}
	*t = Timestamp(parsed)
	return nil
}

// Time returns the underlying time.Time.
func (t Timestamp) Time() time.Time {
	return time.Time(t)
}
