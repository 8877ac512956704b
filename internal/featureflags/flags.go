// Package featureflags holds the runtime switches operators flip to shed
// load or cut off an upstream without a deploy. Every switch is boolean,
// defaults to on and is stored only once it has been changed.
package featureflags

import (
	"fmt"
	"time"
)

// Switch keys.
const (
	FlagHistoryWrites    = "history_writes_enabled"
	FlagNarration        = "narration_enabled"
	FlagPersonaNarration = "persona_narration_enabled"
	FlagSatelliteSource  = "satellite_source_enabled"
	FlagLiveForecast     = "live_forecast_enabled"
)

// Definition describes a known switch.
type Definition struct {
	Key         string
	Description string
}

// Definitions lists every switch in display order.
var Definitions = []Definition{
	{FlagNarration, "Call the language model; when off every section uses fallback text"},
	{FlagPersonaNarration, "Make the persona guidance and live report calls"},
	{FlagSatelliteSource, "Score the satellite NO2 estimate in the overall AQI"},
	{FlagLiveForecast, "Shape the forecast with the weather forecast instead of the diurnal pattern only"},
	{FlagHistoryWrites, "Record today's reading in the history store on each dashboard request"},
}

// IsKnown reports whether key names a switch.
func IsKnown(key string) bool {
	for _, d := range Definitions {
		if d.Key == key {
			return true
		}
	}
	return false
}

// Defaults returns every switch turned on.
func Defaults() map[string]bool {
	out := make(map[string]bool, len(Definitions))
	for _, d := range Definitions {
		out[d.Key] = true
	}
	return out
}

// Flag is a switch and its effective state.
type Flag struct {
	Key         string    `json:"key"`
	Enabled     bool      `json:"enabled"`
	Description string    `json:"description"`
	Overridden  bool      `json:"overridden"`
	Reason      string    `json:"reason,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt,omitempty"`
}

// FlagList is the admin listing.
type FlagList struct {
	Items []Flag `json:"items"`
}

// Override is a stored change to a switch.
type Override struct {
	Key       string
	Enabled   bool
	Reason    string
	UpdatedAt time.Time
}

// FlagUpdate is one requested change. Value is decoded loosely so that a
// wrong type is reported per field rather than failing the whole body.
type FlagUpdate struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// FlagUpdateRequest is the body of PUT /admin/feature-flags.
type FlagUpdateRequest struct {
	Updates []FlagUpdate `json:"updates"`
	Reason  string       `json:"reason"`
}

// ValidationError describes an invalid update.
type ValidationError struct {
	Field   string
	Message string
	Code    string
}

// Validate checks the request and returns the changes it asks for.
func (r FlagUpdateRequest) Validate() (map[string]bool, []ValidationError) {
	if len(r.Updates) == 0 {
		return nil, []ValidationError{{Field: "updates", Message: "updates must not be empty", Code: "REQUIRED"}}
	}

	changes := make(map[string]bool, len(r.Updates))
	var errs []ValidationError
	for i, u := range r.Updates {
		if !IsKnown(u.Key) {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("updates[%d].key", i),
				Message: fmt.Sprintf("unknown flag %q", u.Key),
				Code:    "UNKNOWN_FLAG",
			})
			continue
		}
		enabled, ok := u.Value.(bool)
		if !ok {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("updates[%d].value", i),
				Message: "value must be a boolean",
				Code:    "INVALID_TYPE",
			})
			continue
		}
		changes[u.Key] = enabled
	}
	return changes, errs
}
