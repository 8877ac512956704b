// Package weather provides current conditions and short-term forecasts.
package weather

import (
	"errors"
	"time"

	"github.com/clearskies/clearskies/internal/source"
)

// Weather errors.
var (
	ErrProviderUnavailable = errors.New("weather provider unavailable")
	ErrNotConfigured       = errors.New("weather provider not configured")
	ErrInvalidCoordinates  = errors.New("invalid coordinates")
)

// DefaultVisibility is reported when the provider omits visibility, in meters.
const DefaultVisibility = 10000

// Observation is the current weather at a point.
type Observation struct {
	Lat float64
	Lon float64

	Temperature   float64 // Celsius
	Humidity      float64 // percent
	Pressure      float64 // hPa
	WindSpeed     float64 // m/s
	WindDirection float64 // degrees, 0=N

	Condition   Condition
	Description string

	Visibility float64 // meters

	ObservedAt time.Time
	FetchedAt  time.Time
}

// Condition is the general weather condition.
type Condition string

const (
	ConditionClear        Condition = "CLEAR"
	ConditionClouds       Condition = "CLOUDS"
	ConditionRain         Condition = "RAIN"
	ConditionDrizzle      Condition = "DRIZZLE"
	ConditionThunderstorm Condition = "THUNDERSTORM"
	ConditionSnow         Condition = "SNOW"
	ConditionMist         Condition = "MIST"
	ConditionFog          Condition = "FOG"
	ConditionHaze         Condition = "HAZE"
	ConditionUnknown      Condition = "UNKNOWN"
)

// Precipitating reports whether the condition washes particulates out of the air.
func (c Condition) Precipitating() bool {
	switch c {
	case ConditionRain, ConditionDrizzle, ConditionThunderstorm, ConditionSnow:
		return true
	}
	return false
}

// Forecast is a sequence of 3-hour slots.
type Forecast struct {
	Lat       float64
	Lon       float64
	Slots     []Slot
	FetchedAt time.Time
}

// MaxSlots is the provider's cap: five days of 3-hour slots.
const MaxSlots = 40

// Slot is the forecast for one 3-hour window starting at Time.
type Slot struct {
	Time        time.Time
	Temperature float64
	Humidity    float64
	WindSpeed   float64
	Condition   Condition
	Description string

	// PrecipMM is the rain or snow volume for the slot.
	PrecipMM float64
	// PrecipProb is the probability of precipitation, 0..1.
	PrecipProb float64
}

// Precipitation reports whether any rain or snow is expected in the slot.
func (s Slot) Precipitation() bool {
	return s.PrecipMM > 0 || s.Condition.Precipitating()
}

// CurrentResult pairs an observation with its availability.
type CurrentResult struct {
	Availability source.Availability
	Observation  *Observation
}

// ForecastResult pairs a forecast with its availability.
type ForecastResult struct {
	Availability source.Availability
	Forecast     *Forecast
}
