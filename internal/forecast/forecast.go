// Package forecast projects AQI over the next hours from a baseline using a
// diurnal traffic pattern and, when available, the weather forecast.
package forecast

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/clearskies/clearskies/internal/aqi"
	"github.com/clearskies/clearskies/internal/geocode"
	"github.com/clearskies/clearskies/internal/source"
	"github.com/clearskies/clearskies/internal/weather"
)

// Mode is the model used for a forecast.
type Mode string

const (
	ModeLive     Mode = "live"
	ModeFallback Mode = "fallback"
)

// Trend summarises the direction of a forecast.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendWorsening Trend = "worsening"
	TrendStable    Trend = "stable"
)

const (
	// DefaultHours is used when the caller does not ask for a window.
	DefaultHours = 24
	// MaxHours is the five-day reach of the weather forecast.
	MaxHours = 120

	// MaxFallbackPoints caps the synthetic sequence.
	MaxFallbackPoints = 8
	// Step is the resolution of both modes.
	Step = 3 * time.Hour

	LiveConfidence     = 0.82
	FallbackConfidence = 0.65

	LiveModelVersion     = "weather-adjusted-v1"
	FallbackModelVersion = "diurnal-pattern-v1"

	MinAQI = 20
	MaxAQI = 200

	// HourLayout renders the local hour, e.g. "07 AM".
	HourLayout = "03 PM"
)

// TrafficMultiplier models the morning and evening rush and the pre-dawn lull.
func TrafficMultiplier(hour int) float64 {
	switch {
	case hour >= 7 && hour <= 9:
		return 1.3
	case hour >= 17 && hour <= 19:
		return 1.2
	case hour >= 2 && hour <= 5:
		return 0.7
	default:
		return 1.0
	}
}

// WindFactor reduces AQI as wind disperses pollutants. Speed is in m/s.
func WindFactor(speed float64) float64 {
	switch {
	case speed < 3:
		return 1.0
	case speed < 7:
		return 0.9
	default:
		return 0.8
	}
}

// RainFactor reduces AQI when precipitation washes out particulates.
func RainFactor(precipitation bool) float64 {
	if precipitation {
		return 0.85
	}
	return 1.0
}

// Project applies the multiplier model to a baseline and clamps to [MinAQI, MaxAQI].
func Project(baseline int, hour int, windSpeed float64, precipitation bool) int {
	v := float64(baseline) * TrafficMultiplier(hour) * WindFactor(windSpeed) * RainFactor(precipitation)
	return int(math.Max(MinAQI, math.Min(MaxAQI, v)))
}

// Point is one forecast step.
type Point struct {
	Timestamp   time.Time          `json:"timestamp"`
	Hour        string             `json:"hour"`
	AQI         int                `json:"aqi"`
	Category    aqi.Category       `json:"category"`
	Pollutants  map[string]float64 `json:"pollutants"`
	Temperature float64            `json:"temperature"`
	Humidity    float64            `json:"humidity"`
	WindSpeed   float64            `json:"windSpeed"`
	Conditions  string             `json:"conditions"`
	Provenance  source.Provenance  `json:"provenance"`
}

// Extreme is the best or worst point of a forecast.
type Extreme struct {
	Timestamp time.Time `json:"timestamp"`
	AQI       int       `json:"aqi"`
	Hour      string    `json:"hour"`
}

// Summary describes the sequence as a whole.
type Summary struct {
	Best  Extreme `json:"best"`
	Worst Extreme `json:"worst"`
	Trend Trend   `json:"trend"`
}

// Result is a generated forecast.
type Result struct {
	GeneratedAt     time.Time `json:"generatedAt"`
	ModelVersion    string    `json:"modelVersion"`
	ModelConfidence float64   `json:"modelConfidence"`
	Mode            Mode      `json:"mode"`
	BaselineAQI     int       `json:"baselineAQI"`
	Hours           int       `json:"hours"`
	Hourly          []Point   `json:"hourly"`
	Summary         Summary   `json:"summary"`
}

// WeatherSource supplies the 3-hour weather forecast.
type WeatherSource interface {
	Outlook(ctx context.Context, lat, lon float64) weather.ForecastResult
}

// Config configures a Generator.
type Config struct {
	// Weather is optional; without it every forecast uses fallback mode.
	Weather WeatherSource
	Logger  zerolog.Logger

	// UseWeather, when set, is asked before every forecast whether the
	// weather forecast may be used.
	UseWeather func(ctx context.Context) bool

	// Now defaults to time.Now.
	Now func() time.Time
}

// Generator builds forecasts.
type Generator struct {
	weather    WeatherSource
	useWeather func(ctx context.Context) bool
	logger     zerolog.Logger
	now        func() time.Time
}

// NewGenerator creates a Generator.
func NewGenerator(cfg Config) *Generator {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Generator{weather: cfg.Weather, useWeather: cfg.UseWeather, logger: cfg.Logger, now: now}
}

// NormalizeHours maps a requested window onto [1, MaxHours], using
// DefaultHours for non-positive values.
func NormalizeHours(hours int) int {
	switch {
	case hours <= 0:
		return DefaultHours
	case hours > MaxHours:
		return MaxHours
	default:
		return hours
	}
}

// Generate projects baseline over the next hours. It uses the weather
// forecast when it has slots inside the window and falls back to the
// synthetic diurnal model otherwise.
func (g *Generator) Generate(ctx context.Context, lat, lon float64, baseline, hours int) Result {
	hours = NormalizeHours(hours)
	now := g.now().UTC()
	zone := geocode.EstimatedZone(lon)

	if g.weather != nil && (g.useWeather == nil || g.useWeather(ctx)) {
		outlook := g.weather.Outlook(ctx, lat, lon)
		if outlook.Availability.Available && outlook.Forecast != nil {
			if points := livePoints(outlook.Forecast.Slots, baseline, now, hours, zone); len(points) > 0 {
				return finish(Result{
					GeneratedAt:     now,
					ModelVersion:    LiveModelVersion,
					ModelConfidence: LiveConfidence,
					Mode:            ModeLive,
					BaselineAQI:     baseline,
					Hours:           hours,
					Hourly:          points,
				})
			}
			g.logger.Debug().
				Float64("lat", lat).
				Float64("lon", lon).
				Msg("weather forecast has no slots in window, using fallback model")
		}
	}

	return finish(Result{
		GeneratedAt:     now,
		ModelVersion:    FallbackModelVersion,
		ModelConfidence: FallbackConfidence,
		Mode:            ModeFallback,
		BaselineAQI:     baseline,
		Hours:           hours,
		Hourly:          fallbackPoints(baseline, now, hours, zone),
	})
}

func livePoints(slots []weather.Slot, baseline int, now time.Time, hours int, zone *time.Location) []Point {
	end := now.Add(time.Duration(hours) * time.Hour)

	var points []Point
	for _, slot := range slots {
		if slot.Time.Before(now) || slot.Time.After(end) {
			continue
		}
		local := slot.Time.In(zone)
		index := Project(baseline, local.Hour(), slot.WindSpeed, slot.Precipitation())

		conditions := slot.Description
		if conditions == "" {
			conditions = string(slot.Condition)
		}

		p := newPoint(slot.Time, local, index, source.Live)
		p.Temperature = slot.Temperature
		p.Humidity = slot.Humidity
		p.WindSpeed = slot.WindSpeed
		p.Conditions = conditions
		points = append(points, p)
	}
	return points
}

func fallbackPoints(baseline int, now time.Time, hours int, zone *time.Location) []Point {
	n := (hours + 2) / 3
	if n > MaxFallbackPoints {
		n = MaxFallbackPoints
	}

	points := make([]Point, 0, n)
	for i := 0; i < n; i++ {
		ts := now.Add(time.Duration(i) * Step)
		local := ts.In(zone)
		p := newPoint(ts, local, Project(baseline, local.Hour(), 0, false), source.Synthetic)
		p.Conditions = "Unknown"
		points = append(points, p)
	}
	return points
}

func newPoint(ts, local time.Time, index int, provenance source.Provenance) Point {
	return Point{
		Timestamp: ts,
		Hour:      local.Format(HourLayout),
		AQI:       index,
		Category:  aqi.CategoryOf(index),
		Pollutants: map[string]float64{
			"pm25": round1(float64(index) / 4.5),
			"o3":   round1(float64(index) / 2.2),
		},
		Provenance: provenance,
	}
}

// finish fills in the summary. The first occurrence wins for ties.
func finish(r Result) Result {
	points := r.Hourly
	if len(points) == 0 {
		r.Summary.Trend = TrendStable
		return r
	}

	best, worst := points[0], points[0]
	for _, p := range points[1:] {
		if p.AQI < best.AQI {
			best = p
		}
		if p.AQI > worst.AQI {
			worst = p
		}
	}
	r.Summary.Best = Extreme{Timestamp: best.Timestamp, AQI: best.AQI, Hour: best.Hour}
	r.Summary.Worst = Extreme{Timestamp: worst.Timestamp, AQI: worst.AQI, Hour: worst.Hour}

	first, last := points[0].AQI, points[len(points)-1].AQI
	switch {
	case last < first:
		r.Summary.Trend = TrendImproving
	case last > first:
		r.Summary.Trend = TrendWorsening
	default:
		r.Summary.Trend = TrendStable
	}
	return r
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
