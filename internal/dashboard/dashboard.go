// Package dashboard assembles the air quality dashboard from the satellite,
// ground sensor and weather sources, the forecast and historical builders, the
// alert generator and the narration service.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/clearskies/clearskies/internal/airquality"
	"github.com/clearskies/clearskies/internal/alerts"
	"github.com/clearskies/clearskies/internal/aqi"
	"github.com/clearskies/clearskies/internal/featureflags"
	"github.com/clearskies/clearskies/internal/forecast"
	"github.com/clearskies/clearskies/internal/geocode"
	"github.com/clearskies/clearskies/internal/historical"
	"github.com/clearskies/clearskies/internal/narration"
	"github.com/clearskies/clearskies/internal/provider/resilience"
	"github.com/clearskies/clearskies/internal/satellite"
	"github.com/clearskies/clearskies/internal/weather"
	"github.com/clearskies/clearskies/internal/wildfire"
)

const tracerName = "github.com/clearskies/clearskies/internal/dashboard"

// Coordinate errors. Both are reported before any source is called.
var (
	ErrInvalidLocation = errors.New("invalid location")
	ErrOutOfBounds     = errors.New("coordinates out of bounds")
	ErrNoData          = errors.New("no source reported data")
)

const (
	// APIVersion is reported in every payload's metadata.
	APIVersion = "2.1.0"

	// HistoricalDays is the window of the dashboard's historical block.
	HistoricalDays = 7

	// NextUpdateIn is when clients should refresh.
	NextUpdateIn = 2 * time.Minute

	// HistorySource labels readings the dashboard writes to the history store.
	HistorySource = "dashboard"

	// WarmSource labels readings written by the warm-up job.
	WarmSource = "warmup"

	// SourceCount is the number of raw data sources behind dataCompleteness.
	SourceCount = 3
)

// ValidateCoordinates rejects NaN, infinite and out-of-range coordinates.
func ValidateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return ErrInvalidLocation
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return fmt.Errorf("%w: latitude must be in [-90, 90] and longitude in [-180, 180]", ErrOutOfBounds)
	}
	return nil
}

// SatelliteFetcher supplies the satellite NO2 column near a point.
type SatelliteFetcher interface {
	Fetch(ctx context.Context, lat, lon float64) satellite.Reading
}

// GroundFetcher supplies ground-sensor readings near a point.
type GroundFetcher interface {
	Fetch(ctx context.Context, lat, lon float64) airquality.GroundResult
}

// WeatherSource supplies current conditions.
type WeatherSource interface {
	Current(ctx context.Context, lat, lon float64) weather.CurrentResult
}

// WildfireFetcher supplies active fires near a point.
type WildfireFetcher interface {
	Fetch(ctx context.Context, lat, lon float64) wildfire.Result
}

// Geocoder resolves coordinates to a place. It never fails.
type Geocoder interface {
	Resolve(ctx context.Context, lat, lon float64) geocode.Location
}

// Forecaster projects an AQI baseline forward.
type Forecaster interface {
	Generate(ctx context.Context, lat, lon float64, baseline, hours int) forecast.Result
}

// HistoryBuilder builds historical series.
type HistoryBuilder interface {
	Build(ctx context.Context, lat, lon float64, days int) historical.Result
}

// HistoryRecorder stores today's reading.
type HistoryRecorder interface {
	Record(ctx context.Context, lat, lon float64, result aqi.Result, pollutants map[string]float64, src string) error
}

// Narrator writes the narration blocks.
type Narrator interface {
	Configured() bool
	Narrate(ctx context.Context, t narration.PersonaType, in narration.Input) (narration.Sections, *narration.PersonaInsights, *narration.LiveReport)
}

// Flags evaluates feature flags.
type Flags interface {
	IsEnabled(ctx context.Context, key string) bool
}

// Config configures an Aggregator. Sources left nil are reported as not
// configured; Forecaster and Historical default to the builders without
// weather or stored data.
type Config struct {
	Satellite  SatelliteFetcher
	Ground     GroundFetcher
	Weather    WeatherSource
	Wildfires  WildfireFetcher
	Geocoder   Geocoder
	Forecaster Forecaster
	Historical HistoryBuilder
	History    HistoryRecorder
	Narrator   Narrator
	Flags      Flags

	// Registry supplies circuit breaker state for the health report.
	Registry *resilience.Registry

	// Calibration converts satellite columns to ppb. Default: satellite.DefaultCalibration.
	Calibration satellite.Calibration

	Logger zerolog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Aggregator builds dashboards.
type Aggregator struct {
	satellite   SatelliteFetcher
	ground      GroundFetcher
	weather     WeatherSource
	wildfires   WildfireFetcher
	geocoder    Geocoder
	forecaster  Forecaster
	historical  HistoryBuilder
	history     HistoryRecorder
	narrator    Narrator
	flags       Flags
	registry    *resilience.Registry
	calibration satellite.Calibration
	logger      zerolog.Logger
	now         func() time.Time
}

// NewAggregator creates an Aggregator.
func NewAggregator(cfg Config) *Aggregator {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	calibration := cfg.Calibration
	if calibration.Scale == 0 {
		calibration = satellite.DefaultCalibration
	}

	forecaster := cfg.Forecaster
	if forecaster == nil {
		forecaster = forecast.NewGenerator(forecast.Config{Logger: cfg.Logger, Now: now})
	}
	builder := cfg.Historical
	if builder == nil {
		builder = historical.NewBuilder(historical.Config{Logger: cfg.Logger, Now: now})
	}

	return &Aggregator{
		satellite:   cfg.Satellite,
		ground:      cfg.Ground,
		weather:     cfg.Weather,
		wildfires:   cfg.Wildfires,
		geocoder:    cfg.Geocoder,
		forecaster:  forecaster,
		historical:  builder,
		history:     cfg.History,
		narrator:    cfg.Narrator,
		flags:       cfg.Flags,
		registry:    cfg.Registry,
		calibration: calibration,
		logger:      cfg.Logger,
		now:         now,
	}
}

// Request is a dashboard request.
type Request struct {
	Lat      float64
	Lon      float64
	Persona  string
	DeviceID string

	// SensitiveGroup is echoed in the alerts block.
	SensitiveGroup bool
}

// Dashboard builds the full payload. Source and narration failures degrade
// the payload; the only error is an invalid location.
func (a *Aggregator) Dashboard(ctx context.Context, req Request) (*Payload, error) {
	if err := ValidateCoordinates(req.Lat, req.Lon); err != nil {
		return nil, err
	}

	started := time.Now()
	persona := parsePersona(req.Persona)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "dashboard.Build")
	defer span.End()
	span.SetAttributes(
		attribute.Float64("location.lat", req.Lat),
		attribute.Float64("location.lon", req.Lon),
		attribute.String("persona", string(persona)),
	)

	snap := a.fetch(ctx, req.Lat, req.Lon, partAll)
	sc := a.score(snap)
	a.record(ctx, req.Lat, req.Lon, sc)

	var (
		outlook forecast.Result
		series  historical.Result
	)
	var g errgroup.Group
	g.Go(func() error {
		outlook = a.forecaster.Generate(ctx, req.Lat, req.Lon, sc.forecastBaseline(), forecast.DefaultHours)
		return nil
	})
	g.Go(func() error {
		series = a.historical.Build(ctx, req.Lat, req.Lon, HistoricalDays)
		return nil
	})
	_ = g.Wait()

	now := a.now().UTC()
	health := alerts.ForGroup(sc.result.Index, req.SensitiveGroup, now)
	current := a.currentBlock(sc, snap, now)
	sources := a.sourcesBlock(sc, snap)
	weatherRaw := weatherBlock(snap.weather)

	in := narration.Input{
		Location:   snap.location,
		AQI:        sc.result,
		Pollutants: sc.pollutants(),
		Weather:    snap.weather.Observation,
		Sources:    snap.availabilities(),
		Forecast:   outlook,
		Historical: series,
		Alerts:     health,

		BreathScore: &current.BreathScore,
		NearestFire: snap.wildfire.Closest(),
	}
	sections, insights, report := a.narrate(ctx, persona, in)

	used := snap.used()
	payload := &Payload{
		Location:          snap.location,
		CurrentAQI:        Block[CurrentAQI, narration.AQISummary]{Raw: current, AISummary: sections.AQI},
		DataSources:       Block[Sources, narration.SourcesSummary]{Raw: sources, AISummary: sections.Sources},
		Weather:           Block[Weather, narration.WeatherSummary]{Raw: weatherRaw, AISummary: sections.Weather},
		Forecast:          Block[forecast.Result, narration.ForecastSummary]{Raw: outlook, AISummary: sections.Forecast},
		Historical:        Block[historical.Result, narration.HistoricalSummary]{Raw: series, AISummary: sections.Historical},
		HealthAlerts:      Block[alerts.Result, narration.AlertsSummary]{Raw: health, AISummary: sections.Alerts},
		Wildfires:         snap.wildfire,
		Insights:          buildInsights(sc.result.Index, series, outlook, now),
		PersonaInsights:   insights,
		LiveWeatherReport: report,
		Metadata: Metadata{
			APIVersion:       APIVersion,
			GeneratedAt:      now,
			CacheStatus:      "fresh",
			DataCompleteness: float64(len(used)) / SourceCount,
			NextUpdate:       now.Add(NextUpdateIn),
			DataSourcesUsed:  used,
			DeviceID:         req.DeviceID,
			Narration: NarrationMeta{
				Generated: nonNil(sections.Generated),
				Fallback:  nonNil(sections.Fallback),
				Persona:   persona,
			},
		},
	}
	payload.Metadata.ProcessingTimeMs = time.Since(started).Milliseconds()

	span.SetAttributes(
		attribute.Int("aqi.index", sc.result.Index),
		attribute.Int("sources.available", len(used)),
	)
	a.logger.Debug().
		Float64("lat", req.Lat).
		Float64("lon", req.Lon).
		Int("aqi", sc.result.Index).
		Str("dominant", string(sc.result.DominantParameter)).
		Strs("sources", used).
		Strs("narration_fallback", sections.Fallback).
		Int64("processing_ms", payload.Metadata.ProcessingTimeMs).
		Msg("dashboard assembled")

	return payload, nil
}

// narrate honours the narration flags. With narration off every block uses
// its deterministic text; with persona narration off only the persona blocks do.
func (a *Aggregator) narrate(ctx context.Context, persona narration.PersonaType, in narration.Input) (narration.Sections, *narration.PersonaInsights, *narration.LiveReport) {
	if a.narrator == nil || !a.enabled(ctx, featureflags.FlagNarration) {
		sections := narration.FallbackSections(in)
		if persona.Default() {
			return sections, nil, nil
		}
		insights := narration.FallbackPersonaInsights(persona, in)
		report := narration.FallbackLiveReport(persona, in)
		return sections, &insights, &report
	}

	if persona.Default() || a.enabled(ctx, featureflags.FlagPersonaNarration) {
		return a.narrator.Narrate(ctx, persona, in)
	}

	sections, _, _ := a.narrator.Narrate(ctx, narration.PersonaGeneral, in)
	insights := narration.FallbackPersonaInsights(persona, in)
	report := narration.FallbackLiveReport(persona, in)
	return sections, &insights, &report
}

// record upserts today's reading. The default index is never stored, so
// the history tier only ever serves measured data. Failures are logged and
// otherwise ignored.
func (a *Aggregator) record(ctx context.Context, lat, lon float64, sc scored) {
	if a.history == nil || !a.enabled(ctx, featureflags.FlagHistoryWrites) {
		return
	}
	if !sc.measured() {
		a.logger.Debug().
			Float64("lat", lat).
			Float64("lon", lon).
			Msg("no measured reading; history write skipped")
		return
	}
	if err := a.history.Record(ctx, lat, lon, sc.result, sc.pollutants(), HistorySource); err != nil {
		a.logger.Warn().
			Err(err).
			Float64("lat", lat).
			Float64("lon", lon).
			Msg("history write failed")
	}
}

func (a *Aggregator) enabled(ctx context.Context, key string) bool {
	if a.flags == nil {
		return true
	}
	return a.flags.IsEnabled(ctx, key)
}

func parsePersona(s string) narration.PersonaType {
	t := narration.PersonaType(s)
	if !narration.KnownPersona(t) {
		return narration.PersonaGeneral
	}
	return t
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
