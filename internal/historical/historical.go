// Package historical builds multi-day AQI series and their statistics from
// stored measurements, an external daily-mean API, or a labelled synthetic
// series, in that order of preference.
package historical

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/clearskies/clearskies/internal/airquality"
	"github.com/clearskies/clearskies/internal/aqi"
	"github.com/clearskies/clearskies/internal/history"
	"github.com/clearskies/clearskies/internal/source"
)

// Tier identifies where a series came from.
type Tier string

const (
	TierHistoryStore Tier = "history_store"
	TierExternalAPI  Tier = "external_api"
	TierSynthetic    Tier = "synthetic"
)

const (
	// DefaultDays is the window used for unknown period selectors.
	DefaultDays = 7

	// MinStoredDays is the number of stored rows needed before the store is trusted.
	MinStoredDays = 3

	// SyntheticConfidence is reported for generated series.
	SyntheticConfidence = 0.5

	// DayLabelLayout renders a reading's day, e.g. "Jan 02".
	DayLabelLayout = "Jan 02"
)

// Fixed intraday patterns; the series is daily so they cannot be derived.
const (
	BestTimeOfDay  = "Early morning (4-6 AM)"
	WorstTimeOfDay = "Morning rush (7-9 AM)"
)

var periods = map[string]int{
	"7d":  7,
	"30d": 30,
	"90d": 90,
}

// ParsePeriod maps a period selector to a number of days.
func ParsePeriod(period string) int {
	if days, ok := periods[period]; ok {
		return days
	}
	return DefaultDays
}

// Reading is one day of the series.
type Reading struct {
	Date       string             `json:"date"`
	Timestamp  time.Time          `json:"timestamp"`
	DayLabel   string             `json:"dayLabel"`
	AQI        int                `json:"aqi"`
	Category   aqi.Category       `json:"category"`
	Pollutants map[string]float64 `json:"pollutants"`
	Provenance source.Provenance  `json:"provenance"`
}

// Trend describes the change between the first and last reading.
type Trend struct {
	Direction  string  `json:"direction"`
	Percentage float64 `json:"percentage"`
	Magnitude  float64 `json:"magnitude"`
	Confidence float64 `json:"confidence"`
}

// Statistics summarises the series.
type Statistics struct {
	Average           int     `json:"average"`
	Min               int     `json:"min"`
	Max               int     `json:"max"`
	Median            int     `json:"median"`
	StandardDeviation float64 `json:"standardDeviation"`
	Trend             Trend   `json:"trend"`
	GoodDays          int     `json:"goodDays"`
	ModerateDays      int     `json:"moderateDays"`
	UnhealthyDays     int     `json:"unhealthyDays"`
	DataPoints        int     `json:"dataPoints"`
}

// Patterns are recurring best and worst times.
type Patterns struct {
	BestDay        string `json:"bestDay"`
	WorstDay       string `json:"worstDay"`
	BestTimeOfDay  string `json:"bestTimeOfDay"`
	WorstTimeOfDay string `json:"worstTimeOfDay"`
}

// Result is a built historical series.
type Result struct {
	Period     string            `json:"period"`
	Interval   string            `json:"interval"`
	Days       int               `json:"days"`
	DataSource Tier              `json:"dataSource"`
	Provenance source.Provenance `json:"provenance"`
	Confidence float64           `json:"confidence"`
	Readings   []Reading         `json:"readings"`
	Statistics Statistics        `json:"statistics"`
	Patterns   Patterns          `json:"patterns"`
}

// HistoryReader reads stored daily measurements.
type HistoryReader interface {
	Recent(ctx context.Context, lat, lon float64, days int) ([]history.Record, error)
}

// DailySource supplies external PM2.5 daily means.
type DailySource interface {
	DailyHistory(ctx context.Context, lat, lon float64, days int) ([]airquality.DailyMean, error)
}

// Config configures a Builder. History and External are optional.
type Config struct {
	History  HistoryReader
	External DailySource
	Logger   zerolog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Builder produces historical series.
type Builder struct {
	history  HistoryReader
	external DailySource
	logger   zerolog.Logger
	now      func() time.Time
}

// NewBuilder creates a Builder.
func NewBuilder(cfg Config) *Builder {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Builder{
		history:  cfg.History,
		external: cfg.External,
		logger:   cfg.Logger,
		now:      now,
	}
}

// Build returns the series for the last days days. It never fails; when no
// real data exists the series is synthetic and labelled as such.
func (b *Builder) Build(ctx context.Context, lat, lon float64, days int) Result {
	if days <= 0 {
		days = DefaultDays
	}

	readings, tier := b.stored(ctx, lat, lon, days)
	if readings == nil {
		readings, tier = b.externalSeries(ctx, lat, lon, days)
	}
	if readings == nil {
		readings, tier = Synthetic(lat, lon, days, b.now()), TierSynthetic
	}

	confidence := SyntheticConfidence
	provenance := source.Synthetic
	if tier != TierSynthetic {
		confidence = RealConfidence(len(readings))
		provenance = source.Live
	}

	stats := Compute(readings)
	stats.Trend.Confidence = confidence
	best, worst := Weekdays(readings)

	return Result{
		Period:     fmt.Sprintf("%d days", days),
		Interval:   "1 day",
		Days:       days,
		DataSource: tier,
		Provenance: provenance,
		Confidence: confidence,
		Readings:   readings,
		Statistics: stats,
		Patterns: Patterns{
			BestDay:        best,
			WorstDay:       worst,
			BestTimeOfDay:  BestTimeOfDay,
			WorstTimeOfDay: WorstTimeOfDay,
		},
	}
}

// RealConfidence rewards longer real series, capped below certainty.
func RealConfidence(n int) float64 {
	c := 0.7 + float64(n)/30
	if c > 0.95 {
		return 0.95
	}
	return c
}

func (b *Builder) stored(ctx context.Context, lat, lon float64, days int) ([]Reading, Tier) {
	if b.history == nil {
		return nil, ""
	}

	records, err := b.history.Recent(ctx, lat, lon, days)
	if err != nil {
		b.logger.Warn().Err(err).Float64("lat", lat).Float64("lon", lon).Msg("history store query failed")
		return nil, ""
	}
	if len(records) < MinStoredDays {
		return nil, ""
	}

	readings := make([]Reading, 0, len(records))
	for _, rec := range records {
		r := newReading(rec.Date, rec.AQI, source.Live)
		if rec.Category.Valid() {
			r.Category = rec.Category
		}
		if len(rec.Pollutants) > 0 {
			r.Pollutants = rec.Pollutants
		}
		readings = append(readings, r)
	}
	return readings, TierHistoryStore
}

func (b *Builder) externalSeries(ctx context.Context, lat, lon float64, days int) ([]Reading, Tier) {
	if b.external == nil {
		return nil, ""
	}

	means, err := b.external.DailyHistory(ctx, lat, lon, days)
	if err != nil {
		b.logger.Warn().Err(err).Float64("lat", lat).Float64("lon", lon).Msg("external daily history unavailable")
		return nil, ""
	}

	var readings []Reading
	for _, m := range means {
		index, ok := aqi.Calculate(aqi.PM25, m.Value)
		if !ok {
			continue
		}
		r := newReading(history.Day(m.Date), index, source.Live)
		r.Pollutants = map[string]float64{string(aqi.PM25): m.Value}
		readings = append(readings, r)
	}
	if len(readings) == 0 {
		return nil, ""
	}
	return readings, TierExternalAPI
}

func newReading(day time.Time, index int, provenance source.Provenance) Reading {
	day = history.Day(day)
	return Reading{
		Date:       day.Format(history.DateLayout),
		Timestamp:  day.Add(12 * time.Hour),
		DayLabel:   day.Format(DayLabelLayout),
		AQI:        index,
		Category:   aqi.CategoryOf(index),
		Pollutants: map[string]float64{},
		Provenance: provenance,
	}
}
