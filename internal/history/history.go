// Package history persists one AQI measurement per day per rounded location
// so that trend analysis can use observed data instead of synthetic series.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/clearskies/clearskies/internal/aqi"
)

// History errors.
var (
	ErrInvalidRecord = errors.New("invalid history record")
	ErrInvalidWindow = errors.New("invalid history window")
)

// DateLayout is the storage format of a record's day.
const DateLayout = "2006-01-02"

// Record is one stored daily measurement. Lat and Lon are already rounded to
// two decimals and Date is midnight UTC of the measured day.
type Record struct {
	Date       time.Time
	Lat        float64
	Lon        float64
	AQI        int
	Category   aqi.Category
	Pollutants map[string]float64
	Source     string
	CreatedAt  time.Time
}

// Repository stores records keyed by (Date, Lat, Lon). Upsert replaces an
// existing row with the same key. Range returns rows with from <= Date <= to
// in ascending date order.
type Repository interface {
	Upsert(ctx context.Context, rec Record) error
	Range(ctx context.Context, lat, lon float64, from, to time.Time) ([]Record, error)
}

// RoundCoord rounds a coordinate to the storage grid of 0.01 degrees.
func RoundCoord(v float64) float64 {
	return math.Round(v*100) / 100
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// StoreConfig configures a Store.
type StoreConfig struct {
	Repository Repository
	Logger     zerolog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Store applies the keying rules on top of a Repository.
type Store struct {
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time
}

// NewStore creates a Store.
func NewStore(cfg StoreConfig) *Store {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		repo:   cfg.Repository,
		logger: cfg.Logger,
		now:    now,
	}
}

// Record upserts today's measurement for the location. Calling it twice on
// the same UTC day for nearby points keeps only the last value.
func (s *Store) Record(ctx context.Context, lat, lon float64, result aqi.Result, pollutants map[string]float64, src string) error {
	if result.Index < 0 || !result.Category.Valid() {
		return fmt.Errorf("%w: aqi %d category %q", ErrInvalidRecord, result.Index, result.Category)
	}

	now := s.now().UTC()
	rec := Record{
		Date:       Day(now),
		Lat:        RoundCoord(lat),
		Lon:        RoundCoord(lon),
		AQI:        result.Index,
		Category:   result.Category,
		Pollutants: pollutants,
		Source:     src,
		CreatedAt:  now,
	}
	if rec.Pollutants == nil {
		rec.Pollutants = map[string]float64{}
	}

	if err := s.repo.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("upsert history record: %w", err)
	}

	s.logger.Debug().
		Float64("lat", rec.Lat).
		Float64("lon", rec.Lon).
		Int("aqi", rec.AQI).
		Str("date", rec.Date.Format(DateLayout)).
		Msg("stored daily measurement")
	return nil
}

// Recent returns the stored rows for the location in the window
// [today-days, today], oldest first.
func (s *Store) Recent(ctx context.Context, lat, lon float64, days int) ([]Record, error) {
	if days <= 0 {
		return nil, fmt.Errorf("%w: days must be positive, got %d", ErrInvalidWindow, days)
	}

	now := s.now()
	from := Day(now.AddDate(0, 0, -days))
	to := Day(now)

	records, err := s.repo.Range(ctx, RoundCoord(lat), RoundCoord(lon), from, to)
	if err != nil {
		return nil, fmt.Errorf("query history range: %w", err)
	}
	return records, nil
}

// encodePollutants stores a missing map as an empty JSON object.
func encodePollutants(p map[string]float64) ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p)
}

// decodePollutants never returns a nil map, even for a stored JSON null.
func decodePollutants(data []byte) (map[string]float64, error) {
	var p map[string]float64
	if len(data) > 0 {
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
	}
	if p == nil {
		p = map[string]float64{}
	}
	return p, nil
}
