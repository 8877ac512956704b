// Package wildfire reports active fires near a location from satellite
// thermal anomaly detections. Fires only add context: they lower the breath
// score and feed the narration, but never change the AQI.
package wildfire

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/clearskies/clearskies/internal/source"
)

// ErrNotConfigured is returned by providers without credentials.
var ErrNotConfigured = errors.New("wildfire provider not configured")

// Defaults.
const (
	DefaultRadiusKm = 100
	DefaultCacheTTL = 30 * time.Minute

	// Confidence attached to a successful lookup.
	Confidence = 0.85
)

// Severity classifies a detection.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityModerate Severity = "moderate"
	SeverityHigh     Severity = "high"
	SeverityExtreme  Severity = "extreme"
)

// ClassifySeverity grades a detection by brightness temperature (K) and
// detection confidence (0-100).
func ClassifySeverity(brightness, confidence float64) Severity {
	switch {
	case brightness >= 380 && confidence >= 80:
		return SeverityExtreme
	case brightness >= 360 || confidence >= 70:
		return SeverityHigh
	case brightness >= 340 || confidence >= 50:
		return SeverityModerate
	default:
		return SeverityLow
	}
}

// Fire is one active fire detection.
type Fire struct {
	Lat        float64   `json:"latitude"`
	Lon        float64   `json:"longitude"`
	Brightness float64   `json:"brightness"`
	Confidence float64   `json:"confidence"`
	AcquiredAt time.Time `json:"acquiredAt"`
	Satellite  string    `json:"satellite,omitempty"`
	DistanceKm float64   `json:"distanceKm"`
	Severity   Severity  `json:"severity"`
}

// Provider lists fires within radiusKm of a point, nearest first.
type Provider interface {
	ActiveFires(ctx context.Context, lat, lon, radiusKm float64) ([]Fire, error)
}

// Result is the wildfire context of one location.
type Result struct {
	Availability source.Availability `json:"availability"`
	RadiusKm     float64             `json:"searchRadiusKm"`
	Fires        []Fire              `json:"fires"`
}

// Closest returns the nearest fire, or nil when none was detected.
func (r Result) Closest() *Fire {
	if len(r.Fires) == 0 {
		return nil
	}
	return &r.Fires[0]
}

// ClosestKm returns the distance to the nearest fire, or nil.
func (r Result) ClosestKm() *float64 {
	if f := r.Closest(); f != nil {
		d := f.DistanceKm
		return &d
	}
	return nil
}

// ServiceConfig configures a Service.
type ServiceConfig struct {
	Provider Provider
	Observer *source.Observer
	Logger   zerolog.Logger

	// RadiusKm is the search radius. Default: DefaultRadiusKm.
	RadiusKm float64

	// CacheTTL is how long a lookup is reused for nearby points. Default: DefaultCacheTTL.
	CacheTTL time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

type cacheEntry struct {
	fires   []Fire
	expires time.Time
}

// Service caches provider lookups on a 0.1 degree grid.
type Service struct {
	provider Provider
	observer *source.Observer
	logger   zerolog.Logger
	radius   float64
	ttl      time.Duration
	now      func() time.Time

	mu    sync.Mutex
	cache map[[2]float64]cacheEntry
}

// NewService creates a Service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.RadiusKm <= 0 {
		cfg.RadiusKm = DefaultRadiusKm
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		provider: cfg.Provider,
		observer: cfg.Observer,
		logger:   cfg.Logger,
		radius:   cfg.RadiusKm,
		ttl:      cfg.CacheTTL,
		now:      cfg.Now,
		cache:    make(map[[2]float64]cacheEntry),
	}
}

// Fetch returns the fires near (lat, lon). It never fails: problems are
// reported through the result's availability.
func (s *Service) Fetch(ctx context.Context, lat, lon float64) Result {
	now := s.now()
	result := Result{RadiusKm: s.radius, Fires: []Fire{}}

	if s.provider == nil {
		result.Availability = source.Unavailable(source.Wildfire, source.ReasonNotConfigured, now)
		return result
	}

	key := [2]float64{math.Round(lat*10) / 10, math.Round(lon*10) / 10}
	s.mu.Lock()
	entry, ok := s.cache[key]
	s.mu.Unlock()
	if ok && now.Before(entry.expires) {
		result.Availability = source.Available(source.Wildfire, Confidence, now)
		result.Fires = entry.fires
		return result
	}

	fires, err := s.provider.ActiveFires(ctx, lat, lon, s.radius)
	s.observer.Observe(source.Wildfire, "active_fires", now, err)
	if err != nil {
		reason := source.Reason(err)
		if errors.Is(err, ErrNotConfigured) {
			reason = source.ReasonNotConfigured
		}
		result.Availability = source.Unavailable(source.Wildfire, reason, now)
		return result
	}

	fires = append([]Fire{}, fires...)
	sort.SliceStable(fires, func(i, j int) bool { return fires[i].DistanceKm < fires[j].DistanceKm })

	s.mu.Lock()
	s.cache[key] = cacheEntry{fires: fires, expires: now.Add(s.ttl)}
	s.mu.Unlock()

	if len(fires) > 0 {
		s.logger.Info().
			Float64("lat", lat).
			Float64("lon", lon).
			Int("fires", len(fires)).
			Float64("closest_km", fires[0].DistanceKm).
			Msg("active fires near location")
	}

	result.Availability = source.Available(source.Wildfire, Confidence, now)
	result.Fires = fires
	return result
}
