package airquality

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/clearskies/clearskies/internal/aqi"
	"github.com/clearskies/clearskies/internal/source"
)

// Provider is a ground-sensor network queried in two steps: nearby stations,
// then the latest values of each station.
type Provider interface {
	NearbyStations(ctx context.Context, lat, lon float64, radiusMeters int) ([]Station, error)
	LatestMeasurements(ctx context.Context, station Station) ([]Measurement, error)
	DailyMeans(ctx context.Context, sensorID int, from, to time.Time) ([]DailyMean, error)
}

// MaxRadiusMeters is the widest station search allowed.
const MaxRadiusMeters = 25000

// ServiceConfig holds configuration for the ground-sensor service.
type ServiceConfig struct {
	Provider Provider
	Observer *source.Observer
	Logger   zerolog.Logger

	// RadiusMeters bounds the station search. Default and maximum: 25000.
	RadiusMeters int

	// MaxStations limits how many of the nearest stations are queried. Default: 10.
	MaxStations int

	// Concurrency limits parallel per-station requests. Default: 4.
	Concurrency int

	// CacheTTL is how long a result is reused for the same rounded location (default: 15 minutes).
	CacheTTL time.Duration

	// StaleIfErrorTTL allows serving an expired result on provider errors (default: 1 hour).
	StaleIfErrorTTL time.Duration
}

// Service provides ground-sensor readings with caching.
type Service struct {
	provider        Provider
	observer        *source.Observer
	logger          zerolog.Logger
	radius          int
	maxStations     int
	concurrency     int
	cacheTTL        time.Duration
	staleIfErrorTTL time.Duration

	mu              sync.RWMutex
	cache           map[string]*cachedResult
	lastCleanup     time.Time
	cleanupInterval time.Duration
}

type cachedResult struct {
	result    GroundResult
	fetchedAt time.Time
	expiresAt time.Time
}

// NewService creates a ground-sensor service.
func NewService(cfg ServiceConfig) *Service {
	radius := cfg.RadiusMeters
	if radius <= 0 || radius > MaxRadiusMeters {
		radius = MaxRadiusMeters
	}
	maxStations := cfg.MaxStations
	if maxStations == 0 {
		maxStations = 10
	}
	concurrency := cfg.Concurrency
	if concurrency == 0 {
		concurrency = 4
	}
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 15 * time.Minute
	}
	staleIfErrorTTL := cfg.StaleIfErrorTTL
	if staleIfErrorTTL == 0 {
		staleIfErrorTTL = time.Hour
	}

	return &Service{
		provider:        cfg.Provider,
		observer:        cfg.Observer,
		logger:          cfg.Logger,
		radius:          radius,
		maxStations:     maxStations,
		concurrency:     concurrency,
		cacheTTL:        cacheTTL,
		staleIfErrorTTL: staleIfErrorTTL,
		cache:           make(map[string]*cachedResult),
		cleanupInterval: 5 * time.Minute,
	}
}

// Fetch returns averaged readings near (lat, lon). It never fails: errors are
// reported through the result's availability.
func (s *Service) Fetch(ctx context.Context, lat, lon float64) GroundResult {
	if s.provider == nil {
		return GroundResult{Availability: source.Unavailable(source.GroundSensor, source.ReasonNotConfigured, time.Now())}
	}

	key := cacheKey(lat, lon)

	s.mu.RLock()
	if cached, ok := s.cache[key]; ok && time.Now().Before(cached.expiresAt) {
		s.mu.RUnlock()
		return cached.result
	}
	s.mu.RUnlock()

	start := time.Now()
	result, err := s.fetch(ctx, lat, lon)
	s.observer.Observe(source.GroundSensor, "latest", start, err)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		if cached, ok := s.cache[key]; ok && time.Now().Before(cached.fetchedAt.Add(s.staleIfErrorTTL)) {
			s.logger.Warn().
				Time("fetched_at", cached.fetchedAt).
				Msg("serving stale ground-sensor data due to provider error")
			return cached.result
		}

		reason := source.Reason(err)
		if errors.Is(err, ErrNoStations) || errors.Is(err, ErrNoMeasurements) {
			reason = source.ReasonNoData
		}
		return GroundResult{Availability: source.Unavailable(source.GroundSensor, reason, start)}
	}

	now := time.Now()
	s.cache[key] = &cachedResult{result: result, fetchedAt: now, expiresAt: now.Add(s.cacheTTL)}
	s.cleanupIfNeeded()

	return result
}

func (s *Service) fetch(ctx context.Context, lat, lon float64) (GroundResult, error) {
	stations, err := s.provider.NearbyStations(ctx, lat, lon, s.radius)
	if err != nil {
		return GroundResult{}, fmt.Errorf("listing stations: %w", err)
	}
	if len(stations) == 0 {
		return GroundResult{}, ErrNoStations
	}

	sort.SliceStable(stations, func(i, j int) bool { return stations[i].DistanceKm < stations[j].DistanceKm })
	if len(stations) > s.maxStations {
		stations = stations[:s.maxStations]
	}

	perStation := make([][]Measurement, len(stations))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, st := range stations {
		g.Go(func() error {
			ms, err := s.provider.LatestMeasurements(gctx, st)
			if err != nil {
				s.logger.Debug().Err(err).Int("station_id", st.ID).Msg("skipping station")
				return nil
			}
			perStation[i] = ms
			return nil
		})
	}
	_ = g.Wait()

	var all []Measurement
	var latest time.Time
	for _, ms := range perStation {
		all = append(all, ms...)
		for _, m := range ms {
			if m.MeasuredAt.After(latest) {
				latest = m.MeasuredAt
			}
		}
	}

	readings := Aggregate(all)
	if len(readings) == 0 {
		if ctx.Err() != nil {
			return GroundResult{}, ctx.Err()
		}
		return GroundResult{}, ErrNoMeasurements
	}

	s.logger.Debug().
		Float64("lat", lat).
		Float64("lon", lon).
		Int("stations", len(stations)).
		Int("parameters", len(readings)).
		Msg("ground-sensor readings aggregated")

	return GroundResult{
		Availability: source.Available(source.GroundSensor, source.GroundConfidence, time.Now()),
		Readings:     readings,
		StationCount: len(stations),
		Nearest:      NearestStation(stations),
		LatestAt:     latest,
	}, nil
}

// DailyHistory returns daily PM2.5 means from the nearest station that measures it.
func (s *Service) DailyHistory(ctx context.Context, lat, lon float64, days int) ([]DailyMean, error) {
	if s.provider == nil {
		return nil, ErrProviderUnavailable
	}

	start := time.Now()
	stations, err := s.provider.NearbyStations(ctx, lat, lon, s.radius)
	if err != nil {
		s.observer.Observe(source.GroundSensor, "daily_history", start, err)
		return nil, fmt.Errorf("listing stations: %w", err)
	}

	sort.SliceStable(stations, func(i, j int) bool { return stations[i].DistanceKm < stations[j].DistanceKm })

	for _, st := range stations {
		for sensorID, sensor := range st.Sensors {
			if sensor.Parameter != aqi.PM25 {
				continue
			}
			to := time.Now().UTC()
			from := to.AddDate(0, 0, -days)
			means, err := s.provider.DailyMeans(ctx, sensorID, from, to)
			s.observer.Observe(source.GroundSensor, "daily_history", start, err)
			if err != nil {
				return nil, fmt.Errorf("fetching daily means: %w", err)
			}
			return means, nil
		}
	}

	return nil, ErrNoStations
}

// InvalidateCache clears all cached results.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]*cachedResult)
}

// cacheKey rounds to three decimals (about 110 m).
func cacheKey(lat, lon float64) string {
	return fmt.Sprintf("%.3f:%.3f", math.Round(lat*1000)/1000, math.Round(lon*1000)/1000)
}

// cleanupIfNeeded must be called with mu held.
func (s *Service) cleanupIfNeeded() {
	now := time.Now()
	if now.Sub(s.lastCleanup) < s.cleanupInterval {
		return
	}
	s.lastCleanup = now

	expired := 0
	for key, cached := range s.cache {
		if now.After(cached.fetchedAt.Add(s.staleIfErrorTTL)) {
			delete(s.cache, key)
			expired++
		}
	}
	if expired > 0 {
		s.logger.Debug().Int("expired_entries", expired).Msg("cleaned up expired ground-sensor cache entries")
	}
}
