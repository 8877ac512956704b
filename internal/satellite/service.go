package satellite

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang/geo/s2"
	"github.com/rs/zerolog"

	"github.com/clearskies/clearskies/internal/source"
)

const earthRadiusKm = 6371.0

// Reading is the satellite value nearest to a location.
type Reading struct {
	Availability source.Availability

	// NO2 is the tropospheric column in molecules/cm². Zero when unavailable.
	NO2  float64
	Unit string

	NearestLat float64
	NearestLon float64
	DistanceKm float64

	Product    string
	ObservedAt time.Time
	File       string
}

// ServiceConfig holds configuration for the satellite service.
type ServiceConfig struct {
	Store    SnapshotStore
	Coverage Coverage
	Observer *source.Observer
	Logger   zerolog.Logger

	// MaxCellDistanceKm rejects grid cells farther than this from the query. Default: 25.
	MaxCellDistanceKm float64

	// CacheTTL is how long a decoded snapshot is reused. Default: 5 minutes.
	CacheTTL time.Duration
}

// Service resolves satellite readings from the newest snapshot in a store.
type Service struct {
	store       SnapshotStore
	coverage    Coverage
	observer    *source.Observer
	logger      zerolog.Logger
	maxDistance float64
	cacheTTL    time.Duration

	mu          sync.RWMutex
	grid        *Grid
	cacheExpiry time.Time
}

// NewService creates a satellite service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Coverage == (Coverage{}) {
		cfg.Coverage = TEMPOCoverage
	}
	if cfg.MaxCellDistanceKm == 0 {
		cfg.MaxCellDistanceKm = 25
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	return &Service{
		store:       cfg.Store,
		coverage:    cfg.Coverage,
		observer:    cfg.Observer,
		logger:      cfg.Logger,
		maxDistance: cfg.MaxCellDistanceKm,
		cacheTTL:    cfg.CacheTTL,
	}
}

// Fetch returns the reading nearest to (lat, lon). It never fails: problems are
// reported through the reading's availability.
func (s *Service) Fetch(ctx context.Context, lat, lon float64) Reading {
	now := time.Now()

	if s.store == nil {
		return Reading{Availability: source.Unavailable(source.Satellite, source.ReasonNotConfigured, now)}
	}
	if !s.coverage.Contains(lat, lon) {
		return Reading{Availability: source.Unavailable(source.Satellite, source.ReasonOutOfCoverage, now)}
	}

	grid, err := s.latest(ctx)
	s.observer.Observe(source.Satellite, "latest_snapshot", now, err)
	if err != nil {
		reason := source.Reason(err)
		if errors.Is(err, ErrNoSnapshot) {
			reason = source.ReasonNoData
		}
		return Reading{Availability: source.Unavailable(source.Satellite, reason, now)}
	}

	cell, err := grid.Nearest(lat, lon)
	if err != nil {
		return Reading{Availability: source.Unavailable(source.Satellite, source.ReasonNoData, now)}
	}

	distance := distanceKm(lat, lon, cell.Lat, cell.Lon)
	if distance > s.maxDistance {
		s.logger.Debug().
			Float64("lat", lat).
			Float64("lon", lon).
			Float64("distance_km", distance).
			Msg("nearest satellite cell too far")
		return Reading{Availability: source.Unavailable(source.Satellite, source.ReasonNoData, now)}
	}

	return Reading{
		Availability: source.Available(source.Satellite, source.SatelliteConfidence, now),
		NO2:          cell.Value,
		Unit:         grid.Unit,
		NearestLat:   cell.Lat,
		NearestLon:   cell.Lon,
		DistanceKm:   distance,
		Product:      grid.Product,
		ObservedAt:   grid.ObservedAt,
		File:         grid.Name,
	}
}

// Invalidate drops the cached snapshot so the next Fetch reads the store.
func (s *Service) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grid = nil
	s.cacheExpiry = time.Time{}
}

func (s *Service) latest(ctx context.Context) (*Grid, error) {
	s.mu.RLock()
	if s.grid != nil && time.Now().Before(s.cacheExpiry) {
		grid := s.grid
		s.mu.RUnlock()
		return grid, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.grid != nil && time.Now().Before(s.cacheExpiry) {
		return s.grid, nil
	}

	grid, err := s.store.Latest(ctx)
	if err != nil {
		return nil, err
	}
	s.grid = grid
	s.cacheExpiry = time.Now().Add(s.cacheTTL)

	s.logger.Info().
		Str("snapshot", grid.Name).
		Str("product", grid.Product).
		Time("observed_at", grid.ObservedAt).
		Msg("satellite snapshot loaded")

	return grid, nil
}

func distanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return p1.Distance(p2).Radians() * earthRadiusKm
}
