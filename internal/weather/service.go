package weather

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/clearskies/clearskies/internal/source"
)

// Provider defines the interface for weather data providers.
type Provider interface {
	// GetCurrentWeather fetches current conditions for a location.
	GetCurrentWeather(ctx context.Context, lat, lon float64) (*Observation, error)

	// GetForecast fetches 3-hour forecast slots for a location.
	GetForecast(ctx context.Context, lat, lon float64) (*Forecast, error)

	// Name returns the provider name for logging.
	Name() string
}

// ServiceConfig holds configuration for the weather service.
type ServiceConfig struct {
	// Provider is nil when no API key is configured; the service then
	// reports every call as unavailable.
	Provider Provider

	Observer *source.Observer
	Logger   zerolog.Logger

	// CacheTTL is how long to cache weather data (default: 10 minutes).
	CacheTTL time.Duration

	// CacheGridSize is the size of cache grid cells in degrees (default: 0.1).
	CacheGridSize float64

	// StaleIfErrorTTL allows serving stale data on provider errors (default: 1 hour).
	StaleIfErrorTTL time.Duration
}

// Service provides weather data with caching.
type Service struct {
	provider        Provider
	observer        *source.Observer
	logger          zerolog.Logger
	cacheTTL        time.Duration
	cacheGridSize   float64
	staleIfErrorTTL time.Duration

	mu              sync.RWMutex
	weatherCache    map[string]*cached[*Observation]
	forecastCache   map[string]*cached[*Forecast]
	lastCleanup     time.Time
	cleanupInterval time.Duration
}

type cached[T any] struct {
	value     T
	fetchedAt time.Time
	expiresAt time.Time
}

// NewService creates a new weather service.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 10 * time.Minute
	}

	cacheGridSize := cfg.CacheGridSize
	if cacheGridSize == 0 {
		cacheGridSize = 0.1 // ~11km at equator
	}

	staleIfErrorTTL := cfg.StaleIfErrorTTL
	if staleIfErrorTTL == 0 {
		staleIfErrorTTL = time.Hour
	}

	return &Service{
		provider:        cfg.Provider,
		observer:        cfg.Observer,
		logger:          cfg.Logger,
		cacheTTL:        cacheTTL,
		cacheGridSize:   cacheGridSize,
		staleIfErrorTTL: staleIfErrorTTL,
		weatherCache:    make(map[string]*cached[*Observation]),
		forecastCache:   make(map[string]*cached[*Forecast]),
		cleanupInterval: 5 * time.Minute,
	}
}

// Configured reports whether a provider is available at all.
func (s *Service) Configured() bool {
	return s.provider != nil
}

// Current returns current conditions and their availability. It never fails.
func (s *Service) Current(ctx context.Context, lat, lon float64) CurrentResult {
	now := time.Now()
	obs, err := s.GetCurrentWeather(ctx, lat, lon)
	if err != nil {
		return CurrentResult{Availability: source.Unavailable(source.Weather, reasonFor(err), now)}
	}
	return CurrentResult{
		Availability: source.Available(source.Weather, 1.0, now),
		Observation:  obs,
	}
}

// Outlook returns the forecast and its availability. It never fails.
func (s *Service) Outlook(ctx context.Context, lat, lon float64) ForecastResult {
	now := time.Now()
	fc, err := s.GetForecast(ctx, lat, lon)
	if err != nil {
		return ForecastResult{Availability: source.Unavailable(source.Weather, reasonFor(err), now)}
	}
	return ForecastResult{
		Availability: source.Available(source.Weather, 1.0, now),
		Forecast:     fc,
	}
}

func reasonFor(err error) string {
	if errors.Is(err, ErrNotConfigured) {
		return source.ReasonNotConfigured
	}
	return source.Reason(err)
}

// GetCurrentWeather returns current weather for a location.
// Uses cached data if available and not expired.
func (s *Service) GetCurrentWeather(ctx context.Context, lat, lon float64) (*Observation, error) {
	if s.provider == nil {
		return nil, ErrNotConfigured
	}
	if err := validateCoordinates(lat, lon); err != nil {
		return nil, err
	}

	key := s.cacheKey(lat, lon)

	s.mu.RLock()
	if c, ok := s.weatherCache[key]; ok && time.Now().Before(c.expiresAt) {
		s.mu.RUnlock()
		return c.value, nil
	}
	s.mu.RUnlock()

	return fetchCached(ctx, s, s.weatherCache, key, "current", func(ctx context.Context) (*Observation, error) {
		return s.provider.GetCurrentWeather(ctx, lat, lon)
	})
}

// GetForecast returns 3-hour forecast slots for a location.
func (s *Service) GetForecast(ctx context.Context, lat, lon float64) (*Forecast, error) {
	if s.provider == nil {
		return nil, ErrNotConfigured
	}
	if err := validateCoordinates(lat, lon); err != nil {
		return nil, err
	}

	key := s.cacheKey(lat, lon)

	s.mu.RLock()
	if c, ok := s.forecastCache[key]; ok && time.Now().Before(c.expiresAt) {
		s.mu.RUnlock()
		return c.value, nil
	}
	s.mu.RUnlock()

	return fetchCached(ctx, s, s.forecastCache, key, "forecast", func(ctx context.Context) (*Forecast, error) {
		return s.provider.GetForecast(ctx, lat, lon)
	})
}

// fetchCached refreshes one cache entry under the write lock, serving stale
// data when the provider fails.
func fetchCached[T any](
	ctx context.Context,
	s *Service,
	cache map[string]*cached[T],
	key, operation string,
	fetch func(context.Context) (T, error),
) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := cache[key]; ok && time.Now().Before(c.expiresAt) {
		return c.value, nil
	}

	start := time.Now()
	value, err := fetch(ctx)
	s.observer.Observe(source.Weather, operation, start, err)

	if err != nil {
		if c, ok := cache[key]; ok && time.Now().Before(c.fetchedAt.Add(s.staleIfErrorTTL)) {
			s.logger.Warn().
				Str("operation", operation).
				Time("fetched_at", c.fetchedAt).
				Msg("serving stale weather data due to provider error")
			return c.value, nil
		}

		var zero T
		if errors.Is(err, ErrNotConfigured) {
			return zero, err
		}
		return zero, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}

	now := time.Now()
	cache[key] = &cached[T]{value: value, fetchedAt: now, expiresAt: now.Add(s.cacheTTL)}
	s.cleanupIfNeeded()

	return value, nil
}

// cacheKey groups nearby points into grid cells to reduce API calls.
func (s *Service) cacheKey(lat, lon float64) string {
	gridLat := math.Floor(lat/s.cacheGridSize) * s.cacheGridSize
	gridLon := math.Floor(lon/s.cacheGridSize) * s.cacheGridSize
	return fmt.Sprintf("%.2f:%.2f", gridLat, gridLon)
}

// cleanupIfNeeded must be called with mu held.
func (s *Service) cleanupIfNeeded() {
	now := time.Now()
	if now.Sub(s.lastCleanup) < s.cleanupInterval {
		return
	}
	s.lastCleanup = now

	expired := evictStale(s.weatherCache, now, s.staleIfErrorTTL) +
		evictStale(s.forecastCache, now, s.staleIfErrorTTL)

	if expired > 0 {
		s.logger.Debug().
			Int("expired_entries", expired).
			Msg("cleaned up expired weather cache entries")
	}
}

func evictStale[T any](cache map[string]*cached[T], now time.Time, ttl time.Duration) int {
	n := 0
	for key, c := range cache {
		if now.After(c.fetchedAt.Add(ttl)) {
			delete(cache, key)
			n++
		}
	}
	return n
}

// InvalidateCache clears all cached data.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.weatherCache = make(map[string]*cached[*Observation])
	s.forecastCache = make(map[string]*cached[*Forecast])
}

// CacheStats returns cache statistics.
func (s *Service) CacheStats() CacheStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	stats := CacheStats{
		WeatherEntries:  len(s.weatherCache),
		ForecastEntries: len(s.forecastCache),
	}
	for _, c := range s.weatherCache {
		if now.Before(c.expiresAt) {
			stats.WeatherFreshEntries++
		}
	}
	for _, c := range s.forecastCache {
		if now.Before(c.expiresAt) {
			stats.ForecastFreshEntries++
		}
	}
	if s.provider != nil {
		stats.Provider = s.provider.Name()
	}
	return stats
}

// CacheStats contains cache statistics.
type CacheStats struct {
	WeatherEntries       int
	WeatherFreshEntries  int
	ForecastEntries      int
	ForecastFreshEntries int
	Provider             string
}

// validateCoordinates checks if coordinates are valid.
func validateCoordinates(lat, lon float64) error {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return ErrInvalidCoordinates
	}
	return nil
}
