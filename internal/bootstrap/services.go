package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/clearskies/clearskies/internal/airquality"
	"github.com/clearskies/clearskies/internal/airquality/openaq"
	"github.com/clearskies/clearskies/internal/api/middleware"
	"github.com/clearskies/clearskies/internal/config"
	"github.com/clearskies/clearskies/internal/dashboard"
	"github.com/clearskies/clearskies/internal/featureflags"
	"github.com/clearskies/clearskies/internal/forecast"
	"github.com/clearskies/clearskies/internal/geocode"
	"github.com/clearskies/clearskies/internal/historical"
	"github.com/clearskies/clearskies/internal/history"
	"github.com/clearskies/clearskies/internal/narration"
	"github.com/clearskies/clearskies/internal/narration/gemini"
	"github.com/clearskies/clearskies/internal/provider/resilience"
	"github.com/clearskies/clearskies/internal/satellite"
	"github.com/clearskies/clearskies/internal/source"
	"github.com/clearskies/clearskies/internal/weather"
	"github.com/clearskies/clearskies/internal/weather/openweathermap"
	"github.com/clearskies/clearskies/internal/wildfire"
	"github.com/clearskies/clearskies/internal/wildfire/firms"
)

// Services is the wired dashboard graph.
type Services struct {
	Registry   *resilience.Registry
	Flags      *featureflags.Service
	History    *history.Store
	Aggregator *dashboard.Aggregator

	// Fetcher is nil when no snapshot URL is configured.
	Fetcher *satellite.Fetcher

	closers []func()
}

// Close releases connections opened by BuildServices.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// BuildServices wires every upstream, the narration layer and the
// aggregator on top of stores. Upstreams without credentials are left
// unconfigured rather than failing startup.
func BuildServices(ctx context.Context, cfg *config.Config, stores *Stores, logger zerolog.Logger) (*Services, error) {
	svc := &Services{Registry: resilience.NewRegistry()}

	sourceMetrics, err := middleware.NewSourceMetrics()
	if err != nil {
		return nil, fmt.Errorf("init source metrics: %w", err)
	}

	observer := &source.Observer{
		Registry: svc.Registry,
		Metrics:  sourceMetrics,
		Logger:   logger,
	}

	svc.Flags = featureflags.NewService(featureflags.ServiceConfig{
		Repository: stores.Flags,
		Logger:     logger,
		CacheTTL:   cfg.Flags.CacheTTL,
		Defaults:   cfg.Flags.Defaults,
	})

	svc.History = history.NewStore(history.StoreConfig{
		Repository: stores.History,
		Logger:     logger,
	})

	ground := airquality.NewService(airquality.ServiceConfig{
		Provider: openaq.NewClient(openaq.ClientConfig{
			BaseURL:    cfg.Sources.OpenAQ.BaseURL,
			APIKey:     cfg.Sources.OpenAQ.APIKey,
			HTTPClient: svc.httpClient(source.GroundSensor, 0),
		}),
		Observer:     observer,
		Logger:       logger,
		RadiusMeters: cfg.Sources.OpenAQ.RadiusMeters,
		MaxStations:  cfg.Sources.OpenAQ.MaxStations,
		CacheTTL:     cfg.Sources.OpenAQ.CacheTTL,
	})

	weatherCfg := weather.ServiceConfig{
		Observer: observer,
		Logger:   logger,
		CacheTTL: cfg.Sources.OpenWeather.CacheTTL,
	}
	if cfg.Sources.OpenWeather.APIKey != "" {
		weatherCfg.Provider = openweathermap.NewClient(openweathermap.ClientConfig{
			APIKey:     cfg.Sources.OpenWeather.APIKey,
			BaseURL:    cfg.Sources.OpenWeather.BaseURL,
			HTTPClient: svc.httpClient(source.Weather, 0),
		})
	} else {
		logger.Warn().Msg("OpenWeather API key not set; weather reported as not configured")
	}
	weatherSvc := weather.NewService(weatherCfg)

	wildfireCfg := wildfire.ServiceConfig{
		Observer: observer,
		Logger:   logger,
		RadiusKm: cfg.Sources.Wildfire.RadiusKm,
		CacheTTL: cfg.Sources.Wildfire.CacheTTL,
	}
	if cfg.Sources.Wildfire.MapKey != "" {
		wildfireCfg.Provider = firms.NewClient(firms.ClientConfig{
			MapKey:     cfg.Sources.Wildfire.MapKey,
			BaseURL:    cfg.Sources.Wildfire.BaseURL,
			Source:     cfg.Sources.Wildfire.Source,
			DayRange:   cfg.Sources.Wildfire.DayRange,
			HTTPClient: svc.httpClient(source.Wildfire, 0),
		})
	}

	store, err := satelliteStore(cfg.Sources.Satellite)
	if err != nil {
		return nil, err
	}
	svc.Registry.RegisterSource(source.Satellite)
	satelliteSvc := satellite.NewService(satellite.ServiceConfig{
		Store:             store,
		Observer:          observer,
		Logger:            logger,
		MaxCellDistanceKm: cfg.Sources.Satellite.MaxCellDistanceKm,
	})
	if cfg.Sources.Satellite.SnapshotURL != "" {
		svc.Fetcher = satellite.NewFetcher(satellite.FetcherConfig{
			URL:        cfg.Sources.Satellite.SnapshotURL,
			Token:      cfg.Sources.Satellite.SnapshotToken,
			HTTPClient: snapshotClient(),
			Store:      store,
			Logger:     logger,
		})
	}

	geoCfg := geocode.ServiceConfig{Observer: observer, Logger: logger}
	if cfg.Sources.Geocoding.Enabled {
		geoCfg.Reverser = geocode.NewClient(geocode.ClientConfig{
			BaseURL:    cfg.Sources.Geocoding.BaseURL,
			HTTPClient: svc.httpClient(source.Geocoding, 0),
		})
	}

	narrator, err := svc.buildNarration(ctx, cfg.Narration, observer, sourceMetrics, logger)
	if err != nil {
		svc.Close()
		return nil, err
	}

	svc.Aggregator = dashboard.NewAggregator(dashboard.Config{
		Satellite: satelliteSvc,
		Ground:    ground,
		Weather:   weatherSvc,
		Wildfires: wildfire.NewService(wildfireCfg),
		Geocoder:  geocode.NewService(geoCfg),
		Forecaster: forecast.NewGenerator(forecast.Config{
			Weather:    weatherSvc,
			Logger:     logger,
			UseWeather: svc.Flags.LiveForecastEnabled,
		}),
		Historical: historical.NewBuilder(historical.Config{
			History:  svc.History,
			External: ground,
			Logger:   logger,
		}),
		History:     svc.History,
		Narrator:    narrator,
		Flags:       svc.Flags,
		Registry:    svc.Registry,
		Calibration: cfg.Sources.Satellite.Calibration(),
		Logger:      logger,
	})

	return svc, nil
}

func (s *Services) buildNarration(
	ctx context.Context,
	cfg config.NarrationConfig,
	observer *source.Observer,
	metrics narration.CacheRecorder,
	logger zerolog.Logger,
) (*narration.Service, error) {
	ncfg := narration.Config{
		CacheTTL: cfg.CacheTTL,
		Timeout:  cfg.Timeout,
		Observer: observer,
		Metrics:  metrics,
		Logger:   logger,
	}

	if cfg.GeminiAPIKey != "" {
		ncfg.Narrator = gemini.NewClient(gemini.ClientConfig{
			APIKey:          cfg.GeminiAPIKey,
			BaseURL:         cfg.BaseURL,
			Model:           cfg.Model,
			Temperature:     cfg.Temperature,
			MaxOutputTokens: cfg.MaxOutputTokens,
			HTTPClient:      s.httpClient(source.Narration, cfg.Timeout),
		})
	} else {
		logger.Warn().Msg("Gemini API key not set; narration uses fallback text")
	}

	if cfg.RequestsPerMinute > 0 {
		ncfg.Limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), max(cfg.Burst, 1))
	}

	if cfg.ValkeyAddr != "" {
		client, err := narration.DialValkey(ctx, cfg.ValkeyAddr)
		if err != nil {
			return nil, fmt.Errorf("connect valkey: %w", err)
		}
		s.closers = append(s.closers, client.Close)
		ncfg.Cache = narration.NewValkeyCache(client, "clearskies:narration")
	} else {
		ncfg.Cache = narration.NewMemoryCache()
	}

	return narration.NewService(ncfg), nil
}

// httpClient returns a breaker-guarded client registered under name.
func (s *Services) httpClient(name string, timeout time.Duration) *resilience.Client {
	cfg := resilience.DefaultClientConfig(name)
	if timeout > 0 {
		cfg.Timeout = timeout
	}
	cfg.Registry = s.Registry
	return resilience.NewClient(cfg)
}

// snapshotClient downloads whole grids, so it gets a longer timeout and
// stays out of the dashboard health registry.
func snapshotClient() *resilience.Client {
	cfg := resilience.DefaultClientConfig("tempo-snapshots")
	cfg.Timeout = time.Minute
	cfg.MaxRetries = 2
	return resilience.NewClient(cfg)
}

func satelliteStore(cfg config.SatelliteConfig) (satellite.SnapshotStore, error) {
	if cfg.Bucket.Bucket == "" {
		return satellite.NewDirStore(cfg.Dir), nil
	}
	store, err := satellite.NewObjectStore(satellite.ObjectStoreConfig{
		Endpoint:  cfg.Bucket.Endpoint,
		AccessKey: cfg.Bucket.AccessKey,
		SecretKey: cfg.Bucket.SecretKey,
		Bucket:    cfg.Bucket.Bucket,
		Region:    cfg.Bucket.Region,
		Prefix:    cfg.Bucket.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("open satellite bucket: %w", err)
	}
	return store, nil
}
