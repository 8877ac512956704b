// Package main provides the entrypoint for the ClearSkies API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/clearskies/clearskies/internal/api"
	"github.com/clearskies/clearskies/internal/api/middleware"
	"github.com/clearskies/clearskies/internal/auth"
	"github.com/clearskies/clearskies/internal/bootstrap"
	"github.com/clearskies/clearskies/internal/config"
	"github.com/clearskies/clearskies/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "clearskies-api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
		boot.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := bootstrap.NewLogger(os.Stdout, serviceName, Version, cfg.LogLevel)
	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.Env).
		Msg("starting ClearSkies API")

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("api stopped with error")
	}
	log.Info().Msg("server stopped")
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetryCfg := cfg.Telemetry
	telemetryCfg.ServiceName = serviceName
	telemetryCfg.ServiceVersion = Version
	telemetryCfg.Environment = cfg.Env

	tp, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()
	if telemetryCfg.Enabled {
		log.Info().
			Str("otlp_endpoint", telemetryCfg.OTLPEndpoint).
			Float64("sample_ratio", telemetryCfg.SampleRatio).
			Msg("OpenTelemetry initialized")
	}

	metrics, err := middleware.NewMetrics()
	if err != nil {
		return err
	}

	stores, err := bootstrap.OpenStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer stores.Close()

	services, err := bootstrap.BuildServices(ctx, cfg, stores, log)
	if err != nil {
		return err
	}
	defer services.Close()

	if cfg.Auth.APIKey == "" {
		log.Warn().Msg("API_KEY not set; authentication is disabled")
	}
	authService := auth.NewService(auth.ServiceConfig{
		APIKey:  cfg.Auth.APIKey,
		Devices: stores.Devices,
		Logger:  log,
	})

	router := api.NewRouter(api.RouterConfig{
		Version:            Version,
		BuildTime:          BuildTime,
		Logger:             log,
		RequireTLS:         cfg.Server.RequireTLS,
		CORSOrigins:        cfg.Server.CORSOrigins,
		RateLimits: middleware.RateLimits{
			Token:     middleware.PerMinute(cfg.Server.RateLimits.Token),
			Dashboard: middleware.PerMinute(cfg.Server.RateLimits.Dashboard),
			Sections:  middleware.PerMinute(cfg.Server.RateLimits.Sections),
			Admin:     middleware.PerMinute(cfg.Server.RateLimits.Admin),
		},
		Metrics:            metrics,
		AuthService:        authService,
		Dashboard:          services.Aggregator,
		FeatureFlagService: services.Flags,
		Registry:           services.Registry,
		Subsystems:         stores.Subsystems(),
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return bootstrap.Serve(ctx, server, cfg.Server.ShutdownTimeout, log)
}
