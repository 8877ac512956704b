// Package main runs the ClearSkies background worker: scheduled satellite
// snapshot refreshes and history warm-up for the configured cities.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/clearskies/clearskies/internal/bootstrap"
	"github.com/clearskies/clearskies/internal/config"
	"github.com/clearskies/clearskies/internal/telemetry"
	"github.com/clearskies/clearskies/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "clearskies-worker"

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
		Msg("starting ClearSkies worker")

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("worker stopped with error")
	}
	log.Info().Msg("worker stopped")
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

	jobCfg := worker.RefreshJobConfig{
		Config: cfg.Worker.Refresh,
		Logger: log,
		Warmer: services.Aggregator,
	}
	if services.Fetcher != nil {
		jobCfg.Snapshots = services.Fetcher
	} else {
		log.Warn().Msg("satellite snapshot URL not set; snapshots must be uploaded externally")
	}
	job := worker.NewRefreshJob(jobCfg)

	log.Info().
		Int("targets", len(cfg.Worker.Refresh.Targets)).
		Int("points", cfg.Worker.Refresh.TotalPoints()).
		Msg("refresh job configured")

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Worker.Schedule != "" {
		scheduler, err := worker.NewScheduler(ctx, cfg.Worker.Schedule, job, log)
		if err != nil {
			return err
		}
		scheduler.Start()
		log.Info().Str("schedule", cfg.Worker.Schedule).Msg("refresh scheduler started")

		g.Go(func() error {
			<-ctx.Done()
			<-scheduler.Stop().Done()
			return nil
		})
	}

	if cfg.Worker.PubSub.Enabled() {
		handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.Worker.PubSub.ProjectID,
			SubscriptionName: cfg.Worker.PubSub.Subscription,
			RefreshJob:       job,
			Logger:           log,
		})
		if err != nil {
			return err
		}
		defer handler.Close()

		g.Go(func() error {
			return handler.Start(ctx)
		})
	}

	server := &http.Server{
		Addr:         ":" + cfg.Worker.Port,
		Handler:      worker.NewHealthRouter(job, Version),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: 10 * time.Minute,
	}
	g.Go(func() error {
		return bootstrap.Serve(ctx, server, cfg.Server.ShutdownTimeout, log)
	})

	return g.Wait()
}
