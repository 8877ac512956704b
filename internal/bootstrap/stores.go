package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/clearskies/clearskies/internal/api/handler"
	"github.com/clearskies/clearskies/internal/auth"
	"github.com/clearskies/clearskies/internal/config"
	"github.com/clearskies/clearskies/internal/database"
	"github.com/clearskies/clearskies/internal/featureflags"
	"github.com/clearskies/clearskies/internal/history"
)

// Stores holds the persistent repositories selected by configuration.
type Stores struct {
	Pool   *pgxpool.Pool
	SQLite *sql.DB

	History history.Repository
	Flags   featureflags.Repository
	Devices auth.DeviceRepository
}

type migrator interface {
	Migrate(ctx context.Context) error
}

// OpenStores connects the configured databases and migrates their schemas.
func OpenStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Stores, error) {
	s := &Stores{}

	if cfg.UsesPostgres() {
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		s.Pool = pool
		logger.Info().
			Str("host", cfg.Database.Host).
			Int("port", cfg.Database.Port).
			Str("database", cfg.Database.Database).
			Msg("database connected")
	}

	switch cfg.History.Driver {
	case config.DriverPostgres:
		s.History = history.NewPostgresRepository(s.Pool)
	case config.DriverSQLite:
		db, err := database.OpenSQLite(ctx, cfg.History.SQLitePath)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open history database: %w", err)
		}
		s.SQLite = db
		s.History = history.NewSQLiteRepository(db)
	default:
		s.History = history.NewMemoryRepository()
	}

	if cfg.Flags.Driver == config.DriverPostgres {
		s.Flags = featureflags.NewPostgresRepository(s.Pool)
		s.Devices = auth.NewPostgresDeviceRepository(s.Pool)
	} else {
		s.Flags = featureflags.NewInMemoryRepository()
		s.Devices = auth.NewInMemoryDeviceRepository()
	}

	for _, repo := range []interface{}{s.History, s.Flags, s.Devices} {
		m, ok := repo.(migrator)
		if !ok {
			continue
		}
		if err := m.Migrate(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("migrate %T: %w", repo, err)
		}
	}

	logger.Info().
		Str("history_driver", cfg.History.Driver).
		Str("flags_driver", cfg.Flags.Driver).
		Msg("stores ready")

	return s, nil
}

// Subsystems returns readiness probes for the open databases.
func (s *Stores) Subsystems() map[string]handler.Pinger {
	probes := make(map[string]handler.Pinger)
	if s.Pool != nil {
		probes["postgres"] = handler.PingFunc(s.Pool.Ping)
	}
	if s.SQLite != nil {
		probes["sqlite"] = handler.PingFunc(s.SQLite.PingContext)
	}
	return probes
}

// Close releases database connections.
func (s *Stores) Close() {
	if s.SQLite != nil {
		s.SQLite.Close()
	}
	if s.Pool != nil {
		s.Pool.Close()
	}
}
