package featureflags

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository shares overrides between API replicas.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a repository on pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const flagsSchema = `
	CREATE TABLE IF NOT EXISTS feature_flag_overrides (
		key        TEXT PRIMARY KEY,
		enabled    BOOLEAN NOT NULL,
		reason     TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)
`

const upsertOverride = `
	INSERT INTO feature_flag_overrides (key, enabled, reason, updated_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (key) DO UPDATE SET
		enabled = EXCLUDED.enabled,
		reason = EXCLUDED.reason,
		updated_at = EXCLUDED.updated_at
`

// Migrate creates the overrides table.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, flagsSchema); err != nil {
		return fmt.Errorf("create feature_flag_overrides: %w", err)
	}
	return nil
}

// Overrides loads every stored override.
func (r *PostgresRepository) Overrides(ctx context.Context) (map[string]Override, error) {
	rows, err := r.pool.Query(ctx, `SELECT key, enabled, reason, updated_at FROM feature_flag_overrides`)
	if err != nil {
		return nil, fmt.Errorf("query overrides: %w", err)
	}

	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Override, error) {
		var o Override
		err := row.Scan(&o.Key, &o.Enabled, &o.Reason, &o.UpdatedAt)
		return o, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan overrides: %w", err)
	}

	out := make(map[string]Override, len(list))
	for _, o := range list {
		out[o.Key] = o
	}
	return out, nil
}

// Save upserts changes in one transaction and one round trip.
func (r *PostgresRepository) Save(ctx context.Context, changes []Override) error {
	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, c := range changes {
		if c.UpdatedAt.IsZero() {
			c.UpdatedAt = now
		}
		batch.Queue(upsertOverride, c.Key, c.Enabled, c.Reason, c.UpdatedAt)
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("save overrides: %w", err)
		}
		return nil
	})
}

var _ Repository = (*PostgresRepository)(nil)
