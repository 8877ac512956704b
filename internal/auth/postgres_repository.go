package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const devicesSchema = `
CREATE TABLE IF NOT EXISTS devices (
	id             TEXT PRIMARY KEY,
	first_seen_at  TIMESTAMPTZ NOT NULL,
	last_issued_at TIMESTAMPTZ NOT NULL,
	issue_count    INTEGER NOT NULL DEFAULT 0,
	revoked_at     TIMESTAMPTZ
)`

// PostgresDeviceRepository is a PostgreSQL implementation of DeviceRepository.
type PostgresDeviceRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresDeviceRepository creates a new PostgreSQL device repository.
func NewPostgresDeviceRepository(pool *pgxpool.Pool) *PostgresDeviceRepository {
	return &PostgresDeviceRepository{pool: pool}
}

// Migrate creates the devices table if it does not exist.
func (r *PostgresDeviceRepository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, devicesSchema); err != nil {
		return fmt.Errorf("creating devices table: %w", err)
	}
	return nil
}

// RecordIssue registers a token issue for the device, creating it if needed.
func (r *PostgresDeviceRepository) RecordIssue(ctx context.Context, deviceID string, at time.Time) (*Device, error) {
	query := `
		INSERT INTO devices (id, first_seen_at, last_issued_at, issue_count)
		VALUES ($1, $2, $2, 1)
		ON CONFLICT (id) DO UPDATE
		SET last_issued_at = EXCLUDED.last_issued_at,
		    issue_count = devices.issue_count + 1
		RETURNING id, first_seen_at, last_issued_at, issue_count, revoked_at
	`

	var d Device
	err := r.pool.QueryRow(ctx, query, deviceID, at).Scan(
		&d.ID,
		&d.FirstSeenAt,
		&d.LastIssuedAt,
		&d.IssueCount,
		&d.RevokedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("recording device token issue: %w", err)
	}
	return &d, nil
}

// FindByID finds a device by its identifier.
func (r *PostgresDeviceRepository) FindByID(ctx context.Context, deviceID string) (*Device, error) {
	query := `
		SELECT id, first_seen_at, last_issued_at, issue_count, revoked_at
		FROM devices
		WHERE id = $1
	`

	var d Device
	err := r.pool.QueryRow(ctx, query, deviceID).Scan(
		&d.ID,
		&d.FirstSeenAt,
		&d.LastIssuedAt,
		&d.IssueCount,
		&d.RevokedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, err
	}

	return &d, nil
}

// Revoke marks a device as revoked.
func (r *PostgresDeviceRepository) Revoke(ctx context.Context, deviceID string, at time.Time) error {
	query := `
		UPDATE devices
		SET revoked_at = COALESCE(revoked_at, $1)
		WHERE id = $2
	`

	tag, err := r.pool.Exec(ctx, query, at, deviceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDeviceNotFound
	}
	return nil
}
