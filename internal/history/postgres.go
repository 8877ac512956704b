package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clearskies/clearskies/internal/aqi"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS daily_measurements (
	id BIGSERIAL PRIMARY KEY,
	date DATE NOT NULL,
	latitude DOUBLE PRECISION NOT NULL,
	longitude DOUBLE PRECISION NOT NULL,
	aqi INTEGER NOT NULL,
	category TEXT NOT NULL,
	pollutants JSONB NOT NULL DEFAULT '{}',
	source TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (date, latitude, longitude)
);
CREATE INDEX IF NOT EXISTS idx_location_date
	ON daily_measurements (latitude, longitude, date DESC);
`

// PostgresRepository is a PostgreSQL implementation of Repository for
// deployments that share history across API instances.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL history repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Migrate creates the table and index if they do not exist.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("create daily_measurements: %w", err)
	}
	return nil
}

// Upsert inserts the row or replaces the values of an existing one.
func (r *PostgresRepository) Upsert(ctx context.Context, rec Record) error {
	pollutants, err := encodePollutants(rec.Pollutants)
	if err != nil {
		return fmt.Errorf("encode pollutants: %w", err)
	}

	query := `
		INSERT INTO daily_measurements
			(date, latitude, longitude, aqi, category, pollutants, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (date, latitude, longitude) DO UPDATE SET
			aqi = EXCLUDED.aqi,
			category = EXCLUDED.category,
			pollutants = EXCLUDED.pollutants,
			source = EXCLUDED.source,
			created_at = EXCLUDED.created_at
	`

	_, err = r.pool.Exec(ctx, query,
		rec.Date,
		rec.Lat,
		rec.Lon,
		rec.AQI,
		string(rec.Category),
		pollutants,
		rec.Source,
		rec.CreatedAt,
	)
	return err
}

// Range returns rows for the location between from and to inclusive.
func (r *PostgresRepository) Range(ctx context.Context, lat, lon float64, from, to time.Time) ([]Record, error) {
	query := `
		SELECT date, aqi, category, pollutants, source, created_at
		FROM daily_measurements
		WHERE latitude = $1 AND longitude = $2
			AND date >= $3 AND date <= $4
		ORDER BY date ASC
	`

	rows, err := r.pool.Query(ctx, query, lat, lon, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec            = Record{Lat: lat, Lon: lon}
			category       string
			pollutantsJSON []byte
		)
		if err := rows.Scan(&rec.Date, &rec.AQI, &category, &pollutantsJSON, &rec.Source, &rec.CreatedAt); err != nil {
			return nil, err
		}

		rec.Date = Day(rec.Date)
		rec.Category = aqi.Category(category)
		pollutants, err := decodePollutants(pollutantsJSON)
		if err != nil {
			return nil, fmt.Errorf("decode pollutants: %w", err)
		}
		rec.Pollutants = pollutants

		out = append(out, rec)
	}
	return out, rows.Err()
}
