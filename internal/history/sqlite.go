package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/clearskies/clearskies/internal/aqi"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS daily_measurements (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	date TEXT NOT NULL,
	latitude REAL NOT NULL,
	longitude REAL NOT NULL,
	aqi INTEGER NOT NULL,
	category TEXT NOT NULL,
	pollutants TEXT,
	source TEXT,
	created_at TEXT NOT NULL,
	UNIQUE(date, latitude, longitude)
);
CREATE INDEX IF NOT EXISTS idx_location_date
	ON daily_measurements(latitude, longitude, date DESC);
`

// SQLiteRepository stores records in a SQLite database opened with the
// modernc.org/sqlite driver.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository wraps db. Call Migrate before first use.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Migrate creates the table and index if they do not exist.
func (r *SQLiteRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("create daily_measurements: %w", err)
	}
	return nil
}

// Upsert inserts or replaces the row for (date, latitude, longitude).
func (r *SQLiteRepository) Upsert(ctx context.Context, rec Record) error {
	pollutants, err := encodePollutants(rec.Pollutants)
	if err != nil {
		return fmt.Errorf("encode pollutants: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO daily_measurements
			(date, latitude, longitude, aqi, category, pollutants, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Date.Format(DateLayout),
		rec.Lat,
		rec.Lon,
		rec.AQI,
		string(rec.Category),
		string(pollutants),
		rec.Source,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// Range returns rows for the location between from and to inclusive.
func (r *SQLiteRepository) Range(ctx context.Context, lat, lon float64, from, to time.Time) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT date, aqi, category, pollutants, source, created_at
		FROM daily_measurements
		WHERE latitude = ? AND longitude = ?
			AND date >= ? AND date <= ?
		ORDER BY date ASC`,
		lat, lon, from.Format(DateLayout), to.Format(DateLayout),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			date, category, createdAt string
			pollutants, src           sql.NullString
			rec                       = Record{Lat: lat, Lon: lon}
		)
		if err := rows.Scan(&date, &rec.AQI, &category, &pollutants, &src, &createdAt); err != nil {
			return nil, err
		}

		if rec.Date, err = time.Parse(DateLayout, date); err != nil {
			return nil, fmt.Errorf("parse date %q: %w", date, err)
		}
		rec.Category = aqi.Category(category)
		rec.Source = src.String
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)

		if rec.Pollutants, err = decodePollutants([]byte(pollutants.String)); err != nil {
			return nil, fmt.Errorf("decode pollutants for %s: %w", date, err)
		}

		out = append(out, rec)
	}
	return out, rows.Err()
}
