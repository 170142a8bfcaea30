// Package history persists computed solar events to PostgreSQL for
// after-the-fact queries. The recorder is optional: without a connection
// string the service runs with history disabled.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/sun/sunwatch/internal/ephemeris"
	"github.com/sun/sunwatch/internal/metrics"
)

const schema = `
CREATE TABLE IF NOT EXISTS solar_events (
	site_slug    TEXT        NOT NULL,
	query_time   TIMESTAMPTZ NOT NULL,
	rise_time    TIMESTAMPTZ,
	set_time     TIMESTAMPTZ,
	rise_azimuth DOUBLE PRECISION,
	set_azimuth  DOUBLE PRECISION,
	visible      BOOLEAN     NOT NULL,
	recorded_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (site_slug, query_time)
)`

// Record is one persisted event computation.
type Record struct {
	SiteSlug    string     `json:"site_slug"`
	QueryTime   time.Time  `json:"query_time"`
	RiseTime    *time.Time `json:"rise_time,omitempty"`
	SetTime     *time.Time `json:"set_time,omitempty"`
	RiseAzimuth float64    `json:"rise_azimuth"`
	SetAzimuth  float64    `json:"set_azimuth"`
	Visible     bool       `json:"visible"`
	RecordedAt  time.Time  `json:"recorded_at"`
}

// Recorder writes and reads solar event history.
type Recorder struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open connects to PostgreSQL, verifies the connection and ensures the
// schema exists.
func Open(ctx context.Context, connString string, logger *slog.Logger) (*Recorder, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("history recorder connected")
	return &Recorder{db: db, logger: logger}, nil
}

// Save upserts one computed result for a site. Recomputing the same site and
// query time overwrites the previous row.
func (r *Recorder) Save(ctx context.Context, slug string, result ephemeris.Result) error {
	var rise, set *time.Time
	if result.HasRise {
		rise = &result.RiseTime
	}
	if result.HasSet {
		set = &result.SetTime
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO solar_events (site_slug, query_time, rise_time, set_time, rise_azimuth, set_azimuth, visible, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (site_slug, query_time) DO UPDATE SET
			rise_time = EXCLUDED.rise_time,
			set_time = EXCLUDED.set_time,
			rise_azimuth = EXCLUDED.rise_azimuth,
			set_azimuth = EXCLUDED.set_azimuth,
			visible = EXCLUDED.visible,
			recorded_at = now()`,
		slug, result.QueryTime, rise, set, result.RiseAzimuth, result.SetAzimuth, result.Visible,
	)
	if err != nil {
		metrics.IncHistoryErrors()
		return fmt.Errorf("saving event row: %w", err)
	}

	metrics.IncHistoryInserts()
	return nil
}

// Recent returns up to limit rows for a site, newest query time first.
func (r *Recorder) Recent(ctx context.Context, slug string, limit int) ([]Record, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT site_slug, query_time, rise_time, set_time, rise_azimuth, set_azimuth, visible, recorded_at
		FROM solar_events
		WHERE site_slug = $1
		ORDER BY query_time DESC
		LIMIT $2`,
		slug, limit,
	)
	if err != nil {
		metrics.IncHistoryErrors()
		return nil, fmt.Errorf("querying event rows: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.SiteSlug, &rec.QueryTime, &rec.RiseTime, &rec.SetTime,
			&rec.RiseAzimuth, &rec.SetAzimuth, &rec.Visible, &rec.RecordedAt,
		); err != nil {
			metrics.IncHistoryErrors()
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		metrics.IncHistoryErrors()
		return nil, fmt.Errorf("iterating event rows: %w", err)
	}

	return records, nil
}

// Close closes the database connection.
func (r *Recorder) Close() error {
	return r.db.Close()
}
