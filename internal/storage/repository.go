package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"weather-monitor/internal/weather"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	schemaSQL = `CREATE TABLE IF NOT EXISTS daily_summaries (
        summary_date       DATE PRIMARY KEY,
        avg_temp_c         NUMERIC NOT NULL,
        max_temp_c         NUMERIC NOT NULL,
        min_temp_c         NUMERIC NOT NULL,
        dominant_condition TEXT NOT NULL,
        updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
    );
    CREATE TABLE IF NOT EXISTS weather_alerts (
        id         UUID PRIMARY KEY,
        city       TEXT NOT NULL,
        temp_c     NUMERIC NOT NULL,
        severity   TEXT NOT NULL,
        message    TEXT NOT NULL,
        raised_at  TIMESTAMPTZ NOT NULL,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );
    ALTER TABLE daily_summaries
        ALTER COLUMN avg_temp_c TYPE NUMERIC,
        ALTER COLUMN max_temp_c TYPE NUMERIC,
        ALTER COLUMN min_temp_c TYPE NUMERIC;
    ALTER TABLE weather_alerts ALTER COLUMN temp_c TYPE NUMERIC;`

	upsertDailySummarySQL = `INSERT INTO daily_summaries (
        summary_date,
        avg_temp_c,
        max_temp_c,
        min_temp_c,
        dominant_condition
    ) VALUES (
        $1::date,$2,$3,$4,$5
    )
    ON CONFLICT (summary_date) DO UPDATE
    SET
        avg_temp_c         = EXCLUDED.avg_temp_c,
        max_temp_c         = EXCLUDED.max_temp_c,
        min_temp_c         = EXCLUDED.min_temp_c,
        dominant_condition = EXCLUDED.dominant_condition,
        updated_at         = now();`

	listRecentSummariesSQL = `SELECT
        to_char(summary_date, 'YYYY-MM-DD'),
        avg_temp_c::text,
        max_temp_c::text,
        min_temp_c::text,
        dominant_condition,
        updated_at
    FROM daily_summaries
    ORDER BY summary_date DESC
    LIMIT $1;`

	insertAlertSQL = `INSERT INTO weather_alerts (
        id,
        city,
        temp_c,
        severity,
        message,
        raised_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    ON CONFLICT (id) DO NOTHING;`

	listRecentAlertsSQL = `SELECT
        id::text,
        city,
        temp_c::text,
        severity,
        message,
        raised_at,
        created_at
    FROM weather_alerts
    ORDER BY raised_at DESC
    LIMIT $1;`
)

// Store aggregates access to summaries and alerts.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the archive tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, schemaSQL); execErr != nil {
		return fmt.Errorf("ensure schema: %w", execErr)
	}
	return nil
}

// UpsertDailySummary persists or updates the summary for its date.
func (s *Store) UpsertDailySummary(ctx context.Context, summary weather.DailySummary) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	rec := summaryRecord(summary)
	_, execErr := pool.Exec(ctx, upsertDailySummarySQL,
		rec.Date,
		rec.AvgTemp.StringFixed(1),
		rec.MaxTemp.String(),
		rec.MinTemp.String(),
		rec.DominantCondition,
	)
	if execErr != nil {
		return fmt.Errorf("upsert daily summary: %w", execErr)
	}
	return nil
}

// ListRecentSummaries returns up to limit summaries, oldest first.
func (s *Store) ListRecentSummaries(ctx context.Context, limit int) ([]SummaryRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSummariesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent summaries: %w", queryErr)
	}
	defer rows.Close()

	records := make([]SummaryRecord, 0, limit)
	for rows.Next() {
		rec, scanErr := scanSummary(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	slices.Reverse(records)
	return records, nil
}

// InsertAlert persists a fired alert. Re-inserting the same ID is a no-op.
func (s *Store) InsertAlert(ctx context.Context, event weather.AlertEvent) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, insertAlertSQL,
		event.ID,
		event.City,
		decimal.NewFromFloat(event.Temp).String(),
		string(event.Severity),
		event.Message,
		event.RaisedAt,
	)
	if execErr != nil {
		return fmt.Errorf("insert alert: %w", execErr)
	}
	return nil
}

// ListRecentAlerts lists the most recent alerts, newest first.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		var rec AlertRecord
		var tempStr string
		if err := rows.Scan(
			&rec.ID,
			&rec.City,
			&tempStr,
			&rec.Severity,
			&rec.Message,
			&rec.RaisedAt,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		var convErr error
		rec.Temp, convErr = decimal.NewFromString(tempStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse alert temperature: %w", convErr)
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

func scanSummary(rows pgx.Rows) (SummaryRecord, error) {
	var (
		rec                    SummaryRecord
		avgStr, maxStr, minStr string
	)
	if err := rows.Scan(
		&rec.Date,
		&avgStr,
		&maxStr,
		&minStr,
		&rec.DominantCondition,
		&rec.UpdatedAt,
	); err != nil {
		return SummaryRecord{}, err
	}

	var err error
	if rec.AvgTemp, err = decimal.NewFromString(avgStr); err != nil {
		return SummaryRecord{}, fmt.Errorf("parse avg temp: %w", err)
	}
	if rec.MaxTemp, err = decimal.NewFromString(maxStr); err != nil {
		return SummaryRecord{}, fmt.Errorf("parse max temp: %w", err)
	}
	if rec.MinTemp, err = decimal.NewFromString(minStr); err != nil {
		return SummaryRecord{}, fmt.Errorf("parse min temp: %w", err)
	}
	return rec, nil
}
