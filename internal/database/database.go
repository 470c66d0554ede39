package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"MineSafetyAPI/internal/config"

	"github.com/lib/pq"
)

// Tables the engine persists to: the reading log, the alert table and the
// notification audit trail.
var tables = []string{"sensor_readings", "alerts", "notification_jobs"}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS sensor_readings (
		id          BIGSERIAL PRIMARY KEY,
		sensor_id   TEXT NOT NULL,
		zone_id     TEXT NOT NULL,
		metric      TEXT NOT NULL,
		value       DOUBLE PRECISION NOT NULL,
		unit        TEXT NOT NULL DEFAULT '',
		captured_at TIMESTAMPTZ NOT NULL,
		received_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sensor_readings_zone_metric_time
		ON sensor_readings (zone_id, metric, captured_at)`,
	`CREATE TABLE IF NOT EXISTS alerts (
		id              UUID PRIMARY KEY,
		zone_id         TEXT NOT NULL,
		class           TEXT NOT NULL,
		severity        TEXT NOT NULL,
		message         TEXT NOT NULL,
		probability     DOUBLE PRECISION NOT NULL,
		risk_level      TEXT NOT NULL,
		status          TEXT NOT NULL,
		escalations     INTEGER NOT NULL DEFAULT 0,
		resolve_reason  TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMPTZ NOT NULL,
		updated_at      TIMESTAMPTZ NOT NULL,
		acknowledged_at TIMESTAMPTZ,
		resolved_at     TIMESTAMPTZ
	)`,
	// at most one open alert per (zone, class)
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_alerts_open_key
		ON alerts (zone_id, class) WHERE status <> 'resolved'`,
	`CREATE TABLE IF NOT EXISTS notification_jobs (
		id              UUID PRIMARY KEY,
		alert_id        UUID NOT NULL REFERENCES alerts(id),
		channel         TEXT NOT NULL,
		recipient       TEXT NOT NULL,
		recipient_name  TEXT NOT NULL DEFAULT '',
		message         TEXT NOT NULL,
		attempts        INTEGER NOT NULL DEFAULT 0,
		status          TEXT NOT NULL,
		last_error      TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMPTZ NOT NULL,
		last_attempt_at TIMESTAMPTZ,
		completed_at    TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notification_jobs_alert
		ON notification_jobs (alert_id)`,
}

type Database struct {
	DB  *sql.DB
	cfg *config.DatabaseConfig
}

func dsn(cfg *config.DatabaseConfig) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s application_name=mine-safety-api",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Database,
		cfg.SSLMode,
	)
}

func New(cfg *config.DatabaseConfig) (*Database, error) {
	db, err := sql.Open("postgres", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database %s on %s:%d: %w", cfg.Database, cfg.Host, cfg.Port, err)
	}

	return &Database{
		DB:  db,
		cfg: cfg,
	}, nil
}

// Wrap uses an already opened handle, e.g. a sqlmock connection.
func Wrap(db *sql.DB) *Database {
	return &Database{DB: db}
}

func (d *Database) Close() error {
	return d.DB.Close()
}

// Migrate creates the engine's tables and indexes in one transaction.
func (d *Database) Migrate(ctx context.Context) error {
	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer tx.Rollback()

	for i, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d failed: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	return nil
}

// Health reports the database unhealthy when it is unreachable or when a
// table the engine writes to is missing.
func (d *Database) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := d.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	rows, err := d.DB.QueryContext(ctx,
		`SELECT t.name FROM unnest($1::text[]) AS t(name) WHERE to_regclass(t.name) IS NULL`,
		pq.Array(tables),
	)
	if err != nil {
		return fmt.Errorf("database schema check failed: %w", err)
	}
	defer rows.Close()

	var missing []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("database schema check failed: %w", err)
		}
		missing = append(missing, name)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("database schema check failed: %w", err)
	}
	if len(missing) > 0 {
		return fmt.Errorf("database schema incomplete, missing tables: %s", strings.Join(missing, ", "))
	}
	return nil
}
