package repository

import (
	"context"
	"database/sql"
	"fmt"

	"MineSafetyAPI/internal/models"
)

// IAlertRepository is the alert table. Rows are upserted on every
// transition and never deleted.
type IAlertRepository interface {
	SaveAlert(ctx context.Context, alert *models.Alert) error
	ListOpenAlerts(ctx context.Context) ([]models.Alert, error)
	GetByID(ctx context.Context, id string) (*models.Alert, error)
	GetHistory(ctx context.Context, zoneID string, limit, offset int) ([]models.Alert, error)
	GetStatistics(ctx context.Context) (map[string]int, error)
}

type AlertRepository struct {
	db *sql.DB
}

func NewAlertRepository(db *sql.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

const alertColumns = `id, zone_id, class, severity, message, probability, risk_level,
		       status, escalations, resolve_reason, created_at, updated_at,
		       acknowledged_at, resolved_at`

// SaveAlert inserts the alert or updates its mutable columns.
func (r *AlertRepository) SaveAlert(ctx context.Context, alert *models.Alert) error {
	query := `
		INSERT INTO alerts (
			id, zone_id, class, severity, message, probability, risk_level,
			status, escalations, resolve_reason, created_at, updated_at,
			acknowledged_at, resolved_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			severity = EXCLUDED.severity,
			message = EXCLUDED.message,
			probability = EXCLUDED.probability,
			risk_level = EXCLUDED.risk_level,
			status = EXCLUDED.status,
			escalations = EXCLUDED.escalations,
			resolve_reason = EXCLUDED.resolve_reason,
			updated_at = EXCLUDED.updated_at,
			acknowledged_at = EXCLUDED.acknowledged_at,
			resolved_at = EXCLUDED.resolved_at
	`

	_, err := r.db.ExecContext(
		ctx, query,
		alert.ID,
		alert.ZoneID,
		alert.Class,
		alert.Severity,
		alert.Message,
		alert.Probability,
		alert.RiskLevel,
		alert.Status,
		alert.Escalations,
		alert.ResolveReason,
		alert.CreatedAt,
		alert.UpdatedAt,
		nullTime(alert.AcknowledgedAt),
		nullTime(alert.ResolvedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save alert: %w", err)
	}
	return nil
}

// ListOpenAlerts returns every alert that is not resolved.
func (r *AlertRepository) ListOpenAlerts(ctx context.Context) ([]models.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE status != $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, models.StatusResolved)
	if err != nil {
		return nil, fmt.Errorf("failed to query open alerts: %w", err)
	}
	defer rows.Close()

	return scanAlerts(rows)
}

// GetByID returns nil when the alert does not exist.
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*models.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE id = $1
	`

	a, err := scanAlert(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert by id: %w", err)
	}
	return a, nil
}

// GetHistory returns a page of alerts, newest first, optionally for one zone.
func (r *AlertRepository) GetHistory(ctx context.Context, zoneID string, limit, offset int) ([]models.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE ($1 = '' OR zone_id = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, zoneID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert history: %w", err)
	}
	defer rows.Close()

	return scanAlerts(rows)
}

// GetStatistics returns a count of open alerts grouped by severity.
func (r *AlertRepository) GetStatistics(ctx context.Context) (map[string]int, error) {
	query := `
		SELECT severity, COUNT(*)
		FROM alerts
		WHERE status != $1
		GROUP BY severity
	`
	rows, err := r.db.QueryContext(ctx, query, models.StatusResolved)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert statistics: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var sev string
		var count int
		if err := rows.Scan(&sev, &count); err != nil {
			return nil, err
		}
		stats[sev] = count
	}
	return stats, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row rowScanner) (*models.Alert, error) {
	var (
		a        models.Alert
		ackedAt  sql.NullTime
		resolved sql.NullTime
	)
	err := row.Scan(
		&a.ID, &a.ZoneID, &a.Class, &a.Severity, &a.Message, &a.Probability, &a.RiskLevel,
		&a.Status, &a.Escalations, &a.ResolveReason, &a.CreatedAt, &a.UpdatedAt,
		&ackedAt, &resolved,
	)
	if err != nil {
		return nil, err
	}
	a.AcknowledgedAt = timePtr(ackedAt)
	a.ResolvedAt = timePtr(resolved)
	return &a, nil
}

func scanAlerts(rows *sql.Rows) ([]models.Alert, error) {
	var alerts []models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}
