package repository

import (
	"context"
	"database/sql"
	"fmt"

	"MineSafetyAPI/internal/models"
)

// NotificationRepository is the notification audit table.
type NotificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

const jobColumns = `id, alert_id, channel, recipient, recipient_name, message, attempts,
		       status, last_error, created_at, last_attempt_at, completed_at`

func (r *NotificationRepository) SaveJob(ctx context.Context, job *models.NotificationJob) error {
	query := `
		INSERT INTO notification_jobs (
			id, alert_id, channel, recipient, recipient_name, message, attempts,
			status, last_error, created_at, last_attempt_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			attempts = EXCLUDED.attempts,
			status = EXCLUDED.status,
			last_error = EXCLUDED.last_error,
			last_attempt_at = EXCLUDED.last_attempt_at,
			completed_at = EXCLUDED.completed_at
	`

	_, err := r.db.ExecContext(
		ctx, query,
		job.ID,
		job.AlertID,
		job.Channel,
		job.Recipient,
		job.RecipientName,
		job.Message,
		job.Attempts,
		job.Status,
		job.LastError,
		job.CreatedAt,
		nullTime(job.LastAttemptAt),
		nullTime(job.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save notification job: %w", err)
	}
	return nil
}

// ListJobs returns the whole audit trail, newest first.
func (r *NotificationRepository) ListJobs(ctx context.Context) ([]models.NotificationJob, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM notification_jobs
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query notification jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

func (r *NotificationRepository) ListByAlert(ctx context.Context, alertID string) ([]models.NotificationJob, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM notification_jobs
		WHERE alert_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to query notification jobs for alert: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

func scanJobs(rows *sql.Rows) ([]models.NotificationJob, error) {
	var jobs []models.NotificationJob
	for rows.Next() {
		var (
			j         models.NotificationJob
			attempted sql.NullTime
			completed sql.NullTime
		)
		err := rows.Scan(
			&j.ID, &j.AlertID, &j.Channel, &j.Recipient, &j.RecipientName, &j.Message, &j.Attempts,
			&j.Status, &j.LastError, &j.CreatedAt, &attempted, &completed,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification job: %w", err)
		}
		j.LastAttemptAt = timePtr(attempted)
		j.CompletedAt = timePtr(completed)
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
