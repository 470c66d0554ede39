package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"MineSafetyAPI/internal/models"
)

// ReadingRepository is the append-only reading log.
type ReadingRepository struct {
	db *sql.DB
}

func NewReadingRepository(db *sql.DB) *ReadingRepository {
	return &ReadingRepository{db: db}
}

func (r *ReadingRepository) Insert(ctx context.Context, reading *models.SensorReading) error {
	query := `
		INSERT INTO sensor_readings (
			sensor_id, zone_id, metric, value, unit, captured_at, received_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(
		ctx, query,
		reading.SensorID,
		reading.ZoneID,
		reading.Metric,
		reading.Value,
		reading.Unit,
		reading.Timestamp,
		reading.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}
	return nil
}

// Query returns logged readings in ascending capture order.
func (r *ReadingRepository) Query(ctx context.Context, req models.ReadingQueryRequest) ([]models.SensorReading, error) {
	if req.Limit <= 0 || req.Limit > 10000 {
		req.Limit = 1000
	}
	until := req.Until
	if until.IsZero() {
		until = time.Now().Add(24 * time.Hour)
	}

	query := `
		SELECT sensor_id, zone_id, metric, value, unit, captured_at, received_at
		FROM sensor_readings
		WHERE zone_id = $1 AND metric = $2 AND captured_at >= $3 AND captured_at <= $4
		ORDER BY captured_at ASC
		LIMIT $5
	`

	rows, err := r.db.QueryContext(ctx, query, req.ZoneID, req.Metric, req.Since, until, req.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	var out []models.SensorReading
	for rows.Next() {
		var s models.SensorReading
		if err := rows.Scan(&s.SensorID, &s.ZoneID, &s.Metric, &s.Value, &s.Unit, &s.Timestamp, &s.ReceivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteOlderThan trims the log; the in-memory store has its own retention.
func (r *ReadingRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sensor_readings WHERE captured_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old readings: %w", err)
	}
	return result.RowsAffected()
}
