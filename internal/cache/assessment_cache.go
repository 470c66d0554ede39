package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"MineSafetyAPI/internal/config"
	"MineSafetyAPI/internal/logger"
	"MineSafetyAPI/internal/models"
)

const (
	assessmentKeyPrefix = "minesafety:zone:"
	assessmentKeySuffix = ":risk"
	openAlertsKey       = "minesafety:alerts:open"
)

// AssessmentCache publishes the latest assessment per zone and the open
// alert set so dashboards can read them without calling the engine.
type AssessmentCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

func New(cfg *config.RedisConfig, log *logger.Logger) (*AssessmentCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return NewWithClient(client, cfg.TTL, log), nil
}

func NewWithClient(client *redis.Client, ttl time.Duration, log *logger.Logger) *AssessmentCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &AssessmentCache{client: client, ttl: ttl, log: log}
}

func assessmentKey(zoneID string) string {
	return assessmentKeyPrefix + zoneID + assessmentKeySuffix
}

func (c *AssessmentCache) SetAssessment(ctx context.Context, a models.RiskAssessment) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal assessment: %w", err)
	}
	if err := c.client.Set(ctx, assessmentKey(a.ZoneID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache assessment: %w", err)
	}
	return nil
}

// GetAssessment returns (nil, nil) on a cache miss.
func (c *AssessmentCache) GetAssessment(ctx context.Context, zoneID string) (*models.RiskAssessment, error) {
	val, err := c.client.Get(ctx, assessmentKey(zoneID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached assessment: %w", err)
	}

	var a models.RiskAssessment
	if err := json.Unmarshal([]byte(val), &a); err != nil {
		return nil, fmt.Errorf("failed to unmarshal assessment: %w", err)
	}
	return &a, nil
}

// SyncAlert keeps the open-alert hash in step with an alert change.
func (c *AssessmentCache) SyncAlert(ctx context.Context, alert models.Alert) error {
	if !alert.Status.IsOpen() {
		return c.client.HDel(ctx, openAlertsKey, alert.ID).Err()
	}
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	return c.client.HSet(ctx, openAlertsKey, alert.ID, data).Err()
}

func (c *AssessmentCache) OpenAlerts(ctx context.Context) ([]models.Alert, error) {
	vals, err := c.client.HGetAll(ctx, openAlertsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read open alerts: %w", err)
	}
	alerts := make([]models.Alert, 0, len(vals))
	for id, raw := range vals {
		var a models.Alert
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			c.log.Warn("Dropping unreadable cached alert %s: %v", id, err)
			continue
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}

func (c *AssessmentCache) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *AssessmentCache) Close() error {
	return c.client.Close()
}
