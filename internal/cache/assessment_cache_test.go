package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MineSafetyAPI/internal/logger"
	"MineSafetyAPI/internal/models"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *AssessmentCache) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewWithClient(client, time.Minute, logger.NewNop())
}

func TestAssessmentRoundTrip(t *testing.T) {
	mr, c := setupTestRedis(t)
	ctx := context.Background()

	in := models.RiskAssessment{
		ZoneID:      "jharia-a",
		Level:       models.RiskCritical,
		Probability: 1,
		RedLines:    []models.MetricKind{models.MetricDisplacement},
		ComputedAt:  time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, c.SetAssessment(ctx, in))

	assert.True(t, mr.Exists("minesafety:zone:jharia-a:risk"))
	assert.Equal(t, time.Minute, mr.TTL("minesafety:zone:jharia-a:risk"))

	out, err := c.GetAssessment(ctx, "jharia-a")
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, models.RiskCritical, out.Level)
	assert.Equal(t, []models.MetricKind{models.MetricDisplacement}, out.RedLines)
	assert.True(t, in.ComputedAt.Equal(out.ComputedAt))
}

func TestAssessmentExpires(t *testing.T) {
	mr, c := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.SetAssessment(ctx, models.RiskAssessment{ZoneID: "kolar-l3", Level: models.RiskLow}))
	mr.FastForward(2 * time.Minute)

	out, err := c.GetAssessment(ctx, "kolar-l3")
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestSyncAlertTracksOpenSet(t *testing.T) {
	_, c := setupTestRedis(t)
	ctx := context.Background()

	alert := models.Alert{ID: "a-1", ZoneID: "jharia-a", Severity: models.SeverityWarning, Status: models.StatusActive}
	require.NoError(t, c.SyncAlert(ctx, alert))

	open, err := c.OpenAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "a-1", open[0].ID)

	alert.Status = models.StatusResolved
	require.NoError(t, c.SyncAlert(ctx, alert))

	open, err = c.OpenAlerts(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestHealth(t *testing.T) {
	mr, c := setupTestRedis(t)
	assert.NoError(t, c.Health(context.Background()))

	mr.Close()
	assert.Error(t, c.Health(context.Background()))
}
