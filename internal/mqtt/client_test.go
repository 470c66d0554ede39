package mqtt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MineSafetyAPI/internal/config"
	"MineSafetyAPI/internal/logger"
	"MineSafetyAPI/internal/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(ClientConfig{
		MQTT: &config.MQTTConfig{
			Broker:         "localhost",
			Port:           1883,
			ClientID:       "test",
			ReadingsTopic:  "mines/+/sensors/+/readings",
			SirenTopic:     "mines/%s/siren",
			KeepAlive:      30 * time.Second,
			ConnectTimeout: time.Second,
		},
		Logger: logger.NewNop(),
	})
	require.NoError(t, err)
	return c
}

type sinkFunc func(ctx context.Context, r models.SensorReading) error

func (f sinkFunc) Ingest(ctx context.Context, r models.SensorReading) error { return f(ctx, r) }

func TestMatchTopic(t *testing.T) {
	tests := []struct {
		pattern string
		topic   string
		want    bool
	}{
		{"mines/+/sensors/+/readings", "mines/jharia-a/sensors/disp-01/readings", true},
		{"mines/+/sensors/+/readings", "mines/jharia-a/sensors/readings", false},
		{"mines/#", "mines/jharia-a/siren", true},
		{"mines/jharia-a/siren", "mines/jharia-a/siren", true},
		{"mines/kolar-l3/siren", "mines/jharia-a/siren", false},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+"->"+tt.topic, func(t *testing.T) {
			assert.Equal(t, tt.want, matchTopic(tt.pattern, tt.topic))
		})
	}
}

func TestParseReadingFillsIDsFromTopic(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	payload := []byte(`{"metric":"pore_pressure","value":182.4,"unit":"kPa","epoch":1772366340}`)

	r, err := ParseReading("mines/bailadila-14/sensors/pz-07/readings", payload, now)
	require.NoError(t, err)
	assert.Equal(t, "bailadila-14", r.ZoneID)
	assert.Equal(t, "pz-07", r.SensorID)
	assert.Equal(t, models.MetricPorePressure, r.Metric)
	assert.Equal(t, 182.4, r.Value)
	assert.Equal(t, int64(1772366340), r.Timestamp.Unix())
}

func TestParseReadingPayloadWins(t *testing.T) {
	payload := []byte(`{"zone_id":"kolar-l3","sensor_id":"s-1","metric":"vibration","value":3}`)

	r, err := ParseReading("mines/other/sensors/s-9/readings", payload, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "kolar-l3", r.ZoneID)
	assert.Equal(t, "s-1", r.SensorID)
}

func TestParseReadingRejectsGarbage(t *testing.T) {
	_, err := ParseReading("mines/z/sensors/s/readings", []byte(`{not json`), time.Now())
	assert.ErrorIs(t, err, models.ErrInvalidReading)

	_, err = ParseReading("mines/z/sensors/s/readings", []byte(`{"metric":"gas_concentration"}`), time.Now())
	assert.ErrorIs(t, err, models.ErrInvalidValue)
}

func TestDispatchRoutesWildcardHandler(t *testing.T) {
	c := newTestClient(t)

	var got []models.SensorReading
	c.readings = c.ReadingHandler(sinkFunc(func(_ context.Context, r models.SensorReading) error {
		got = append(got, r)
		return nil
	}))

	c.dispatch("mines/jharia-a/sensors/gas-02/readings", []byte(`{"metric":"gas_concentration","value":0.8}`))
	c.dispatch("mines/jharia-a/sirens/siren-1/status", []byte(`{}`))

	require.Len(t, got, 1)
	assert.Equal(t, "jharia-a", got[0].ZoneID)
	assert.Equal(t, models.MetricGasConcentration, got[0].Metric)
}

func TestDispatchSurvivesSinkError(t *testing.T) {
	c := newTestClient(t)
	calls := 0
	c.readings = c.ReadingHandler(sinkFunc(func(context.Context, models.SensorReading) error {
		calls++
		return errors.New("unknown zone")
	}))

	c.dispatch("mines/nowhere/sensors/s/readings", []byte(`{"metric":"strain","value":1}`))
	assert.Equal(t, 1, calls)
}

func TestStopReadingsDropsLaterMessages(t *testing.T) {
	c := newTestClient(t)
	calls := 0
	c.readings = c.ReadingHandler(sinkFunc(func(context.Context, models.SensorReading) error {
		calls++
		return nil
	}))

	c.dispatch("mines/jharia-a/sensors/d-1/readings", []byte(`{"metric":"displacement","value":2}`))
	require.NoError(t, c.StopReadings())
	c.dispatch("mines/jharia-a/sensors/d-1/readings", []byte(`{"metric":"displacement","value":3}`))

	assert.Equal(t, 1, calls)
	status, _ := c.Health(context.Background())
	assert.False(t, status.Receiving)
	assert.Equal(t, "mines/+/sensors/+/readings", status.ReadingsTopic)
}

func TestSubscribeReadingsRequiresConnection(t *testing.T) {
	c := newTestClient(t)

	err := c.SubscribeReadings(sinkFunc(func(context.Context, models.SensorReading) error { return nil }))
	assert.Error(t, err)
	assert.Nil(t, c.readings)
}

func TestNewClientRequiresReadingsTopic(t *testing.T) {
	_, err := NewClient(ClientConfig{
		MQTT:   &config.MQTTConfig{Broker: "localhost", Port: 1883, ClientID: "test"},
		Logger: logger.NewNop(),
	})
	assert.Error(t, err)
}

func TestPublishRequiresConnection(t *testing.T) {
	c := newTestClient(t)

	assert.False(t, c.IsConnected())
	assert.Equal(t, "mines/jharia-a/siren", c.sirenTopic("jharia-a"))
	assert.Error(t, c.SoundSiren(models.Alert{ID: "a-1", ZoneID: "jharia-a"}))

	status, err := c.Health(context.Background())
	assert.Error(t, err)
	assert.False(t, status.Connected)
}
