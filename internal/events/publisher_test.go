package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MineSafetyAPI/internal/alerting"
	"MineSafetyAPI/internal/config"
	"MineSafetyAPI/internal/logger"
	"MineSafetyAPI/internal/models"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed int
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
	return nil
}

func (f *fakeWriter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

func sampleEvent() alerting.Event {
	return alerting.Event{
		Type: alerting.EventCreated,
		Alert: models.Alert{
			ID:       "a-1",
			ZoneID:   "jharia-a",
			Severity: models.SeverityCritical,
			Status:   models.StatusActive,
		},
		At: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestPublishKeysByZone(t *testing.T) {
	w := &fakeWriter{}
	p := NewPublisherWithWriter(w, logger.NewNop())

	require.NoError(t, p.Publish(context.Background(), sampleEvent()))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "jharia-a", string(msg.Key))
	assert.Equal(t, "alert.created", string(msg.Headers[0].Value))

	var decoded alerting.Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "a-1", decoded.Alert.ID)
	assert.Equal(t, uint64(1), p.Stats().Sent)
}

func TestPublishFailureCounted(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := NewPublisherWithWriter(w, logger.NewNop())

	err := p.Publish(context.Background(), sampleEvent())
	assert.ErrorContains(t, err, "broker down")
	assert.Equal(t, uint64(1), p.Stats().Failed)
}

func TestPublishAfterClose(t *testing.T) {
	w := &fakeWriter{}
	p := NewPublisherWithWriter(w, logger.NewNop())

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, 1, w.closed)
	assert.ErrorIs(t, p.Publish(context.Background(), sampleEvent()), ErrPublisherClosed)
}

func TestConsumeDrainsUntilClosed(t *testing.T) {
	w := &fakeWriter{}
	p := NewPublisherWithWriter(w, logger.NewNop())

	ch := make(chan alerting.Event, 3)
	ch <- sampleEvent()
	ch <- sampleEvent()
	close(ch)

	done := make(chan struct{})
	go func() {
		p.Consume(context.Background(), ch)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consume did not return after channel closed")
	}
	assert.Equal(t, 2, w.count())
}

func TestNewPublisherValidates(t *testing.T) {
	_, err := NewPublisher(&config.KafkaConfig{Topic: "t"}, logger.NewNop())
	assert.Error(t, err)

	_, err = NewPublisher(&config.KafkaConfig{Brokers: []string{"localhost:9092"}}, logger.NewNop())
	assert.Error(t, err)
}
