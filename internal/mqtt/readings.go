package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"MineSafetyAPI/internal/models"
)

// ReadingSink accepts a decoded reading.
type ReadingSink interface {
	Ingest(ctx context.Context, reading models.SensorReading) error
}

// ParseReading decodes a reading published on
// mines/{zone}/sensors/{sensor}/readings. Zone and sensor ids missing from
// the payload are taken from the topic.
func ParseReading(topic string, payload []byte, now time.Time) (models.SensorReading, error) {
	var msg models.ReadingMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return models.SensorReading{}, models.Wrap(models.ErrInvalidReading, fmt.Errorf("decode payload: %w", err))
	}

	parts := splitTopic(topic)
	if len(parts) == 5 && parts[2] == "sensors" {
		if msg.ZoneID == "" {
			msg.ZoneID = parts[1]
		}
		if msg.SensorID == "" {
			msg.SensorID = parts[3]
		}
	}

	return msg.ToReading(now)
}

// ReadingHandler returns a MessageHandler that forwards readings to sink.
func (c *Client) ReadingHandler(sink ReadingSink) MessageHandler {
	return func(topic string, payload []byte) error {
		reading, err := ParseReading(topic, payload, time.Now().UTC())
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
		defer cancel()
		return sink.Ingest(ctx, reading)
	}
}
