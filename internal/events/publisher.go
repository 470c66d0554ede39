package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"MineSafetyAPI/internal/alerting"
	"MineSafetyAPI/internal/config"
	"MineSafetyAPI/internal/logger"
)

var ErrPublisherClosed = errors.New("publisher is closed")

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher streams alert lifecycle events to Kafka, keyed by zone so a
// zone's events stay ordered within one partition.
type Publisher struct {
	writer  MessageWriter
	log     *logger.Logger
	closed  atomic.Bool
	sent    atomic.Uint64
	failed  atomic.Uint64
	timeout time.Duration
}

func NewPublisher(cfg *config.KafkaConfig, log *logger.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("topic is required")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
	}
	return NewPublisherWithWriter(writer, log), nil
}

func NewPublisherWithWriter(w MessageWriter, log *logger.Logger) *Publisher {
	return &Publisher{writer: w, log: log, timeout: 10 * time.Second}
}

func (p *Publisher) Publish(ctx context.Context, ev alerting.Event) error {
	if p.closed.Load() {
		return ErrPublisherClosed
	}

	data, err := json.Marshal(ev)
	if err != nil {
		p.failed.Add(1)
		return fmt.Errorf("failed to serialize alert event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(ev.Alert.ZoneID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
			{Key: "alert_id", Value: []byte(ev.Alert.ID)},
			{Key: "severity", Value: []byte(ev.Alert.Severity)},
		},
		Time: ev.At,
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.failed.Add(1)
		return fmt.Errorf("failed to publish alert event: %w", err)
	}
	p.sent.Add(1)
	return nil
}

// Consume drains an alert subscription until it closes or ctx ends.
// Publish failures are logged and never stop the loop.
func (p *Publisher) Consume(ctx context.Context, events <-chan alerting.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := p.Publish(ctx, ev); err != nil {
				p.log.Warn("Kafka publish of %s for alert %s failed: %v", ev.Type, ev.Alert.ID, err)
			}
		}
	}
}

type Stats struct {
	Sent   uint64 `json:"sent"`
	Failed uint64 `json:"failed"`
}

func (p *Publisher) Stats() Stats {
	return Stats{Sent: p.sent.Load(), Failed: p.failed.Load()}
}

func (p *Publisher) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.writer.Close()
}
