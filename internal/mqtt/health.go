package mqtt

import (
	"context"
	"fmt"
	"time"
)

type HealthStatus struct {
	Connected      bool      `json:"connected"`
	LastConnected  time.Time `json:"last_connected,omitempty"`
	LastDisconnect time.Time `json:"last_disconnect,omitempty"`
	ReadingsTopic  string    `json:"readings_topic"`
	Receiving      bool      `json:"receiving_readings"`
}

func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := &HealthStatus{
		Connected:      c.connected && c.client.IsConnected(),
		LastConnected:  c.lastConnected,
		LastDisconnect: c.lastDisconnect,
		ReadingsTopic:  c.cfg.ReadingsTopic,
		Receiving:      c.readings != nil,
	}
	if !status.Connected {
		return status, fmt.Errorf("mqtt broker %s:%d unreachable", c.cfg.Broker, c.cfg.Port)
	}
	return status, nil
}
