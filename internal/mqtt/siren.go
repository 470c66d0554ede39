package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"MineSafetyAPI/internal/models"
)

type SirenAction string

const (
	SirenSound   SirenAction = "sound"
	SirenSilence SirenAction = "silence"
)

// SirenCommand is published to a zone's siren controller.
type SirenCommand struct {
	Action   SirenAction     `json:"action"`
	ZoneID   string          `json:"zone_id"`
	AlertID  string          `json:"alert_id"`
	Severity models.Severity `json:"severity"`
	Message  string          `json:"message,omitempty"`
	IssuedAt time.Time       `json:"issued_at"`
}

func (c *Client) sirenTopic(zoneID string) string {
	return fmt.Sprintf(c.cfg.SirenTopic, zoneID)
}

func (c *Client) publishCommand(zoneID string, cmd SirenCommand) error {
	if !c.IsConnected() {
		return fmt.Errorf("not connected to broker")
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal siren command: %w", err)
	}

	topic := c.sirenTopic(zoneID)
	token := c.client.Publish(topic, c.cfg.QoS, c.cfg.RetainMessages, payload)
	if !token.WaitTimeout(opTimeout) {
		return fmt.Errorf("publish timeout for topic: %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish failed for topic %s: %w", topic, err)
	}
	return nil
}

// SoundSiren triggers the zone siren for a critical alert.
func (c *Client) SoundSiren(alert models.Alert) error {
	cmd := SirenCommand{
		Action:   SirenSound,
		ZoneID:   alert.ZoneID,
		AlertID:  alert.ID,
		Severity: alert.Severity,
		Message:  alert.Message,
		IssuedAt: time.Now().UTC(),
	}

	c.log.Warn("Sounding siren in zone %s for alert %s", alert.ZoneID, alert.ID)

	if err := c.publishCommand(alert.ZoneID, cmd); err != nil {
		return fmt.Errorf("failed to sound siren: %w", err)
	}
	return nil
}

// SilenceSiren stops the zone siren once its alert is resolved.
func (c *Client) SilenceSiren(alert models.Alert) error {
	cmd := SirenCommand{
		Action:   SirenSilence,
		ZoneID:   alert.ZoneID,
		AlertID:  alert.ID,
		Severity: alert.Severity,
		IssuedAt: time.Now().UTC(),
	}

	c.log.Info("Silencing siren in zone %s", alert.ZoneID)

	if err := c.publishCommand(alert.ZoneID, cmd); err != nil {
		return fmt.Errorf("failed to silence siren: %w", err)
	}
	return nil
}
