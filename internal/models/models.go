// internal/models/models.go

package models

import (
	"fmt"
	"time"
)

type MetricKind string

const (
	MetricDisplacement     MetricKind = "displacement"
	MetricStrain           MetricKind = "strain"
	MetricPorePressure     MetricKind = "pore_pressure"
	MetricVibration        MetricKind = "vibration"
	MetricGasConcentration MetricKind = "gas_concentration"
	MetricTemperature      MetricKind = "temperature"
	MetricRainfall         MetricKind = "rainfall"
)

// AllMetrics lists the metric kinds the engine understands.
var AllMetrics = []MetricKind{
	MetricDisplacement,
	MetricStrain,
	MetricPorePressure,
	MetricVibration,
	MetricGasConcentration,
	MetricTemperature,
	MetricRainfall,
}

func (k MetricKind) IsKnown() bool {
	for _, m := range AllMetrics {
		if m == k {
			return true
		}
	}
	return false
}

// Zone is a monitored physical area (mine section, pit, slope).
type Zone struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	State       string    `json:"state,omitempty"`
	District    string    `json:"district,omitempty"`
	Latitude    float64   `json:"latitude,omitempty"`
	Longitude   float64   `json:"longitude,omitempty"`
	MineType    string    `json:"mine_type,omitempty"`
	WorkerCount int       `json:"worker_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// SensorReading is one timestamped observation. Never mutated after insert.
type SensorReading struct {
	SensorID   string     `json:"sensor_id" db:"sensor_id"`
	ZoneID     string     `json:"zone_id" db:"zone_id"`
	Metric     MetricKind `json:"metric" db:"metric"`
	Value      float64    `json:"value" db:"value"`
	Unit       string     `json:"unit" db:"unit"`
	Timestamp  time.Time  `json:"timestamp" db:"timestamp"`
	ReceivedAt time.Time  `json:"received_at" db:"received_at"`
}

// ReadingMessage is the wire shape accepted over MQTT and HTTP.
// Timestamp may be RFC3339 text; Epoch (seconds) is used when it is empty.
type ReadingMessage struct {
	SensorID  string   `json:"sensor_id"`
	ZoneID    string   `json:"zone_id"`
	Metric    string   `json:"metric"`
	Value     *float64 `json:"value"`
	Unit      string   `json:"unit"`
	Timestamp string   `json:"timestamp,omitempty"`
	Epoch     int64    `json:"epoch,omitempty"`
}

type ReadingQueryRequest struct {
	ZoneID string
	Metric MetricKind
	Since  time.Time
	Until  time.Time
	Limit  int
}

// HealthResponse lists each enabled dependency and whether it answered.
type HealthResponse struct {
	Status    string          `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
	Services  map[string]bool `json:"services"`
}

// ToReading converts a wire message, stamping ReceivedAt with now. Field
// validation beyond presence is left to the store.
func (m ReadingMessage) ToReading(now time.Time) (SensorReading, error) {
	if m.Value == nil {
		return SensorReading{}, Errorf(ErrInvalidValue, "value is required")
	}

	var ts time.Time
	switch {
	case m.Timestamp != "":
		parsed, err := time.Parse(time.RFC3339Nano, m.Timestamp)
		if err != nil {
			return SensorReading{}, Wrap(ErrInvalidReading, fmt.Errorf("bad timestamp %q: %w", m.Timestamp, err))
		}
		ts = parsed
	case m.Epoch > 0:
		ts = time.Unix(m.Epoch, 0)
	default:
		ts = now
	}

	return SensorReading{
		SensorID:   m.SensorID,
		ZoneID:     m.ZoneID,
		Metric:     MetricKind(m.Metric),
		Value:      *m.Value,
		Unit:       m.Unit,
		Timestamp:  ts.UTC(),
		ReceivedAt: now,
	}, nil
}
