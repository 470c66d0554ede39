package models

import "time"

type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Rank orders severities so escalation can be detected.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

type AlertStatus string

const (
	StatusActive       AlertStatus = "active"
	StatusAcknowledged AlertStatus = "acknowledged"
	StatusMonitoring   AlertStatus = "monitoring"
	StatusResolved     AlertStatus = "resolved"
)

func (s AlertStatus) IsOpen() bool {
	return s != StatusResolved
}

// AlertClass is the hazard an alert tracks. Severity may change on an open
// alert; the class never does.
type AlertClass string

const ClassRockfallRisk AlertClass = "rockfall_risk"

// AlertKey identifies the at-most-one open alert slot.
type AlertKey struct {
	ZoneID string
	Class  AlertClass
}

type Alert struct {
	ID             string      `json:"id" db:"id"`
	ZoneID         string      `json:"zone_id" db:"zone_id"`
	Class          AlertClass  `json:"class" db:"class"`
	Severity       Severity    `json:"severity" db:"severity"`
	Message        string      `json:"message" db:"message"`
	Probability    float64     `json:"probability" db:"probability"`
	RiskLevel      RiskLevel   `json:"risk_level" db:"risk_level"`
	Status         AlertStatus `json:"status" db:"status"`
	Escalations    int         `json:"escalations" db:"escalations"`
	ResolveReason  string      `json:"resolve_reason,omitempty" db:"resolve_reason"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at" db:"updated_at"`
	AcknowledgedAt *time.Time  `json:"acknowledged_at,omitempty" db:"acknowledged_at"`
	ResolvedAt     *time.Time  `json:"resolved_at,omitempty" db:"resolved_at"`
}

func (a *Alert) Key() AlertKey {
	return AlertKey{ZoneID: a.ZoneID, Class: a.Class}
}

type AlertFilter struct {
	ZoneID string
	Status AlertStatus
	Open   bool
}

// AlertConfig holds the lifecycle policy.
type AlertConfig struct {
	// MinLevel is the lowest risk level that opens an alert.
	MinLevel RiskLevel `json:"min_level"`
	// AutoResolveAfter is the number of consecutive low evaluations that
	// resolve an open alert.
	AutoResolveAfter int `json:"auto_resolve_after"`
}

var DefaultAlertConfig = AlertConfig{
	MinLevel:         RiskHigh,
	AutoResolveAfter: 3,
}
