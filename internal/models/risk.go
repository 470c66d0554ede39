package models

import "time"

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

var riskRank = map[RiskLevel]int{
	RiskLow:      0,
	RiskMedium:   1,
	RiskHigh:     2,
	RiskCritical: 3,
}

// AtLeast reports whether l is as severe as other.
func (l RiskLevel) AtLeast(other RiskLevel) bool {
	return riskRank[l] >= riskRank[other]
}

// RiskAssessment is recomputed on every evaluation and superseded by the next one.
type RiskAssessment struct {
	ZoneID        string                 `json:"zone_id"`
	Level         RiskLevel              `json:"risk_level"`
	Probability   float64                `json:"probability"`
	Contributions map[MetricKind]float64 `json:"contributions"`
	RedLines      []MetricKind           `json:"red_lines,omitempty"`
	Actions       []string               `json:"actions,omitempty"`
	ComputedAt    time.Time              `json:"computed_at"`
}

// HasRedLine reports whether any raw metric crossed its hard safety limit.
func (a RiskAssessment) HasRedLine() bool {
	return len(a.RedLines) > 0
}
