package risk

import (
	"errors"
	"fmt"

	"MineSafetyAPI/internal/models"
)

// MetricRule normalizes one metric kind onto [0,1] and weights it.
type MetricRule struct {
	Metric models.MetricKind `json:"metric"`
	Weight float64           `json:"weight"`
	Min    float64           `json:"min"`
	Max    float64           `json:"max"`
	Unit   string            `json:"unit"`
	// RedLine is the raw value at or above which the metric alone forces
	// critical. Nil disables it.
	RedLine *float64 `json:"red_line,omitempty"`
}

// Normalize maps v onto [0,1] over the rule's range.
func (r MetricRule) Normalize(v float64) float64 {
	if r.Max <= r.Min {
		return 0
	}
	n := (v - r.Min) / (r.Max - r.Min)
	switch {
	case n < 0:
		return 0
	case n > 1:
		return 1
	default:
		return n
	}
}

func (r MetricRule) Crosses(v float64) bool {
	return r.RedLine != nil && v >= *r.RedLine
}

type Thresholds struct {
	High   float64 `json:"high"`
	Medium float64 `json:"medium"`
}

type Policy struct {
	Rules      map[models.MetricKind]MetricRule `json:"-"`
	Thresholds Thresholds                       `json:"thresholds"`
	// RedLineForcesCritical makes any red-line metric critical regardless of
	// the blended probability. When false a red-line only upgrades high.
	RedLineForcesCritical bool `json:"red_line_forces_critical"`
}

func limit(v float64) *float64 { return &v }

// DefaultPolicy returns the built-in metric catalogue. Values are deployment
// defaults and are expected to be tuned through the engine config file.
func DefaultPolicy() Policy {
	rules := []MetricRule{
		{Metric: models.MetricDisplacement, Weight: 0.30, Min: 0, Max: 60, Unit: "mm", RedLine: limit(50)},
		{Metric: models.MetricStrain, Weight: 0.10, Min: 0, Max: 1000, Unit: "µε"},
		{Metric: models.MetricPorePressure, Weight: 0.20, Min: 0, Max: 300, Unit: "kPa", RedLine: limit(250)},
		{Metric: models.MetricVibration, Weight: 0.15, Min: 0, Max: 20, Unit: "mm/s", RedLine: limit(12.5)},
		{Metric: models.MetricGasConcentration, Weight: 0.15, Min: 0, Max: 2, Unit: "%CH4", RedLine: limit(1.25)},
		{Metric: models.MetricRainfall, Weight: 0.05, Min: 0, Max: 100, Unit: "mm/h"},
		{Metric: models.MetricTemperature, Weight: 0.05, Min: 20, Max: 50, Unit: "°C"},
	}
	return NewPolicy(rules)
}

func NewPolicy(rules []MetricRule) Policy {
	p := Policy{
		Rules:                 make(map[models.MetricKind]MetricRule, len(rules)),
		Thresholds:            Thresholds{High: 0.70, Medium: 0.30},
		RedLineForcesCritical: true,
	}
	for _, r := range rules {
		p.Rules[r.Metric] = r
	}
	return p
}

func (p Policy) Validate() error {
	var errs []error
	if !(0 < p.Thresholds.Medium && p.Thresholds.Medium < p.Thresholds.High && p.Thresholds.High <= 1) {
		errs = append(errs, fmt.Errorf("thresholds must satisfy 0 < medium < high <= 1, got medium=%.2f high=%.2f",
			p.Thresholds.Medium, p.Thresholds.High))
	}
	for kind, r := range p.Rules {
		if !kind.IsKnown() {
			errs = append(errs, fmt.Errorf("rule for unknown metric %q", kind))
		}
		if r.Weight < 0 {
			errs = append(errs, fmt.Errorf("%s: weight must be >= 0", kind))
		}
		if r.Max <= r.Min {
			errs = append(errs, fmt.Errorf("%s: max must be greater than min", kind))
		}
	}
	return errors.Join(errs...)
}

// Kinds returns the metric kinds that have a rule.
func (p Policy) Kinds() []models.MetricKind {
	out := make([]models.MetricKind, 0, len(p.Rules))
	for _, k := range models.AllMetrics {
		if _, ok := p.Rules[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

// IsRedLine reports whether a single reading crosses its hard safety limit.
func (p Policy) IsRedLine(r models.SensorReading) bool {
	rule, ok := p.Rules[r.Metric]
	return ok && rule.Crosses(r.Value)
}

// Level maps a probability and red-line flag onto a risk level.
func (p Policy) Level(probability float64, redLine bool) models.RiskLevel {
	if redLine && p.RedLineForcesCritical {
		return models.RiskCritical
	}
	switch {
	case probability >= p.Thresholds.High:
		if redLine {
			return models.RiskCritical
		}
		return models.RiskHigh
	case probability >= p.Thresholds.Medium:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}
