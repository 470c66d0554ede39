package risk

import (
	"context"
	"fmt"
	"sort"
	"time"

	"MineSafetyAPI/internal/models"
)

// Score is the output of a Scorer before it is mapped to a level.
type Score struct {
	Probability   float64
	Contributions map[models.MetricKind]float64
	RedLines      []models.MetricKind
}

// Scorer turns the latest readings of a zone into a probability.
type Scorer interface {
	Score(ctx context.Context, latest map[models.MetricKind]models.SensorReading) (Score, error)
}

// WeightedScorer blends normalized metrics by weight. Metrics without a
// reading carry no weight, so the result is the weighted mean of the
// metrics actually reported.
type WeightedScorer struct {
	Policy Policy
}

func (s WeightedScorer) Score(_ context.Context, latest map[models.MetricKind]models.SensorReading) (Score, error) {
	out := Score{Contributions: make(map[models.MetricKind]float64, len(latest))}

	var total float64
	weighted := make(map[models.MetricKind]float64, len(latest))
	for kind, r := range latest {
		rule, ok := s.Policy.Rules[kind]
		if !ok {
			continue
		}
		if rule.Crosses(r.Value) {
			out.RedLines = append(out.RedLines, kind)
		}
		if rule.Weight == 0 {
			continue
		}
		total += rule.Weight
		weighted[kind] = rule.Weight * rule.Normalize(r.Value)
	}
	sort.Slice(out.RedLines, func(i, j int) bool { return out.RedLines[i] < out.RedLines[j] })

	if total == 0 {
		return out, nil
	}
	for kind, w := range weighted {
		c := w / total
		out.Contributions[kind] = c
		out.Probability += c
	}
	out.Probability = clamp01(out.Probability)
	return out, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

type ReadingSource interface {
	Latest(zoneID string) map[models.MetricKind]models.SensorReading
}

type ZoneLookup interface {
	Exists(id string) bool
}

// Evaluator derives a RiskAssessment for a zone. It only reads from the store.
type Evaluator struct {
	source ReadingSource
	zones  ZoneLookup
	scorer Scorer
	policy Policy
	now    func() time.Time
}

// NewEvaluator uses a WeightedScorer over policy when scorer is nil.
func NewEvaluator(source ReadingSource, zones ZoneLookup, policy Policy, scorer Scorer) *Evaluator {
	if scorer == nil {
		scorer = WeightedScorer{Policy: policy}
	}
	return &Evaluator{
		source: source,
		zones:  zones,
		scorer: scorer,
		policy: policy,
		now:    time.Now,
	}
}

func (e *Evaluator) Policy() Policy {
	return e.policy
}

// Evaluate computes the current assessment for zoneID. A zone with no
// readings is low with probability 0.
func (e *Evaluator) Evaluate(ctx context.Context, zoneID string) (models.RiskAssessment, error) {
	if !e.zones.Exists(zoneID) {
		return models.RiskAssessment{}, models.Errorf(models.ErrUnknownZone, "zone %q is not registered", zoneID)
	}

	score, err := e.scorer.Score(ctx, e.source.Latest(zoneID))
	if err != nil {
		return models.RiskAssessment{}, fmt.Errorf("score zone %s: %w", zoneID, err)
	}
	if score.Contributions == nil {
		score.Contributions = map[models.MetricKind]float64{}
	}

	p := clamp01(score.Probability)
	level := e.policy.Level(p, len(score.RedLines) > 0)
	return models.RiskAssessment{
		ZoneID:        zoneID,
		Level:         level,
		Probability:   p,
		Contributions: score.Contributions,
		RedLines:      score.RedLines,
		Actions:       Protocol(level),
		ComputedAt:    e.now().UTC(),
	}, nil
}
