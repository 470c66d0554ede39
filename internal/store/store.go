package store

import (
	"context"
	"iter"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"MineSafetyAPI/internal/logger"
	"MineSafetyAPI/internal/models"
)

type Config struct {
	Retention     time.Duration
	SweepInterval time.Duration
	// ClockSkew is how far behind a sensor's last accepted reading a new one
	// may be and still be accepted.
	ClockSkew time.Duration
}

var DefaultConfig = Config{
	Retention:     24 * time.Hour,
	SweepInterval: time.Minute,
	ClockSkew:     5 * time.Minute,
}

type seriesKey struct {
	zoneID string
	metric models.MetricKind
}

// ReadingStore keeps readings in memory, one ascending series per
// (zone, metric). Series slices are never modified in place once published,
// so readers can iterate a snapshot without holding the lock.
type ReadingStore struct {
	cfg   Config
	known map[models.MetricKind]bool
	log   *logger.Logger
	now   func() time.Time

	mu         sync.RWMutex
	series     map[seriesKey][]models.SensorReading
	lastSensor map[string]time.Time
	count      int
}

func New(cfg Config, kinds []models.MetricKind, log *logger.Logger) *ReadingStore {
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultConfig.Retention
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultConfig.SweepInterval
	}
	if cfg.ClockSkew < 0 {
		cfg.ClockSkew = 0
	}
	if len(kinds) == 0 {
		kinds = models.AllMetrics
	}
	known := make(map[models.MetricKind]bool, len(kinds))
	for _, k := range kinds {
		known[k] = true
	}
	return &ReadingStore{
		cfg:        cfg,
		known:      known,
		log:        log,
		now:        time.Now,
		series:     make(map[seriesKey][]models.SensorReading),
		lastSensor: make(map[string]time.Time),
	}
}

// Validate checks a reading without storing it.
func (s *ReadingStore) Validate(r models.SensorReading) error {
	if strings.TrimSpace(r.SensorID) == "" || strings.TrimSpace(r.ZoneID) == "" {
		return models.Errorf(models.ErrInvalidReading, "sensor_id and zone_id are required")
	}
	if r.Timestamp.IsZero() {
		return models.Errorf(models.ErrInvalidReading, "timestamp is required")
	}
	if !s.known[r.Metric] {
		return models.Errorf(models.ErrInvalidMetric, "unknown metric kind %q", r.Metric)
	}
	if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
		return models.Errorf(models.ErrInvalidValue, "value for sensor %s is not finite", r.SensorID)
	}
	return nil
}

// Ingest validates and appends one reading. Readings more than ClockSkew
// behind the sensor's last accepted reading are rejected; later ones within
// the tolerance are placed in timestamp order.
func (s *ReadingStore) Ingest(r models.SensorReading) error {
	if err := s.Validate(r); err != nil {
		return err
	}
	if r.ReceivedAt.IsZero() {
		r.ReceivedAt = s.now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if last, ok := s.lastSensor[r.SensorID]; ok {
		if r.Timestamp.Before(last.Add(-s.cfg.ClockSkew)) {
			return models.Errorf(models.ErrStaleTimestamp,
				"reading for sensor %s at %s is older than last accepted %s",
				r.SensorID, r.Timestamp.Format(time.RFC3339), last.Format(time.RFC3339))
		}
		if r.Timestamp.After(last) {
			s.lastSensor[r.SensorID] = r.Timestamp
		}
	} else {
		s.lastSensor[r.SensorID] = r.Timestamp
	}

	key := seriesKey{zoneID: r.ZoneID, metric: r.Metric}
	cur := s.series[key]
	n := len(cur)
	if n == 0 || !r.Timestamp.Before(cur[n-1].Timestamp) {
		// appending past len never touches what earlier snapshots can see
		s.series[key] = append(cur, r)
	} else {
		i := sort.Search(n, func(i int) bool { return cur[i].Timestamp.After(r.Timestamp) })
		next := make([]models.SensorReading, 0, n+1)
		next = append(next, cur[:i]...)
		next = append(next, r)
		next = append(next, cur[i:]...)
		s.series[key] = next
	}
	s.count++
	return nil
}

// Latest returns the newest reading per metric kind for a zone. The map is
// empty when the zone has no readings or is unknown.
func (s *ReadingStore) Latest(zoneID string) map[models.MetricKind]models.SensorReading {
	out := make(map[models.MetricKind]models.SensorReading)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k := range s.known {
		if series := s.series[seriesKey{zoneID: zoneID, metric: k}]; len(series) > 0 {
			out[k] = series[len(series)-1]
		}
	}
	return out
}

// Window yields readings for one series with since <= timestamp <= until in
// ascending order. A zero until means no upper bound. The sequence ranges over
// a snapshot and can be iterated any number of times.
func (s *ReadingStore) Window(zoneID string, metric models.MetricKind, since, until time.Time) iter.Seq[models.SensorReading] {
	s.mu.RLock()
	snap := s.series[seriesKey{zoneID: zoneID, metric: metric}]
	s.mu.RUnlock()

	start := sort.Search(len(snap), func(i int) bool { return !snap[i].Timestamp.Before(since) })
	return func(yield func(models.SensorReading) bool) {
		for i := start; i < len(snap); i++ {
			if !until.IsZero() && snap[i].Timestamp.After(until) {
				return
			}
			if !yield(snap[i]) {
				return
			}
		}
	}
}

// Len returns the number of retained readings.
func (s *ReadingStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// Prune drops readings captured before now minus the retention window and
// returns how many were removed.
func (s *ReadingStore) Prune(now time.Time) int {
	cutoff := now.Add(-s.cfg.Retention)
	removed := 0

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, series := range s.series {
		i := sort.Search(len(series), func(i int) bool { return !series[i].Timestamp.Before(cutoff) })
		if i == 0 {
			continue
		}
		removed += i
		if i == len(series) {
			delete(s.series, key)
			continue
		}
		kept := make([]models.SensorReading, len(series)-i)
		copy(kept, series[i:])
		s.series[key] = kept
	}
	for sensor, last := range s.lastSensor {
		if last.Before(cutoff) {
			delete(s.lastSensor, sensor)
		}
	}
	s.count -= removed
	return removed
}

// Run sweeps expired readings every SweepInterval until ctx is cancelled.
func (s *ReadingStore) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Prune(s.now()); n > 0 && s.log != nil {
				s.log.Debug("Retention sweep removed %d readings", n)
			}
		}
	}
}
