package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"MineSafetyAPI/internal/alerting"
	"MineSafetyAPI/internal/logger"
	"MineSafetyAPI/internal/metrics"
	"MineSafetyAPI/internal/models"
	"MineSafetyAPI/internal/notify"
	"MineSafetyAPI/internal/risk"
	"MineSafetyAPI/internal/store"
	"MineSafetyAPI/internal/zones"
)

// ReadingLog is the durable write-through copy of accepted readings.
type ReadingLog interface {
	Insert(ctx context.Context, reading *models.SensorReading) error
}

// Siren drives the on-site sirens.
type Siren interface {
	SoundSiren(alert models.Alert) error
	SilenceSiren(alert models.Alert) error
}

// Cache mirrors assessments and open alerts for external readers.
type Cache interface {
	SetAssessment(ctx context.Context, a models.RiskAssessment) error
	GetAssessment(ctx context.Context, zoneID string) (*models.RiskAssessment, error)
	SyncAlert(ctx context.Context, alert models.Alert) error
}

// RecipientResolver expands an alert into its notification targets.
type RecipientResolver interface {
	Resolve(alert models.Alert) []models.Recipient
}

type Config struct {
	EvaluationInterval time.Duration
	Concurrency        int
}

var DefaultConfig = Config{
	EvaluationInterval: 30 * time.Second,
	Concurrency:        8,
}

// Deps are the components the engine orchestrates.
type Deps struct {
	Zones      *zones.Registry
	Store      *store.ReadingStore
	Evaluator  *risk.Evaluator
	Alerts     *alerting.Manager
	Dispatcher *notify.Dispatcher
	Recipients RecipientResolver
}

// Engine connects ingestion, evaluation, alerting and notification.
type Engine struct {
	cfg        Config
	zones      *zones.Registry
	store      *store.ReadingStore
	evaluator  *risk.Evaluator
	alerts     *alerting.Manager
	dispatcher *notify.Dispatcher
	recipients RecipientResolver
	log        *logger.Logger

	readingLog ReadingLog
	siren      Siren
	cache      Cache

	mu     sync.RWMutex
	latest map[string]models.RiskAssessment

	dispatchCtx    context.Context
	cancelDispatch context.CancelFunc
	inflight       sync.WaitGroup
	closeMu        sync.Mutex
	closing        bool
}

type Option func(*Engine)

func WithReadingLog(l ReadingLog) Option {
	return func(e *Engine) { e.readingLog = l }
}

func WithSiren(s Siren) Option {
	return func(e *Engine) { e.siren = s }
}

func WithCache(c Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// New builds the engine and registers it as the alert manager's notifier.
func New(cfg Config, deps Deps, log *logger.Logger, opts ...Option) *Engine {
	if cfg.EvaluationInterval <= 0 {
		cfg.EvaluationInterval = DefaultConfig.EvaluationInterval
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = DefaultConfig.Concurrency
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:            cfg,
		zones:          deps.Zones,
		store:          deps.Store,
		evaluator:      deps.Evaluator,
		alerts:         deps.Alerts,
		dispatcher:     deps.Dispatcher,
		recipients:     deps.Recipients,
		log:            log,
		latest:         make(map[string]models.RiskAssessment),
		dispatchCtx:    ctx,
		cancelDispatch: cancel,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.alerts.SetNotifier(e)
	return e
}

// Ingest accepts one reading. A reading that crosses a red-line triggers an
// immediate evaluation of its zone instead of waiting for the next tick.
func (e *Engine) Ingest(ctx context.Context, r models.SensorReading) error {
	if !e.zones.Exists(r.ZoneID) {
		err := models.Errorf(models.ErrUnknownZone, "zone %q is not registered", r.ZoneID)
		metrics.ReadingsRejected.WithLabelValues(err.Code).Inc()
		return err
	}

	if err := e.store.Ingest(r); err != nil {
		metrics.ReadingsRejected.WithLabelValues(errorCode(err)).Inc()
		return err
	}
	metrics.ReadingsIngested.WithLabelValues(string(r.Metric)).Inc()
	metrics.ReadingsStored.Set(float64(e.store.Len()))

	if e.readingLog != nil {
		if err := e.readingLog.Insert(ctx, &r); err != nil {
			e.log.Warn("Reading log write failed for %s/%s: %v", r.ZoneID, r.SensorID, err)
		}
	}

	if e.evaluator.Policy().IsRedLine(r) {
		e.log.Warn("Red-line crossed in zone %s: %s=%.2f%s", r.ZoneID, r.Metric, r.Value, r.Unit)
		if _, _, err := e.EvaluateZone(ctx, r.ZoneID); err != nil {
			e.log.Error("Immediate evaluation of zone %s failed: %v", r.ZoneID, err)
		}
	}
	return nil
}

func errorCode(err error) string {
	var me *models.Error
	if errors.As(err, &me) {
		return me.Code
	}
	return "INTERNAL"
}

// EvaluateZone computes a fresh assessment and applies it to the zone's
// alert. The returned alert is nil when the zone has no open alert.
func (e *Engine) EvaluateZone(ctx context.Context, zoneID string) (models.RiskAssessment, *models.Alert, error) {
	a, err := e.evaluator.Evaluate(ctx, zoneID)
	if err != nil {
		metrics.EvaluationFailures.Inc()
		return models.RiskAssessment{}, nil, err
	}
	metrics.ObserveAssessment(a)

	e.mu.Lock()
	e.latest[zoneID] = a
	e.mu.Unlock()

	if e.cache != nil {
		if err := e.cache.SetAssessment(ctx, a); err != nil {
			e.log.Warn("Caching assessment for zone %s failed: %v", zoneID, err)
		}
	}

	alert, err := e.alerts.Process(ctx, a)
	if err != nil {
		return a, nil, fmt.Errorf("apply assessment for zone %s: %w", zoneID, err)
	}
	return a, alert, nil
}

// EvaluateAll evaluates every zone with bounded concurrency. A failing zone
// is logged and skipped; the others still complete.
func (e *Engine) EvaluateAll(ctx context.Context) []models.RiskAssessment {
	start := time.Now()
	ids := e.zones.IDs()

	var (
		g   errgroup.Group
		mu  sync.Mutex
		out = make([]models.RiskAssessment, 0, len(ids))
	)
	g.SetLimit(e.cfg.Concurrency)

	for _, id := range ids {
		g.Go(func() error {
			a, _, err := e.EvaluateZone(ctx, id)
			if err != nil {
				e.log.Error("Evaluation of zone %s failed: %v", id, err)
				return nil
			}
			mu.Lock()
			out = append(out, a)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	metrics.EvaluationDuration.Observe(time.Since(start).Seconds())
	sort.Slice(out, func(i, j int) bool { return out[i].ZoneID < out[j].ZoneID })
	return out
}

// Assess computes the zone's current assessment without touching alerts.
func (e *Engine) Assess(ctx context.Context, zoneID string) (models.RiskAssessment, error) {
	return e.evaluator.Evaluate(ctx, zoneID)
}

// Latest returns the most recent assessment computed for a zone.
func (e *Engine) Latest(zoneID string) (models.RiskAssessment, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.latest[zoneID]
	return a, ok
}

func (e *Engine) LatestAll() []models.RiskAssessment {
	e.mu.RLock()
	out := make([]models.RiskAssessment, 0, len(e.latest))
	for _, a := range e.latest {
		out = append(out, a)
	}
	e.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ZoneID < out[j].ZoneID })
	return out
}

// Run evaluates all zones every interval and keeps side channels in step
// with alert changes until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	events, cancel := e.alerts.Subscribe(128)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.followAlerts(ctx, events)
	}()

	e.log.Info("Risk engine started (interval %v, %d zones)", e.cfg.EvaluationInterval, len(e.zones.IDs()))

	ticker := time.NewTicker(e.cfg.EvaluationInterval)
	defer ticker.Stop()

	e.EvaluateAll(ctx)
	for {
		select {
		case <-ctx.Done():
			e.log.Info("Risk engine stopping")
			cancel()
			wg.Wait()
			return
		case <-ticker.C:
			e.EvaluateAll(ctx)
		}
	}
}

func (e *Engine) followAlerts(ctx context.Context, events <-chan alerting.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			metrics.ObserveAlert(string(ev.Type), ev.Alert)
			if e.cache != nil {
				if err := e.cache.SyncAlert(ctx, ev.Alert); err != nil {
					e.log.Warn("Syncing alert %s to cache failed: %v", ev.Alert.ID, err)
				}
			}
			if ev.Type == alerting.EventResolved && ev.Alert.Severity == models.SeverityCritical && e.siren != nil {
				if err := e.siren.SilenceSiren(ev.Alert); err != nil {
					e.log.Warn("Silencing siren for zone %s failed: %v", ev.Alert.ZoneID, err)
				}
			}
		}
	}
}

// AlertRaised fans a new or escalated alert out to its recipients and sounds
// the zone siren for critical alerts. It is called with the alert's zone
// locked, so both run in the background.
func (e *Engine) AlertRaised(_ context.Context, alert models.Alert, escalated bool) {
	sound := alert.Severity == models.SeverityCritical && e.siren != nil
	recipients := e.recipients.Resolve(alert)
	if len(recipients) == 0 {
		e.log.Warn("No recipients configured for %s alert %s in zone %s", alert.Severity, alert.ID, alert.ZoneID)
		if !sound {
			return
		}
	}

	if !e.track() {
		e.log.Warn("Engine shutting down, alert %s in zone %s not dispatched", alert.ID, alert.ZoneID)
		return
	}
	go func() {
		defer e.inflight.Done()
		if sound {
			if err := e.siren.SoundSiren(alert); err != nil {
				e.log.Error("Sounding siren for zone %s failed: %v", alert.ZoneID, err)
			}
		}
		if len(recipients) == 0 {
			return
		}
		jobs := e.dispatcher.Dispatch(e.dispatchCtx, alert, recipients)
		sent := 0
		for _, j := range jobs {
			if j.Status == models.JobSent || j.Status == models.JobDelivered {
				sent++
			}
		}
		e.log.Info("Alert %s (escalated=%t): %d/%d notifications sent", alert.ID, escalated, sent, len(jobs))
	}()
}

// track registers background work unless Shutdown has started.
func (e *Engine) track() bool {
	e.closeMu.Lock()
	defer e.closeMu.Unlock()
	if e.closing {
		return false
	}
	e.inflight.Add(1)
	return true
}

// Restore reloads open alerts and the notification audit trail.
func (e *Engine) Restore(ctx context.Context) error {
	alerts, err := e.alerts.Restore(ctx)
	if err != nil {
		return err
	}
	metrics.OpenAlerts.Set(float64(alerts))

	jobs, err := e.dispatcher.Restore(ctx)
	if err != nil {
		return err
	}
	e.log.Info("Restored %d open alerts and %d notification jobs", alerts, jobs)

	if e.cache != nil {
		e.warmLatest(ctx)
	}
	return nil
}

// warmLatest seeds the last-assessment view from the cache so risk queries
// answer before the first tick. Cache errors only cost the warm start.
func (e *Engine) warmLatest(ctx context.Context) {
	warmed := 0
	for _, id := range e.zones.IDs() {
		a, err := e.cache.GetAssessment(ctx, id)
		if err != nil {
			e.log.Warn("Cached assessment for zone %s unavailable: %v", id, err)
			continue
		}
		if a == nil {
			continue
		}
		e.mu.Lock()
		if _, ok := e.latest[id]; !ok {
			e.latest[id] = *a
			warmed++
		}
		e.mu.Unlock()
	}
	if warmed > 0 {
		e.log.Info("Warmed %d zone assessments from cache", warmed)
	}
}

// Shutdown waits for in-flight dispatches. When ctx expires first the
// remaining deliveries are cancelled. Alerts raised afterwards are not
// dispatched.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.closeMu.Lock()
	e.closing = true
	e.closeMu.Unlock()

	done := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.cancelDispatch()
		return nil
	case <-ctx.Done():
		e.cancelDispatch()
		<-done
		return ctx.Err()
	}
}
