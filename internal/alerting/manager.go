package alerting

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"MineSafetyAPI/internal/logger"
	"MineSafetyAPI/internal/models"
)

// Notifier is told about every new or escalated alert.
type Notifier interface {
	AlertRaised(ctx context.Context, alert models.Alert, escalated bool)
}

// AlertStore persists alert rows so history survives a restart.
type AlertStore interface {
	SaveAlert(ctx context.Context, alert *models.Alert) error
	ListOpenAlerts(ctx context.Context) ([]models.Alert, error)
}

// Manager owns alert state. Transitions for one AlertKey are serialized;
// different keys proceed concurrently.
type Manager struct {
	cfg      models.AlertConfig
	store    AlertStore
	notifier Notifier
	log      *logger.Logger
	now      func() time.Time
	newID    func() string

	mu     sync.RWMutex
	alerts map[string]*models.Alert
	open   map[models.AlertKey]string
	lows   map[models.AlertKey]*MetricWindow
	locks  map[models.AlertKey]*sync.Mutex

	subs *subscribers
}

type Option func(*Manager)

func WithStore(s AlertStore) Option {
	return func(m *Manager) { m.store = s }
}

func WithNotifier(n Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(cfg models.AlertConfig, log *logger.Logger, opts ...Option) *Manager {
	if cfg.AutoResolveAfter < 1 {
		cfg.AutoResolveAfter = models.DefaultAlertConfig.AutoResolveAfter
	}
	if cfg.MinLevel == "" || cfg.MinLevel == models.RiskLow {
		cfg.MinLevel = models.DefaultAlertConfig.MinLevel
	}
	m := &Manager{
		cfg:    cfg,
		log:    log,
		now:    time.Now,
		newID:  uuid.NewString,
		alerts: make(map[string]*models.Alert),
		open:   make(map[models.AlertKey]string),
		lows:   make(map[models.AlertKey]*MetricWindow),
		locks:  make(map[models.AlertKey]*sync.Mutex),
		subs:   newSubscribers(log),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetNotifier wires the notifier after construction, for callers that
// themselves depend on the manager.
func (m *Manager) SetNotifier(n Notifier) {
	m.mu.Lock()
	m.notifier = n
	m.mu.Unlock()
}

func (m *Manager) keyLock(key models.AlertKey) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	return l
}

func (m *Manager) severityFor(level models.RiskLevel) (models.Severity, bool) {
	switch {
	case level == models.RiskCritical:
		return models.SeverityCritical, true
	case level.AtLeast(m.cfg.MinLevel):
		return models.SeverityWarning, true
	default:
		return "", false
	}
}

// Process applies one assessment to the alert of its zone. It returns the
// open alert for the zone after the transition, or nil when there is none.
func (m *Manager) Process(ctx context.Context, a models.RiskAssessment) (*models.Alert, error) {
	key := models.AlertKey{ZoneID: a.ZoneID, Class: models.ClassRockfallRisk}
	lock := m.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	window, ok := m.lows[key]
	if !ok {
		window = NewMetricWindow(m.cfg.AutoResolveAfter)
		m.lows[key] = window
	}
	if a.Level == models.RiskLow {
		window.Push(0)
	} else {
		window.Push(1)
	}
	resolvable := window.IsConsistentlyBelow(1)
	var current *models.Alert
	if id, ok := m.open[key]; ok {
		cp := *m.alerts[id]
		current = &cp
	}
	m.mu.Unlock()

	severity, raise := m.severityFor(a.Level)

	switch {
	case current == nil && raise:
		return m.create(ctx, key, a, severity)
	case current == nil:
		return nil, nil
	case resolvable:
		reason := fmt.Sprintf("auto-resolved after %d consecutive low-risk evaluations", m.cfg.AutoResolveAfter)
		if _, err := m.resolveLocked(ctx, current, reason); err != nil {
			return nil, err
		}
		return nil, nil
	case raise && severity.Rank() > current.Severity.Rank():
		return m.escalate(ctx, current, a, severity)
	default:
		return current, nil
	}
}

func (m *Manager) create(ctx context.Context, key models.AlertKey, a models.RiskAssessment, severity models.Severity) (*models.Alert, error) {
	now := m.now().UTC()
	alert := &models.Alert{
		ID:          m.newID(),
		ZoneID:      key.ZoneID,
		Class:       key.Class,
		Severity:    severity,
		Message:     describe(a),
		Probability: a.Probability,
		RiskLevel:   a.Level,
		Status:      models.StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.persist(ctx, alert); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.alerts[alert.ID] = alert
	m.open[key] = alert.ID
	notifier := m.notifier
	m.mu.Unlock()

	m.log.Warn("Alert %s opened for zone %s: %s (p=%.2f)", alert.ID, alert.ZoneID, alert.Severity, alert.Probability)
	out := *alert
	m.subs.publish(Event{Type: EventCreated, Alert: out, At: now})
	if notifier != nil {
		notifier.AlertRaised(ctx, out, false)
	}
	return &out, nil
}

func (m *Manager) escalate(ctx context.Context, current *models.Alert, a models.RiskAssessment, severity models.Severity) (*models.Alert, error) {
	now := m.now().UTC()
	next := *current
	next.Severity = severity
	next.Message = describe(a)
	next.Probability = a.Probability
	next.RiskLevel = a.Level
	next.Status = models.StatusActive
	next.Escalations++
	next.UpdatedAt = now

	if err := m.persist(ctx, &next); err != nil {
		return nil, err
	}
	m.commit(&next)

	m.mu.RLock()
	notifier := m.notifier
	m.mu.RUnlock()

	m.log.Warn("Alert %s escalated to %s for zone %s (p=%.2f)", next.ID, next.Severity, next.ZoneID, next.Probability)
	m.subs.publish(Event{Type: EventEscalated, Alert: next, At: now})
	if notifier != nil {
		notifier.AlertRaised(ctx, next, true)
	}
	out := next
	return &out, nil
}

func (m *Manager) persist(ctx context.Context, alert *models.Alert) error {
	if m.store == nil {
		return nil
	}
	if err := m.store.SaveAlert(ctx, alert); err != nil {
		return fmt.Errorf("failed to persist alert %s: %w", alert.ID, err)
	}
	return nil
}

// commit stores a new version of an existing alert and keeps the open index
// in step with its status.
func (m *Manager) commit(alert *models.Alert) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts[alert.ID] = alert
	key := alert.Key()
	if alert.Status == models.StatusResolved {
		if m.open[key] == alert.ID {
			delete(m.open, key)
		}
		if w, ok := m.lows[key]; ok {
			w.Reset()
		}
		return
	}
	m.open[key] = alert.ID
}

func describe(a models.RiskAssessment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s rockfall risk (%.0f%%)", strings.ToUpper(string(a.Level)), a.Probability*100)
	if len(a.RedLines) > 0 {
		names := make([]string, len(a.RedLines))
		for i, k := range a.RedLines {
			names[i] = string(k)
		}
		fmt.Fprintf(&b, ", safety limit exceeded: %s", strings.Join(names, ", "))
	}
	if len(a.Actions) > 0 {
		fmt.Fprintf(&b, ". %s", a.Actions[0])
	}
	return b.String()
}

// Acknowledge moves an active alert to acknowledged.
func (m *Manager) Acknowledge(ctx context.Context, id string) (models.Alert, error) {
	return m.transition(ctx, id, func(a *models.Alert, now time.Time) error {
		if a.Status != models.StatusActive {
			return models.Errorf(models.ErrIllegalTransition, "cannot acknowledge alert in status %s", a.Status)
		}
		a.Status = models.StatusAcknowledged
		a.AcknowledgedAt = &now
		return nil
	}, EventAcknowledged)
}

// SetMonitoring moves an acknowledged alert to monitoring.
func (m *Manager) SetMonitoring(ctx context.Context, id string) (models.Alert, error) {
	return m.transition(ctx, id, func(a *models.Alert, _ time.Time) error {
		if a.Status != models.StatusAcknowledged {
			return models.Errorf(models.ErrIllegalTransition, "cannot set monitoring on alert in status %s", a.Status)
		}
		a.Status = models.StatusMonitoring
		return nil
	}, EventMonitoring)
}

// Resolve closes an open alert. The zone's slot is freed; the next
// qualifying assessment opens a new alert.
func (m *Manager) Resolve(ctx context.Context, id, reason string) (models.Alert, error) {
	if strings.TrimSpace(reason) == "" {
		reason = "resolved by operator"
	}
	return m.transition(ctx, id, func(a *models.Alert, now time.Time) error {
		a.Status = models.StatusResolved
		a.ResolvedAt = &now
		a.ResolveReason = reason
		return nil
	}, EventResolved)
}

func (m *Manager) transition(ctx context.Context, id string, apply func(*models.Alert, time.Time) error, ev EventType) (models.Alert, error) {
	m.mu.RLock()
	a, ok := m.alerts[id]
	m.mu.RUnlock()
	if !ok {
		return models.Alert{}, models.Errorf(models.ErrAlertNotFound, "alert %s not found", id)
	}

	lock := m.keyLock(a.Key())
	lock.Lock()
	defer lock.Unlock()

	// re-read under the key lock
	m.mu.RLock()
	next := *m.alerts[id]
	m.mu.RUnlock()
	if next.Status == models.StatusResolved {
		return models.Alert{}, models.Errorf(models.ErrAlertAlreadyResolved, "alert %s is already resolved", id)
	}

	now := m.now().UTC()
	if err := apply(&next, now); err != nil {
		return models.Alert{}, err
	}
	next.UpdatedAt = now

	if err := m.persist(ctx, &next); err != nil {
		return models.Alert{}, err
	}
	m.commit(&next)

	m.log.Info("Alert %s -> %s", next.ID, next.Status)
	m.subs.publish(Event{Type: ev, Alert: next, At: now})
	return next, nil
}

// resolveLocked resolves current; the caller holds its key lock.
func (m *Manager) resolveLocked(ctx context.Context, current *models.Alert, reason string) (models.Alert, error) {
	now := m.now().UTC()
	next := *current
	next.Status = models.StatusResolved
	next.ResolvedAt = &now
	next.ResolveReason = reason
	next.UpdatedAt = now

	if err := m.persist(ctx, &next); err != nil {
		return models.Alert{}, err
	}
	m.commit(&next)

	m.log.Info("Alert %s auto-resolved for zone %s", next.ID, next.ZoneID)
	m.subs.publish(Event{Type: EventResolved, Alert: next, At: now})
	return next, nil
}

func (m *Manager) Get(id string) (models.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.alerts[id]
	if !ok {
		return models.Alert{}, models.Errorf(models.ErrAlertNotFound, "alert %s not found", id)
	}
	return *a, nil
}

// IsResolved reports whether the alert is resolved or unknown.
func (m *Manager) IsResolved(id string) bool {
	a, err := m.Get(id)
	return err != nil || a.Status == models.StatusResolved
}

// List returns alerts matching f, newest first.
func (m *Manager) List(f models.AlertFilter) []models.Alert {
	m.mu.RLock()
	out := make([]models.Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		if f.ZoneID != "" && a.ZoneID != f.ZoneID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.Open && !a.Status.IsOpen() {
			continue
		}
		out = append(out, *a)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// OpenFor returns the open alert for key, if any.
func (m *Manager) OpenFor(key models.AlertKey) (models.Alert, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.open[key]
	if !ok {
		return models.Alert{}, false
	}
	return *m.alerts[id], true
}

// Restore loads open alerts from the store. When the store holds more than
// one open alert for a key the newest wins.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	if m.store == nil {
		return 0, nil
	}
	open, err := m.store.ListOpenAlerts(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to restore open alerts: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range open {
		a := open[i]
		key := a.Key()
		if prev, ok := m.open[key]; ok && m.alerts[prev].CreatedAt.After(a.CreatedAt) {
			m.log.Warn("Skipping duplicate open alert %s for zone %s", a.ID, a.ZoneID)
			continue
		}
		m.alerts[a.ID] = &a
		m.open[key] = a.ID
	}
	return len(m.open), nil
}

// Subscribe returns a channel of alert changes and a cancel func. Slow
// subscribers miss events rather than block transitions.
func (m *Manager) Subscribe(buffer int) (<-chan Event, func()) {
	return m.subs.add(buffer)
}
