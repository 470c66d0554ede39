package alerting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MineSafetyAPI/internal/logger"
	"MineSafetyAPI/internal/models"
)

type recordingNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
}

type notifyCall struct {
	alert     models.Alert
	escalated bool
}

func (n *recordingNotifier) AlertRaised(_ context.Context, a models.Alert, escalated bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notifyCall{alert: a, escalated: escalated})
}

func (n *recordingNotifier) Calls() []notifyCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notifyCall(nil), n.calls...)
}

type memStore struct {
	mu      sync.Mutex
	rows    map[string]models.Alert
	saveErr error
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]models.Alert)}
}

func (s *memStore) SaveAlert(_ context.Context, a *models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.rows[a.ID] = *a
	return nil
}

func (s *memStore) ListOpenAlerts(context.Context) ([]models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Alert
	for _, a := range s.rows {
		if a.Status.IsOpen() {
			out = append(out, a)
		}
	}
	return out, nil
}

func assessment(zone string, level models.RiskLevel, p float64) models.RiskAssessment {
	return models.RiskAssessment{ZoneID: zone, Level: level, Probability: p, ComputedAt: time.Now()}
}

func newTestManager(opts ...Option) (*Manager, *recordingNotifier) {
	n := &recordingNotifier{}
	seq := 0
	m := NewManager(models.DefaultAlertConfig, logger.NewNop(), append([]Option{WithNotifier(n)}, opts...)...)
	m.newID = func() string {
		seq++
		return fmt.Sprintf("alert-%d", seq)
	}
	return m, n
}

func openCount(m *Manager, zone string) int {
	return len(m.List(models.AlertFilter{ZoneID: zone, Open: true}))
}

func TestProcessCreatesAlertOnHighRisk(t *testing.T) {
	m, n := newTestManager()
	ctx := context.Background()

	a, err := m.Process(ctx, assessment("z1", models.RiskLow, 0.1))
	require.NoError(t, err)
	assert.Nil(t, a)

	a, err = m.Process(ctx, assessment("z1", models.RiskMedium, 0.5))
	require.NoError(t, err)
	assert.Nil(t, a, "medium is below the default minimum level")

	a, err = m.Process(ctx, assessment("z1", models.RiskHigh, 0.8))
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, models.SeverityWarning, a.Severity)
	assert.Equal(t, models.StatusActive, a.Status)
	assert.Equal(t, models.ClassRockfallRisk, a.Class)
	assert.Contains(t, a.Message, "HIGH rockfall risk (80%)")

	calls := n.Calls()
	require.Len(t, calls, 1)
	assert.False(t, calls[0].escalated)
}

func TestProcessDeduplicatesAndEscalates(t *testing.T) {
	m, n := newTestManager()
	ctx := context.Background()

	first, err := m.Process(ctx, assessment("z1", models.RiskHigh, 0.75))
	require.NoError(t, err)
	again, err := m.Process(ctx, assessment("z1", models.RiskHigh, 0.78))
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	_, err = m.Acknowledge(ctx, first.ID)
	require.NoError(t, err)

	crit := assessment("z1", models.RiskCritical, 0.95)
	crit.RedLines = []models.MetricKind{models.MetricGasConcentration}
	crit.Actions = []string{"Evacuate all workers immediately"}
	escalated, err := m.Process(ctx, crit)
	require.NoError(t, err)
	assert.Equal(t, first.ID, escalated.ID)
	assert.Equal(t, models.SeverityCritical, escalated.Severity)
	assert.Equal(t, models.StatusActive, escalated.Status)
	assert.Equal(t, 1, escalated.Escalations)
	assert.Contains(t, escalated.Message, "gas_concentration")
	assert.Contains(t, escalated.Message, "Evacuate")

	// no de-escalation
	same, err := m.Process(ctx, assessment("z1", models.RiskHigh, 0.72))
	require.NoError(t, err)
	assert.Equal(t, models.SeverityCritical, same.Severity)

	assert.Equal(t, 1, openCount(m, "z1"))
	calls := n.Calls()
	require.Len(t, calls, 2)
	assert.True(t, calls[1].escalated)
}

func TestAutoResolveAfterConsecutiveLows(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	a, err := m.Process(ctx, assessment("z1", models.RiskCritical, 0.9))
	require.NoError(t, err)

	// two lows, then a blip, then two lows: never three in a row
	for _, lvl := range []models.RiskLevel{models.RiskLow, models.RiskLow, models.RiskMedium, models.RiskLow, models.RiskLow} {
		_, err := m.Process(ctx, assessment("z1", lvl, 0.1))
		require.NoError(t, err)
	}
	got, err := m.Get(a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, got.Status)

	open, err := m.Process(ctx, assessment("z1", models.RiskLow, 0.1))
	require.NoError(t, err)
	assert.Nil(t, open)

	got, err = m.Get(a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, got.Status)
	assert.NotNil(t, got.ResolvedAt)
	assert.Contains(t, got.ResolveReason, "3 consecutive")
}

func TestAutoResolveExactlyThree(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	a, err := m.Process(ctx, assessment("z1", models.RiskCritical, 0.9))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := m.Process(ctx, assessment("z1", models.RiskLow, 0.05))
		require.NoError(t, err)
	}
	assert.False(t, m.IsResolved(a.ID))

	_, err = m.Process(ctx, assessment("z1", models.RiskLow, 0.05))
	require.NoError(t, err)
	assert.True(t, m.IsResolved(a.ID))
}

func TestResolvedAlertIsNeverReopened(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	first, err := m.Process(ctx, assessment("z1", models.RiskHigh, 0.8))
	require.NoError(t, err)
	_, err = m.Resolve(ctx, first.ID, "slope stabilised")
	require.NoError(t, err)

	second, err := m.Process(ctx, assessment("z1", models.RiskHigh, 0.8))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	old, err := m.Get(first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, old.Status)
	assert.Equal(t, "slope stabilised", old.ResolveReason)
	assert.Equal(t, 1, openCount(m, "z1"))
}

func TestOperatorTransitions(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	a, err := m.Process(ctx, assessment("z1", models.RiskHigh, 0.8))
	require.NoError(t, err)

	_, err = m.SetMonitoring(ctx, a.ID)
	assert.True(t, errors.Is(err, models.ErrIllegalTransition))

	acked, err := m.Acknowledge(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAcknowledged, acked.Status)
	assert.NotNil(t, acked.AcknowledgedAt)

	_, err = m.Acknowledge(ctx, a.ID)
	assert.True(t, errors.Is(err, models.ErrIllegalTransition))

	mon, err := m.SetMonitoring(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusMonitoring, mon.Status)

	res, err := m.Resolve(ctx, a.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, res.Status)
	assert.Equal(t, "resolved by operator", res.ResolveReason)

	_, err = m.Resolve(ctx, a.ID, "again")
	assert.True(t, errors.Is(err, models.ErrAlertAlreadyResolved))
	assert.Equal(t, models.KindStateConflict, models.KindOf(err))

	_, err = m.Acknowledge(ctx, "missing")
	assert.True(t, errors.Is(err, models.ErrAlertNotFound))
}

func TestMinLevelMedium(t *testing.T) {
	m := NewManager(models.AlertConfig{MinLevel: models.RiskMedium, AutoResolveAfter: 3}, logger.NewNop())
	a, err := m.Process(context.Background(), assessment("z1", models.RiskMedium, 0.4))
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, models.SeverityWarning, a.Severity)
}

func TestPersistFailureLeavesStateUntouched(t *testing.T) {
	store := newMemStore()
	store.saveErr = errors.New("db down")
	m, n := newTestManager(WithStore(store))

	_, err := m.Process(context.Background(), assessment("z1", models.RiskHigh, 0.8))
	assert.ErrorContains(t, err, "db down")
	assert.Equal(t, 0, openCount(m, "z1"))
	assert.Empty(t, n.Calls())
}

func TestRestoreOpenAlerts(t *testing.T) {
	store := newMemStore()
	m, _ := newTestManager(WithStore(store))
	ctx := context.Background()

	a, err := m.Process(ctx, assessment("z1", models.RiskHigh, 0.8))
	require.NoError(t, err)
	b, err := m.Process(ctx, assessment("z2", models.RiskCritical, 0.9))
	require.NoError(t, err)
	_, err = m.Resolve(ctx, b.ID, "done")
	require.NoError(t, err)

	restarted, _ := newTestManager(WithStore(store))
	n, err := restarted.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	open, ok := restarted.OpenFor(models.AlertKey{ZoneID: "z1", Class: models.ClassRockfallRisk})
	require.True(t, ok)
	assert.Equal(t, a.ID, open.ID)

	// the restored alert keeps deduplicating
	again, err := restarted.Process(ctx, assessment("z1", models.RiskHigh, 0.85))
	require.NoError(t, err)
	assert.Equal(t, a.ID, again.ID)
}

func TestSubscribeReceivesTransitions(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()
	events, cancel := m.Subscribe(8)

	a, err := m.Process(ctx, assessment("z1", models.RiskHigh, 0.8))
	require.NoError(t, err)
	_, err = m.Acknowledge(ctx, a.ID)
	require.NoError(t, err)

	ev := <-events
	assert.Equal(t, EventCreated, ev.Type)
	assert.Equal(t, a.ID, ev.Alert.ID)
	ev = <-events
	assert.Equal(t, EventAcknowledged, ev.Type)
	assert.Equal(t, models.StatusAcknowledged, ev.Alert.Status)

	cancel()
	cancel()
	_, ok := <-events
	assert.False(t, ok)
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	m, _ := newTestManager()
	_, cancel := m.Subscribe(1)
	defer cancel()

	for i := 0; i < 5; i++ {
		_, err := m.Process(context.Background(), assessment(fmt.Sprintf("z%d", i), models.RiskHigh, 0.8))
		require.NoError(t, err)
	}
	assert.Len(t, m.List(models.AlertFilter{Open: true}), 5)
}

func TestConcurrentProcessKeepsOneOpenAlert(t *testing.T) {
	m := NewManager(models.DefaultAlertConfig, logger.NewNop())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			lvl := models.RiskHigh
			if i%3 == 0 {
				lvl = models.RiskCritical
			}
			_, _ = m.Process(ctx, assessment(fmt.Sprintf("z%d", i%4), lvl, 0.8))
		}(i)
	}
	wg.Wait()

	for z := 0; z < 4; z++ {
		assert.Equal(t, 1, openCount(m, fmt.Sprintf("z%d", z)))
	}
}

func TestMetricWindow(t *testing.T) {
	w := NewMetricWindow(0)
	assert.False(t, w.IsConsistentlyBelow(1))
	w.Push(0)
	assert.True(t, w.IsConsistentlyBelow(1))
	w.Push(1)
	assert.False(t, w.IsConsistentlyBelow(1))
	w.Reset()
	assert.False(t, w.IsConsistentlyBelow(1))
}
