package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"MineSafetyAPI/internal/logger"
	"MineSafetyAPI/internal/models"
)

// Sender delivers one message on one channel. Implementations report
// failures through the result; a zero result is a transient failure.
type Sender interface {
	Send(ctx context.Context, channel models.Channel, recipient models.Recipient, message string) models.DeliveryResult
}

// AlertStatus lets the dispatcher abandon jobs for alerts resolved meanwhile.
type AlertStatus interface {
	IsResolved(alertID string) bool
}

type JobStore interface {
	SaveJob(ctx context.Context, job *models.NotificationJob) error
	ListJobs(ctx context.Context) ([]models.NotificationJob, error)
}

// Observer receives delivery outcomes, typically for metrics.
type Observer interface {
	ObserveAttempt(channel models.Channel, delivered bool, took time.Duration)
	ObserveJob(job models.NotificationJob)
}

type Config struct {
	// MaxRetries bounds the total number of attempts per job.
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	SendTimeout time.Duration
	// RatePerSecond and Burst limit sends per channel. Zero means unlimited.
	RatePerSecond float64
	Burst         int
	// BreakerThreshold opens a channel's breaker after that many consecutive
	// transient failures. Zero disables the breaker.
	BreakerThreshold uint32
	BreakerTimeout   time.Duration
}

var DefaultConfig = Config{
	MaxRetries:       3,
	BaseBackoff:      2 * time.Second,
	MaxBackoff:       time.Minute,
	SendTimeout:      10 * time.Second,
	RatePerSecond:    5,
	Burst:            10,
	BreakerThreshold: 5,
	BreakerTimeout:   30 * time.Second,
}

// jobKey identifies one message version for one recipient. An escalation
// is a new version.
type jobKey struct {
	alertID    string
	channel    models.Channel
	recipient  string
	escalation int
}

var errPermanent = errors.New("permanent delivery failure")

// Dispatcher fans alerts out to recipients with retry and keeps every job
// for audit.
type Dispatcher struct {
	cfg      Config
	sender   Sender
	alerts   AlertStatus
	store    JobStore
	observer Observer
	zoneName func(string) string
	log      *logger.Logger

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
	newID func() string

	mu         sync.RWMutex
	jobs       map[string]*models.NotificationJob
	byAlert    map[string][]string
	inflight   map[jobKey]string
	superseded map[string]bool
	limiters   map[models.Channel]*rate.Limiter
	breakers   map[models.Channel]*gobreaker.CircuitBreaker
}

type Option func(*Dispatcher)

func WithAlertStatus(a AlertStatus) Option {
	return func(d *Dispatcher) { d.alerts = a }
}

func WithJobStore(s JobStore) Option {
	return func(d *Dispatcher) { d.store = s }
}

func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

func WithZoneNames(fn func(zoneID string) string) Option {
	return func(d *Dispatcher) { d.zoneName = fn }
}

func NewDispatcher(cfg Config, sender Sender, log *logger.Logger, opts ...Option) *Dispatcher {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = DefaultConfig.MaxRetries
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultConfig.SendTimeout
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultConfig.MaxBackoff
	}
	d := &Dispatcher{
		cfg:        cfg,
		sender:     sender,
		log:        log,
		sleep:      sleepContext,
		now:        time.Now,
		newID:      uuid.NewString,
		jobs:       make(map[string]*models.NotificationJob),
		byAlert:    make(map[string][]string),
		inflight:   make(map[jobKey]string),
		superseded: make(map[string]bool),
		limiters:   make(map[models.Channel]*rate.Limiter),
		breakers:   make(map[models.Channel]*gobreaker.CircuitBreaker),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Backoff returns the wait after the given failed attempt.
func (d *Dispatcher) Backoff(attempt int) time.Duration {
	if attempt < 1 || d.cfg.BaseBackoff <= 0 {
		return 0
	}
	b := d.cfg.BaseBackoff
	for i := 1; i < attempt; i++ {
		b *= 2
		if b >= d.cfg.MaxBackoff {
			return d.cfg.MaxBackoff
		}
	}
	if b > d.cfg.MaxBackoff {
		return d.cfg.MaxBackoff
	}
	return b
}

// Dispatch creates one job per (channel, recipient) and delivers them
// concurrently, returning once every job reached a terminal status.
// Recipients that already have a job in flight for this version of the alert
// are skipped. Jobs still retrying an earlier version are superseded and stop
// before their next attempt.
func (d *Dispatcher) Dispatch(ctx context.Context, alert models.Alert, recipients []models.Recipient) []models.NotificationJob {
	name := alert.ZoneID
	if d.zoneName != nil {
		name = d.zoneName(alert.ZoneID)
	}
	message := ComposeMessage(alert, name)

	var started []*models.NotificationJob
	keys := make(map[string]jobKey)
	now := d.now().UTC()

	d.mu.Lock()
	for _, r := range recipients {
		key := jobKey{alertID: alert.ID, channel: r.Channel, recipient: r.Address, escalation: alert.Escalations}
		if _, busy := d.inflight[key]; busy {
			d.log.Debug("Skipping duplicate %s job for alert %s to %s", r.Channel, alert.ID, r.Address)
			continue
		}
		for e := 0; e < alert.Escalations; e++ {
			older := key
			older.escalation = e
			if id, ok := d.inflight[older]; ok {
				d.superseded[id] = true
			}
		}
		job := &models.NotificationJob{
			ID:            d.newID(),
			AlertID:       alert.ID,
			Channel:       r.Channel,
			Recipient:     r.Address,
			RecipientName: r.Name,
			Message:       message,
			Status:        models.JobPending,
			CreatedAt:     now,
		}
		d.jobs[job.ID] = job
		d.byAlert[alert.ID] = append(d.byAlert[alert.ID], job.ID)
		d.inflight[key] = job.ID
		keys[job.ID] = key
		started = append(started, job)
	}
	d.mu.Unlock()

	var wg sync.WaitGroup
	for _, job := range started {
		d.save(ctx, *job)
		wg.Add(1)
		go func(job *models.NotificationJob, r models.Recipient) {
			defer wg.Done()
			d.run(ctx, job.ID, keys[job.ID], r)
		}(job, models.Recipient{Name: job.RecipientName, Channel: job.Channel, Address: job.Recipient})
	}
	wg.Wait()

	out := make([]models.NotificationJob, 0, len(started))
	d.mu.RLock()
	for _, job := range started {
		out = append(out, *d.jobs[job.ID])
	}
	d.mu.RUnlock()
	return out
}

// run drives one job to a terminal status. Attempts of one job are sequential.
func (d *Dispatcher) run(ctx context.Context, jobID string, key jobKey, r models.Recipient) {
	var finalJob models.NotificationJob
	defer func() {
		d.mu.Lock()
		delete(d.inflight, key)
		delete(d.superseded, jobID)
		d.mu.Unlock()
		if d.observer != nil {
			d.observer.ObserveJob(finalJob)
		}
	}()

	snapshot := d.get(jobID)
	finalJob = snapshot

	for attempt := 1; ; attempt++ {
		if d.alerts != nil && d.alerts.IsResolved(snapshot.AlertID) {
			finalJob = d.finish(ctx, jobID, models.JobCancelled, "alert resolved before delivery")
			return
		}
		if d.isSuperseded(jobID) {
			finalJob = d.finish(ctx, jobID, models.JobCancelled, "superseded by escalated alert")
			d.log.Info("Alert %s job via %s to %s superseded by escalation", snapshot.AlertID, r.Channel, r.Address)
			return
		}
		if err := d.limiter(r.Channel).Wait(ctx); err != nil {
			finalJob = d.finish(ctx, jobID, models.JobCancelled, fmt.Sprintf("dispatch cancelled: %v", err))
			return
		}

		start := d.now()
		result := d.attempt(ctx, r, snapshot.Message)
		if d.observer != nil {
			d.observer.ObserveAttempt(r.Channel, result.Delivered, d.now().Sub(start))
		}

		at := d.now().UTC()
		snapshot = d.update(jobID, func(j *models.NotificationJob) {
			j.Attempts = attempt
			j.LastAttemptAt = &at
			if !result.Delivered {
				j.LastError = result.Reason
			}
		})

		switch {
		case result.Delivered:
			finalJob = d.finish(ctx, jobID, models.JobSent, "")
			d.log.Info("Alert %s delivered via %s to %s (attempt %d)", snapshot.AlertID, r.Channel, r.Address, attempt)
			return
		case result.Permanent:
			finalJob = d.finish(ctx, jobID, models.JobFailed, result.Reason)
			d.log.Error("Alert %s permanently failed via %s to %s: %s", snapshot.AlertID, r.Channel, r.Address, result.Reason)
			return
		case attempt >= d.cfg.MaxRetries:
			finalJob = d.finish(ctx, jobID, models.JobFailed, result.Reason)
			d.log.Error("Alert %s failed via %s to %s after %d attempts: %s", snapshot.AlertID, r.Channel, r.Address, attempt, result.Reason)
			return
		}

		d.save(ctx, snapshot)
		wait := d.Backoff(attempt)
		d.log.Warn("Alert %s via %s to %s failed (attempt %d/%d): %s, retrying in %s",
			snapshot.AlertID, r.Channel, r.Address, attempt, d.cfg.MaxRetries, result.Reason, wait)
		if err := d.sleep(ctx, wait); err != nil {
			finalJob = d.finish(ctx, jobID, models.JobCancelled, fmt.Sprintf("dispatch cancelled: %v", err))
			return
		}
	}
}

// attempt performs one bounded send through the channel's breaker.
func (d *Dispatcher) attempt(ctx context.Context, r models.Recipient, message string) models.DeliveryResult {
	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()

	send := func() (interface{}, error) {
		done := make(chan models.DeliveryResult, 1)
		go func() { done <- d.sender.Send(sendCtx, r.Channel, r, message) }()

		var res models.DeliveryResult
		select {
		case res = <-done:
		case <-sendCtx.Done():
			res = models.DeliveryResult{Reason: fmt.Sprintf("send timed out after %s", d.cfg.SendTimeout)}
		}
		switch {
		case res.Delivered:
			return res, nil
		case res.Permanent:
			return res, errPermanent
		default:
			if res.Reason == "" {
				res.Reason = "delivery failed"
			}
			return res, errors.New(res.Reason)
		}
	}

	cb := d.breaker(r.Channel)
	if cb == nil {
		out, _ := send()
		return out.(models.DeliveryResult)
	}
	out, err := cb.Execute(send)
	if out == nil {
		return models.DeliveryResult{Reason: fmt.Sprintf("%s channel unavailable: %v", r.Channel, err)}
	}
	return out.(models.DeliveryResult)
}

func (d *Dispatcher) limiter(ch models.Channel) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.limiters[ch]
	if !ok {
		limit := rate.Inf
		if d.cfg.RatePerSecond > 0 {
			limit = rate.Limit(d.cfg.RatePerSecond)
		}
		burst := d.cfg.Burst
		if burst < 1 {
			burst = 1
		}
		l = rate.NewLimiter(limit, burst)
		d.limiters[ch] = l
	}
	return l
}

func (d *Dispatcher) breaker(ch models.Channel) *gobreaker.CircuitBreaker {
	if d.cfg.BreakerThreshold == 0 {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	cb, ok := d.breakers[ch]
	if !ok {
		threshold := d.cfg.BreakerThreshold
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    string(ch),
			Timeout: d.cfg.BreakerTimeout,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= threshold
			},
			// a bad recipient says nothing about the channel
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, errPermanent)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				d.log.Warn("Channel %s breaker %s -> %s", name, from, to)
			},
		})
		d.breakers[ch] = cb
	}
	return cb
}

func (d *Dispatcher) isSuperseded(jobID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.superseded[jobID]
}

func (d *Dispatcher) get(id string) models.NotificationJob {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return *d.jobs[id]
}

func (d *Dispatcher) update(id string, fn func(*models.NotificationJob)) models.NotificationJob {
	d.mu.Lock()
	defer d.mu.Unlock()
	j := d.jobs[id]
	fn(j)
	return *j
}

func (d *Dispatcher) finish(ctx context.Context, id string, status models.JobStatus, reason string) models.NotificationJob {
	now := d.now().UTC()
	job := d.update(id, func(j *models.NotificationJob) {
		j.Status = status
		if reason != "" {
			j.LastError = reason
		}
		j.CompletedAt = &now
	})
	// the audit row must be written even when the dispatch context is gone
	d.save(context.WithoutCancel(ctx), job)
	return job
}

func (d *Dispatcher) save(ctx context.Context, job models.NotificationJob) {
	if d.store == nil {
		return
	}
	if err := d.store.SaveJob(ctx, &job); err != nil {
		d.log.Error("Failed to persist notification job %s: %v", job.ID, err)
	}
}

// MarkDelivered records a provider receipt for a sent job.
func (d *Dispatcher) MarkDelivered(ctx context.Context, jobID string) (models.NotificationJob, error) {
	d.mu.Lock()
	j, ok := d.jobs[jobID]
	if !ok {
		d.mu.Unlock()
		return models.NotificationJob{}, models.Errorf(models.ErrJobNotFound, "notification job %s not found", jobID)
	}
	if j.Status != models.JobSent {
		status := j.Status
		d.mu.Unlock()
		return models.NotificationJob{}, models.Errorf(models.ErrIllegalTransition, "job %s is %s, only sent jobs can be delivered", jobID, status)
	}
	now := d.now().UTC()
	j.Status = models.JobDelivered
	j.CompletedAt = &now
	out := *j
	d.mu.Unlock()

	d.save(ctx, out)
	return out, nil
}

func (d *Dispatcher) Job(id string) (models.NotificationJob, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	j, ok := d.jobs[id]
	if !ok {
		return models.NotificationJob{}, models.Errorf(models.ErrJobNotFound, "notification job %s not found", id)
	}
	return *j, nil
}

// Jobs lists jobs, newest first, optionally filtered by status.
func (d *Dispatcher) Jobs(status models.JobStatus) []models.NotificationJob {
	d.mu.RLock()
	out := make([]models.NotificationJob, 0, len(d.jobs))
	for _, j := range d.jobs {
		if status == "" || j.Status == status {
			out = append(out, *j)
		}
	}
	d.mu.RUnlock()
	sortJobs(out)
	return out
}

func (d *Dispatcher) JobsForAlert(alertID string) []models.NotificationJob {
	d.mu.RLock()
	ids := d.byAlert[alertID]
	out := make([]models.NotificationJob, 0, len(ids))
	for _, id := range ids {
		out = append(out, *d.jobs[id])
	}
	d.mu.RUnlock()
	sortJobs(out)
	return out
}

func sortJobs(jobs []models.NotificationJob) {
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
}

// Restore loads the job audit trail from the store.
func (d *Dispatcher) Restore(ctx context.Context) (int, error) {
	if d.store == nil {
		return 0, nil
	}
	jobs, err := d.store.ListJobs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to restore notification jobs: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range jobs {
		j := jobs[i]
		if _, ok := d.jobs[j.ID]; ok {
			continue
		}
		d.jobs[j.ID] = &j
		d.byAlert[j.AlertID] = append(d.byAlert[j.AlertID], j.ID)
	}
	return len(jobs), nil
}
