package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"MineSafetyAPI/internal/models"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minesafety_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "minesafety_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)

	// Ingest metrics
	ReadingsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minesafety_readings_ingested_total",
			Help: "Readings accepted into the store",
		},
		[]string{"metric"},
	)

	ReadingsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minesafety_readings_rejected_total",
			Help: "Readings rejected during validation",
		},
		[]string{"code"},
	)

	ReadingsStored = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "minesafety_readings_stored",
			Help: "Readings currently retained in memory",
		},
	)

	// Evaluation metrics
	EvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minesafety_evaluations_total",
			Help: "Zone risk evaluations by resulting level",
		},
		[]string{"level"},
	)

	EvaluationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "minesafety_evaluation_failures_total",
			Help: "Zone evaluations that returned an error",
		},
	)

	EvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "minesafety_evaluation_cycle_seconds",
			Help:    "Time taken to evaluate every zone once",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	ZoneProbability = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "minesafety_zone_risk_probability",
			Help: "Latest rockfall probability per zone",
		},
		[]string{"zone"},
	)

	// Alert metrics
	AlertEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minesafety_alert_events_total",
			Help: "Alert lifecycle transitions",
		},
		[]string{"type", "severity"},
	)

	OpenAlerts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "minesafety_open_alerts",
			Help: "Alerts not yet resolved",
		},
	)

	// Notification metrics
	DeliveryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minesafety_delivery_attempts_total",
			Help: "Notification send attempts by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	DeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "minesafety_delivery_attempt_seconds",
			Help:    "Duration of a single send attempt",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"channel"},
	)

	NotificationJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minesafety_notification_jobs_total",
			Help: "Notification jobs by terminal status",
		},
		[]string{"channel", "status"},
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minesafety_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)

// DeliveryObserver feeds dispatcher outcomes into the delivery metrics.
type DeliveryObserver struct{}

func (DeliveryObserver) ObserveAttempt(channel models.Channel, delivered bool, took time.Duration) {
	outcome := "failed"
	if delivered {
		outcome = "sent"
	}
	DeliveryAttempts.WithLabelValues(string(channel), outcome).Inc()
	DeliveryDuration.WithLabelValues(string(channel)).Observe(took.Seconds())
}

func (DeliveryObserver) ObserveJob(job models.NotificationJob) {
	if !job.Status.IsTerminal() {
		return
	}
	NotificationJobs.WithLabelValues(string(job.Channel), string(job.Status)).Inc()
}

// ObserveAssessment records one completed zone evaluation.
func ObserveAssessment(a models.RiskAssessment) {
	EvaluationsTotal.WithLabelValues(string(a.Level)).Inc()
	ZoneProbability.WithLabelValues(a.ZoneID).Set(a.Probability)
}

// ObserveAlert records one lifecycle transition.
func ObserveAlert(eventType string, alert models.Alert) {
	AlertEvents.WithLabelValues(eventType, string(alert.Severity)).Inc()
	switch eventType {
	case "alert.created":
		OpenAlerts.Inc()
	case "alert.resolved":
		OpenAlerts.Dec()
	}
}
