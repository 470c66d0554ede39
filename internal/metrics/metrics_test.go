package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"MineSafetyAPI/internal/models"
)

func TestDeliveryObserver(t *testing.T) {
	obs := DeliveryObserver{}

	before := testutil.ToFloat64(DeliveryAttempts.WithLabelValues("sms", "sent"))
	obs.ObserveAttempt(models.ChannelSMS, true, 120*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(DeliveryAttempts.WithLabelValues("sms", "sent")))

	pendingBefore := testutil.ToFloat64(NotificationJobs.WithLabelValues("email", "pending"))
	obs.ObserveJob(models.NotificationJob{Channel: models.ChannelEmail, Status: models.JobPending})
	assert.Equal(t, pendingBefore, testutil.ToFloat64(NotificationJobs.WithLabelValues("email", "pending")))

	failedBefore := testutil.ToFloat64(NotificationJobs.WithLabelValues("email", "failed"))
	obs.ObserveJob(models.NotificationJob{Channel: models.ChannelEmail, Status: models.JobFailed})
	assert.Equal(t, failedBefore+1, testutil.ToFloat64(NotificationJobs.WithLabelValues("email", "failed")))
}

func TestObserveAssessment(t *testing.T) {
	ObserveAssessment(models.RiskAssessment{ZoneID: "kolar-l3", Level: models.RiskHigh, Probability: 0.74})
	assert.Equal(t, 0.74, testutil.ToFloat64(ZoneProbability.WithLabelValues("kolar-l3")))
}

func TestObserveAlertTracksOpenGauge(t *testing.T) {
	start := testutil.ToFloat64(OpenAlerts)
	alert := models.Alert{Severity: models.SeverityWarning}

	ObserveAlert("alert.created", alert)
	ObserveAlert("alert.acknowledged", alert)
	assert.Equal(t, start+1, testutil.ToFloat64(OpenAlerts))

	ObserveAlert("alert.resolved", alert)
	assert.Equal(t, start, testutil.ToFloat64(OpenAlerts))
}
