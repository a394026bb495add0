package notify

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Notification outcomes used as the "status" label.
const (
	outcomeSent      = "sent"
	outcomeFailed    = "failed"
	outcomeSkipped   = "skipped"
	outcomeScheduled = "scheduled"
	outcomeRetry     = "retry"
)

// Prometheus metrics for the dispatcher
var (
	// notificationsTotal counts dispatch outcomes per notification type
	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engage_notifications_total",
			Help: "Total number of notification dispatch outcomes",
		},
		[]string{"type", "status"}, // status: sent|failed|skipped|scheduled|retry
	)

	// notificationDuration tracks the time spent in the gateway send path
	notificationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "engage_notification_duration_seconds",
			Help:    "Notification send duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"type"},
	)

	// deferredTasksTotal counts executed deferred tasks
	deferredTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engage_deferred_tasks_total",
			Help: "Total number of deferred tasks executed",
		},
		[]string{"kind", "result"}, // result: success|failure|skipped
	)
)

// RecordOutcome counts one dispatch outcome for a notification type.
func RecordOutcome(notificationType, outcome string) {
	notificationsTotal.WithLabelValues(notificationType, outcome).Inc()
}

// RecordSendDuration observes how long a gateway send took.
func RecordSendDuration(notificationType string, d time.Duration) {
	notificationDuration.WithLabelValues(notificationType).Observe(d.Seconds())
}

// RecordTask counts one executed deferred task.
func RecordTask(kind, result string) {
	deferredTasksTotal.WithLabelValues(kind, result).Inc()
}
