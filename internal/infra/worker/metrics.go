package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"engage-notify/internal/pkg/config"
)

// Job names used as metric labels.
const (
	JobSweep     = "sweep"
	JobRetention = "retention"
	JobSLO       = "slo"
)

// WorkerMetrics holds the worker's Prometheus collectors. promauto registers
// them with the default registry, so build it once per process.
type WorkerMetrics struct {
	*config.ConfigMetrics

	// JobRunsTotal counts cron runs by job and status (success, failure).
	JobRunsTotal *prometheus.CounterVec

	// JobDurationSeconds observes cron run time by job.
	JobDurationSeconds *prometheus.HistogramVec

	// JobLastSuccessTimestamp is the Unix time of the last good run per job.
	JobLastSuccessTimestamp *prometheus.GaugeVec

	// SweepClaimed observes how many tasks each sweep claimed.
	SweepClaimed prometheus.Histogram

	// LogsPurgedTotal counts delivery log rows removed by retention.
	LogsPurgedTotal prometheus.Counter
}

func NewWorkerMetrics() *WorkerMetrics {
	return &WorkerMetrics{
		ConfigMetrics: config.NewConfigMetrics("worker"),

		JobRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_cron_job_runs_total",
			Help: "Total cron job runs by job and status",
		}, []string{"job", "status"}),

		JobDurationSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "worker_cron_job_duration_seconds",
			Help:    "Cron job run time in seconds",
			Buckets: []float64{0.05, 0.25, 1, 5, 15, 60, 300},
		}, []string{"job"}),

		JobLastSuccessTimestamp: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "worker_cron_job_last_success_timestamp",
			Help: "Unix timestamp of the last successful run per job",
		}, []string{"job"}),

		SweepClaimed: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "engage_sweep_claimed",
			Help:    "Deferred tasks claimed per sweep",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 1000},
		}),

		LogsPurgedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "engage_delivery_logs_purged_total",
			Help: "Delivery log rows removed by retention cleanup",
		}),
	}
}

// RecordJobRun records one finished run. A nil receiver is a no-op so jobs
// can run without metrics in tests.
func (m *WorkerMetrics) RecordJobRun(job string, seconds float64, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.JobRunsTotal.WithLabelValues(job, status).Inc()
	m.JobDurationSeconds.WithLabelValues(job).Observe(seconds)
	if err == nil {
		m.JobLastSuccessTimestamp.WithLabelValues(job).SetToCurrentTime()
	}
}

func (m *WorkerMetrics) RecordSweepClaimed(n int) {
	if m == nil {
		return
	}
	m.SweepClaimed.Observe(float64(n))
}

func (m *WorkerMetrics) RecordLogsPurged(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.LogsPurgedTotal.Add(float64(n))
}
