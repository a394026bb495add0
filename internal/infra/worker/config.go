package worker

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"engage-notify/internal/pkg/config"
)

// WorkerConfig controls the deferred-task sweep, log retention and the
// health endpoint of cmd/worker.
//
// Environment variables (all optional, invalid values fall back with a
// warning):
//   - SWEEP_SCHEDULE: cron spec for draining due tasks (default "@every 1m")
//   - RETENTION_SCHEDULE: cron spec for the log cleanup (default "30 3 * * *")
//   - SLO_SCHEDULE: cron spec for the delivery SLO gauges (default "@every 5m")
//   - CRON_TZ: IANA zone all schedules are evaluated in (default "UTC")
//   - SWEEP_BATCH: tasks claimed per sweep, 1-1000 (default 100)
//   - SWEEP_CONCURRENCY: tasks executed in parallel, 1-50 (default 5)
//   - TASK_TIMEOUT: deadline for a single task (default 2m)
//   - HEALTH_PORT: health server port, 1024-65535 (default 9091)
type WorkerConfig struct {
	SweepSchedule     string
	RetentionSchedule string
	SLOSchedule       string
	Timezone          string
	SweepBatch        int
	SweepConcurrency  int
	TaskTimeout       time.Duration
	HealthPort        int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() WorkerConfig {
	return WorkerConfig{
		SweepSchedule:     "@every 1m",
		RetentionSchedule: "30 3 * * *",
		SLOSchedule:       "@every 5m",
		Timezone:          "UTC",
		SweepBatch:        100,
		SweepConcurrency:  5,
		TaskTimeout:       2 * time.Minute,
		HealthPort:        9091,
	}
}

func validateBatch(v int) error       { return config.ValidateIntRange(v, 1, 1000) }
func validateConcurrency(v int) error { return config.ValidateIntRange(v, 1, 50) }
func validatePort(v int) error        { return config.ValidateIntRange(v, 1024, 65535) }
func validateTaskTimeout(d time.Duration) error {
	return config.ValidateDuration(d, time.Second, 30*time.Minute)
}

// Validate returns every invalid field joined into one error.
func (c *WorkerConfig) Validate() error {
	var errs []error
	if err := config.ValidateCronSchedule(c.SweepSchedule); err != nil {
		errs = append(errs, fmt.Errorf("sweep schedule: %w", err))
	}
	if err := config.ValidateCronSchedule(c.RetentionSchedule); err != nil {
		errs = append(errs, fmt.Errorf("retention schedule: %w", err))
	}
	if err := config.ValidateCronSchedule(c.SLOSchedule); err != nil {
		errs = append(errs, fmt.Errorf("slo schedule: %w", err))
	}
	if err := config.ValidateTimezone(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	if err := validateBatch(c.SweepBatch); err != nil {
		errs = append(errs, fmt.Errorf("sweep batch: %w", err))
	}
	if err := validateConcurrency(c.SweepConcurrency); err != nil {
		errs = append(errs, fmt.Errorf("sweep concurrency: %w", err))
	}
	if err := validateTaskTimeout(c.TaskTimeout); err != nil {
		errs = append(errs, fmt.Errorf("task timeout: %w", err))
	}
	if err := validatePort(c.HealthPort); err != nil {
		errs = append(errs, fmt.Errorf("health port: %w", err))
	}
	return errors.Join(errs...)
}

// Location resolves Timezone, falling back to UTC.
func (c *WorkerConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LoadConfigFromEnv replaces each invalid variable with its default, logs it
// and counts it in metrics. The assembled config is then checked as a whole,
// so an error means the defaults themselves are broken.
func LoadConfigFromEnv(logger *slog.Logger, metrics *WorkerMetrics) (*WorkerConfig, error) {
	cfg := DefaultConfig()

	var cm *config.ConfigMetrics
	if metrics != nil {
		cm = metrics.ConfigMetrics
	}
	tr := config.NewTracker(logger, cm)

	cfg.SweepSchedule = config.Observe(tr, "sweep_schedule",
		config.LoadString("SWEEP_SCHEDULE", cfg.SweepSchedule, config.ValidateCronSchedule))
	cfg.RetentionSchedule = config.Observe(tr, "retention_schedule",
		config.LoadString("RETENTION_SCHEDULE", cfg.RetentionSchedule, config.ValidateCronSchedule))
	cfg.SLOSchedule = config.Observe(tr, "slo_schedule",
		config.LoadString("SLO_SCHEDULE", cfg.SLOSchedule, config.ValidateCronSchedule))
	cfg.Timezone = config.Observe(tr, "timezone",
		config.LoadString("CRON_TZ", cfg.Timezone, config.ValidateTimezone))
	cfg.SweepBatch = config.Observe(tr, "sweep_batch",
		config.LoadInt("SWEEP_BATCH", cfg.SweepBatch, validateBatch))
	cfg.SweepConcurrency = config.Observe(tr, "sweep_concurrency",
		config.LoadInt("SWEEP_CONCURRENCY", cfg.SweepConcurrency, validateConcurrency))
	cfg.TaskTimeout = config.Observe(tr, "task_timeout",
		config.LoadDuration("TASK_TIMEOUT", cfg.TaskTimeout, validateTaskTimeout))
	cfg.HealthPort = config.Observe(tr, "health_port",
		config.LoadInt("HEALTH_PORT", cfg.HealthPort, validatePort))

	tr.Finish()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("worker config: %w", err)
	}
	return &cfg, nil
}
