package worker

import (
	"context"
	"fmt"
	"log/slog"
)

// LogPurger deletes delivery log rows older than a number of days.
type LogPurger interface {
	CleanupOlderThan(ctx context.Context, days int) (int64, error)
}

// Retention removes old delivery log rows. days is read on every run so a
// reloaded settings file takes effect without a restart.
type Retention struct {
	logs    LogPurger
	days    func() int
	logger  *slog.Logger
	metrics *WorkerMetrics
}

func NewRetention(logs LogPurger, days func() int, logger *slog.Logger, metrics *WorkerMetrics) *Retention {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retention{logs: logs, days: days, logger: logger, metrics: metrics}
}

// Run deletes rows older than the configured window. A non-positive window
// disables cleanup.
func (r *Retention) Run(ctx context.Context) error {
	days := r.days()
	if days <= 0 {
		r.logger.Debug("log retention disabled", slog.Int("days", days))
		return nil
	}

	n, err := r.logs.CleanupOlderThan(ctx, days)
	if err != nil {
		return fmt.Errorf("cleanup delivery logs: %w", err)
	}
	r.metrics.RecordLogsPurged(n)
	r.logger.Info("delivery logs purged",
		slog.Int("retention_days", days),
		slog.Int64("deleted", n))
	return nil
}
