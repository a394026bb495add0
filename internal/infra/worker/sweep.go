package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"engage-notify/internal/domain/entity"
	"engage-notify/internal/repository"
)

// TaskExecutor runs one claimed deferred task. notify.Dispatcher satisfies it.
type TaskExecutor interface {
	ExecuteTask(ctx context.Context, task *entity.DeferredTask) error
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Claimed int
	Failed  int
}

// Sweeper drains due tasks from the deferred queue and executes them with
// bounded parallelism.
type Sweeper struct {
	queue       repository.DeferredTaskQueue
	exec        TaskExecutor
	batch       int
	concurrency int
	timeout     time.Duration
	logger      *slog.Logger
	metrics     *WorkerMetrics
	now         func() time.Time
}

// NewSweeper builds a Sweeper from the batch, concurrency and timeout in cfg.
// metrics may be nil.
func NewSweeper(queue repository.DeferredTaskQueue, exec TaskExecutor, cfg WorkerConfig, logger *slog.Logger, metrics *WorkerMetrics) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		queue:       queue,
		exec:        exec,
		batch:       max(cfg.SweepBatch, 1),
		concurrency: max(cfg.SweepConcurrency, 1),
		timeout:     cfg.TaskTimeout,
		logger:      logger,
		metrics:     metrics,
		now:         time.Now,
	}
}

// Sweep claims up to one batch of due tasks and waits for all of them.
//
// Claimed tasks are already gone from the queue, so they run on a context
// detached from ctx's cancellation: a shutdown that lands mid-sweep lets
// them finish (bounded by the task timeout) instead of dropping them.
// Task failures are logged and counted; only a failed claim is returned, and
// any tasks claimed before the failure still run first.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	tasks, claimErr := s.queue.ConsumeDue(ctx, s.now(), s.batch)
	if claimErr != nil {
		claimErr = fmt.Errorf("consume due tasks: %w", claimErr)
	}
	s.metrics.RecordSweepClaimed(len(tasks))
	if len(tasks) == 0 {
		return SweepResult{}, claimErr
	}

	base := context.WithoutCancel(ctx)
	var failed atomic.Int64

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, task := range tasks {
		g.Go(func() error {
			tctx, cancel := s.taskContext(base)
			defer cancel()
			if err := s.exec.ExecuteTask(tctx, task); err != nil {
				failed.Add(1)
				s.logger.Warn("deferred task failed",
					slog.String("task_id", task.ID),
					slog.String("kind", task.Kind),
					slog.Int64("order_id", task.OrderID),
					slog.Any("error", err))
			}
			return nil
		})
	}
	_ = g.Wait()

	return SweepResult{Claimed: len(tasks), Failed: int(failed.Load())}, claimErr
}

func (s *Sweeper) taskContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Run is the cron entry point.
func (s *Sweeper) Run(ctx context.Context) error {
	res, err := s.Sweep(ctx)
	if err != nil {
		return err
	}
	if res.Claimed > 0 {
		s.logger.Info("sweep completed",
			slog.Int("claimed", res.Claimed),
			slog.Int("failed", res.Failed))
	}
	return nil
}
