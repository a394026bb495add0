package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// Scheduler runs Jobs on cron specs. Overlapping runs of the same job are
// skipped, and a panicking job is logged without stopping the scheduler.
type Scheduler struct {
	cron    *cron.Cron
	logger  *slog.Logger
	metrics *WorkerMetrics
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewScheduler(loc *time.Location, logger *slog.Logger, metrics *WorkerMetrics) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	cl := cronLogger{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.SkipIfStillRunning(cl)),
		),
		logger:  logger,
		metrics: metrics,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Add registers job under name. The spec accepts five-field expressions and
// descriptors such as "@every 1m".
func (s *Scheduler) Add(name, spec string, job Job) error {
	if _, err := s.cron.AddFunc(spec, func() { s.run(name, job) }); err != nil {
		return fmt.Errorf("schedule %s job: %w", name, err)
	}
	s.logger.Info("job scheduled", slog.String("job", name), slog.String("spec", spec))
	return nil
}

func (s *Scheduler) run(name string, job Job) {
	start := time.Now()
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.logger.Error("job panicked",
				slog.String("job", name),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
		s.metrics.RecordJobRun(name, time.Since(start).Seconds(), err)
	}()

	err = job(s.ctx)
	if err != nil {
		s.logger.Error("job failed", slog.String("job", name), slog.Any("error", err))
	}
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop prevents new runs, cancels the job context and waits for running
// jobs until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for running jobs: %w", ctx.Err())
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{ logger *slog.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
