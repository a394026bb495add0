// Command worker drains the deferred notification queue on a cron
// schedule, purges old delivery logs, refreshes the delivery SLO gauges
// and consumes order events from NATS and Kafka.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"engage-notify/internal/app"
	"engage-notify/internal/infra/worker"
	"engage-notify/internal/observability/logging"
	"engage-notify/internal/observability/metrics"
	"engage-notify/internal/observability/slo"
	pkgconfig "engage-notify/internal/pkg/config"
)

const (
	dbStatsInterval = 15 * time.Second
	shutdownTimeout = 30 * time.Second
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", slog.Any("error", err))
	}
	logger := logging.NewLogger()
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("worker stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := worker.NewWorkerMetrics()
	cfg, err := worker.LoadConfigFromEnv(logger, workerMetrics)
	if err != nil {
		return fmt.Errorf("load worker configuration: %w", err)
	}
	logger.Info("worker configuration loaded",
		slog.String("sweep_schedule", cfg.SweepSchedule),
		slog.String("retention_schedule", cfg.RetentionSchedule),
		slog.String("slo_schedule", cfg.SLOSchedule),
		slog.String("timezone", cfg.Timezone),
		slog.Int("sweep_batch", cfg.SweepBatch),
		slog.Int("sweep_concurrency", cfg.SweepConcurrency),
		slog.Duration("task_timeout", cfg.TaskTimeout),
		slog.Int("health_port", cfg.HealthPort))

	env := app.LoadEnv(logger, pkgconfig.NewConfigMetrics("engage_env"))
	core, err := app.Build(ctx, logger, env, pkgconfig.NewConfigMetrics("engage_settings"))
	if err != nil {
		return err
	}
	defer func() {
		if err := core.Close(); err != nil {
			logger.Error("failed to close resources", slog.Any("error", err))
		}
	}()

	health := worker.NewHealthServer(fmt.Sprintf(":%d", cfg.HealthPort), logger)
	health.AddBreaker("gateway", core.Gateway.BreakerOpen, false)
	health.AddBreaker("database", core.DBBreaker.IsOpen, true)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := health.Start(gctx); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return serveMetrics(gctx, logger, metricsPort(logger), core, env)
	})
	g.Go(func() error {
		metrics.CollectDBStats(gctx, core.DB, dbStatsInterval)
		return nil
	})

	subs, err := startSubscribers(gctx, g, logger, core.Ingestor)
	if err != nil {
		stop()
		_ = g.Wait()
		return err
	}

	sched := worker.NewScheduler(cfg.Location(), logger, workerMetrics)
	sweeper := worker.NewSweeper(core.Queue, core.Dispatcher, *cfg, logger, workerMetrics)
	retention := worker.NewRetention(core.Logs,
		func() int { return core.Settings.LogRetentionDays }, logger, workerMetrics)
	jobs := []struct {
		name, spec string
		job        worker.Job
	}{
		{worker.JobSweep, cfg.SweepSchedule, sweeper.Run},
		{worker.JobRetention, cfg.RetentionSchedule, retention.Run},
		{worker.JobSLO, cfg.SLOSchedule, func(ctx context.Context) error {
			return slo.Refresh(ctx, core.Logs, slo.WindowDays)
		}},
	}
	for _, j := range jobs {
		if err := sched.Add(j.name, j.spec, j.job); err != nil {
			stop()
			subs.stop()
			_ = g.Wait()
			return err
		}
	}
	sched.Start()
	health.SetReady(true)
	logger.Info("worker started")

	<-gctx.Done()
	health.SetReady(false)
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Warn("scheduler did not stop cleanly", slog.Any("error", err))
	}
	subs.stop()

	return g.Wait()
}
