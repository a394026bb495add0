// Package app assembles the components shared by cmd/api and cmd/worker:
// the database and its breaker, the repositories, the deferred task queue,
// the gateway client, the dispatcher and the event ingestor.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"engage-notify/internal/config"
	pgRepo "engage-notify/internal/infra/adapter/persistence/postgres"
	"engage-notify/internal/infra/alert"
	"engage-notify/internal/infra/db"
	"engage-notify/internal/infra/eventsource"
	"engage-notify/internal/infra/gateway"
	"engage-notify/internal/infra/scheduler/redisqueue"
	pkgconfig "engage-notify/internal/pkg/config"
	"engage-notify/internal/repository"
	"engage-notify/internal/resilience/circuitbreaker"
	"engage-notify/internal/resilience/retry"
	"engage-notify/internal/usecase/notify"
)

// Scheduler backends selectable with SCHEDULER_BACKEND.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Env holds the process settings Build reads.
//
// Environment variables:
//   - NOTIFY_RULES_FILE: YAML settings document (default: built-in defaults)
//   - SCHEDULER_BACKEND: postgres or redis (default postgres)
//   - REDIS_ADDR: Redis address for the redis backend (default localhost:6379)
//   - REDIS_QUEUE_KEY: sorted set name (default redisqueue.DefaultKey)
type Env struct {
	RulesFile        string
	SchedulerBackend string
	RedisAddr        string
	RedisQueueKey    string
}

// LoadEnv reads Env with the fail-open loaders. Fallbacks are logged and
// counted in metrics when it is non-nil.
func LoadEnv(logger *slog.Logger, metrics *pkgconfig.ConfigMetrics) Env {
	tr := pkgconfig.NewTracker(logger, metrics)
	env := Env{
		RulesFile: pkgconfig.Observe(tr, "rules_file",
			pkgconfig.LoadString("NOTIFY_RULES_FILE", "", nil)),
		SchedulerBackend: pkgconfig.Observe(tr, "scheduler_backend",
			pkgconfig.LoadString("SCHEDULER_BACKEND", BackendPostgres, pkgconfig.OneOf(BackendPostgres, BackendRedis))),
		RedisAddr: pkgconfig.Observe(tr, "redis_addr",
			pkgconfig.LoadString("REDIS_ADDR", "localhost:6379", nil)),
		RedisQueueKey: pkgconfig.Observe(tr, "redis_queue_key",
			pkgconfig.LoadString("REDIS_QUEUE_KEY", redisqueue.DefaultKey, nil)),
	}
	tr.Finish()
	return env
}

// Core is the wired notification engine.
type Core struct {
	DB        *sql.DB
	DBBreaker *circuitbreaker.DBCircuitBreaker

	Logs   repository.DeliveryLogRepository
	Orders repository.OrderRepository
	Queue  repository.DeferredTaskQueue

	Settings      *config.Settings
	GatewayConfig *config.GatewayConfig
	Gateway       *gateway.Client
	Alerter       *alert.Alerter

	Dispatcher *notify.Dispatcher
	Ingestor   *eventsource.Ingestor

	redis *redis.Client
}

// startupRetry waits for a database that is still coming up.
func startupRetry() retry.Config {
	cfg := retry.DBConfig()
	cfg.MaxAttempts = 10
	cfg.InitialDelay = time.Second
	cfg.MaxDelay = 5 * time.Second
	return cfg
}

// Build opens the database, applies migrations and wires every component.
// Repositories go through the database circuit breaker.
func Build(ctx context.Context, logger *slog.Logger, env Env, settingsMetrics *pkgconfig.ConfigMetrics) (*Core, error) {
	var database *sql.DB
	err := retry.WithBackoff(ctx, startupRetry(), func() error {
		var openErr error
		database, openErr = db.Open(ctx)
		return openErr
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.MigrateUp(database); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	c := &Core{DB: database, DBBreaker: circuitbreaker.NewDBCircuitBreaker(database)}
	c.Logs = pgRepo.NewDeliveryLogRepo(c.DBBreaker)
	c.Orders = pgRepo.NewOrderRepo(c.DBBreaker)

	switch env.SchedulerBackend {
	case BackendRedis:
		client, err := redisqueue.NewClient(ctx, env.RedisAddr)
		if err != nil {
			_ = c.Close()
			return nil, err
		}
		c.redis = client
		c.Queue = redisqueue.New(client, env.RedisQueueKey, logger)
	default:
		c.Queue = pgRepo.NewDeferredTaskRepo(c.DBBreaker)
	}

	c.Settings, err = config.LoadSettings(env.RulesFile, logger, settingsMetrics)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("load settings: %w", err)
	}

	c.GatewayConfig, err = config.LoadGatewayConfig()
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	if !c.GatewayConfig.Configured() {
		logger.Warn("gateway credentials missing, sends will be logged as configuration errors")
	}
	c.Gateway = gateway.New(*c.GatewayConfig, c.Settings, gateway.WithLogger(logger))

	c.Alerter = alert.Build(alert.LoadConfig(logger), logger)
	opts := []notify.Option{notify.WithLogger(logger)}
	if c.Alerter.Enabled() {
		opts = append(opts, notify.WithAlerter(c.Alerter))
	}
	c.Dispatcher = notify.NewDispatcher(c.Logs, c.Queue, c.Orders, c.Gateway, c.Settings, opts...)
	c.Ingestor = eventsource.NewIngestor(c.Orders, c.Dispatcher, logger)

	logger.Info("notification engine ready",
		slog.String("scheduler_backend", env.SchedulerBackend),
		slog.Bool("gateway_configured", c.GatewayConfig.Configured()),
		slog.Bool("alerts_enabled", c.Alerter.Enabled()),
		slog.Int("retry_attempts", c.Settings.RetryAttempts),
		slog.Int("log_retention_days", c.Settings.LogRetentionDays))
	return c, nil
}

// Close releases the Redis client and the database pool.
func (c *Core) Close() error {
	var errs []error
	if c.redis != nil {
		errs = append(errs, c.redis.Close())
	}
	if c.DB != nil {
		errs = append(errs, c.DB.Close())
	}
	return errors.Join(errs...)
}
