// Command api serves the admin read API over the delivery log, the gateway
// diagnostics and the order event webhooks.
//
// Usage:
//
//	api                                  run the HTTP server
//	api token -sub ops -role viewer      print a signed admin token
//	api migrate [-yes] up|down           apply or drop the schema
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"engage-notify/internal/app"
	httpapi "engage-notify/internal/handler/http"
	"engage-notify/internal/infra/db"
	"engage-notify/internal/observability/logging"
	"engage-notify/internal/observability/metrics"
	pkgconfig "engage-notify/internal/pkg/config"
)

const (
	dbStatsInterval = 15 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", slog.Any("error", err))
	}
	logger := logging.NewLogger()
	slog.SetDefault(logger)

	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := runToken(os.Args[2:], os.Stdout, time.Now()); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		return
	}

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(context.Background(), os.Args[2:], os.Stdout, db.Open); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		return
	}

	if err := run(logger); err != nil {
		logger.Error("server stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// serverEnv holds the HTTP server settings.
//
// Environment variables:
//   - PORT: listen port (default 8080)
//   - JWT_SECRET: HS256 key, at least 32 characters (required)
//   - VERSION: reported by /health (default "dev")
//   - MAX_BODY_BYTES: request body cap (default 1 MiB)
//   - REQUEST_TIMEOUT: per-request deadline (default 30s)
//   - EVENT_RATE_LIMIT_RPS, EVENT_RATE_LIMIT_BURST: webhook limit per client
//     IP (default 20 and 40, 0 disables)
type serverEnv struct {
	Port           int
	JWTSecret      string
	Version        string
	MaxBodyBytes   int
	RequestTimeout time.Duration
	EventRPS       int
	EventBurst     int
}

func loadServerEnv(logger *slog.Logger) (serverEnv, error) {
	tr := pkgconfig.NewTracker(logger, nil)
	env := serverEnv{
		Port: pkgconfig.Observe(tr, "port", pkgconfig.LoadInt("PORT", 8080,
			func(p int) error { return pkgconfig.ValidateIntRange(p, 1, 65535) })),
		JWTSecret: pkgconfig.Observe(tr, "jwt_secret", pkgconfig.LoadString("JWT_SECRET", "", nil)),
		Version:   pkgconfig.Observe(tr, "version", pkgconfig.LoadString("VERSION", "dev", nil)),
		MaxBodyBytes: pkgconfig.Observe(tr, "max_body_bytes", pkgconfig.LoadInt("MAX_BODY_BYTES", 1<<20,
			func(n int) error { return pkgconfig.ValidateIntRange(n, 1<<10, 32<<20) })),
		RequestTimeout: pkgconfig.Observe(tr, "request_timeout", pkgconfig.LoadDuration("REQUEST_TIMEOUT", 30*time.Second,
			func(d time.Duration) error { return pkgconfig.ValidateDuration(d, time.Second, 5*time.Minute) })),
		EventRPS: pkgconfig.Observe(tr, "event_rate_limit_rps", pkgconfig.LoadInt("EVENT_RATE_LIMIT_RPS", 20,
			func(n int) error { return pkgconfig.ValidateIntRange(n, 0, 10000) })),
		EventBurst: pkgconfig.Observe(tr, "event_rate_limit_burst", pkgconfig.LoadInt("EVENT_RATE_LIMIT_BURST", 40,
			func(n int) error { return pkgconfig.ValidateIntRange(n, 1, 10000) })),
	}
	tr.Finish()
	return env, validateJWTSecret(env.JWTSecret)
}

var weakSecrets = []string{"secret", "password", "test", "admin", "default", "changeme"}

// validateJWTSecret requires 32 characters and rejects well-known values.
func validateJWTSecret(secret string) error {
	if secret == "" {
		return errors.New("JWT_SECRET must be set")
	}
	if len(secret) < 32 {
		return errors.New("JWT_SECRET must be at least 32 characters")
	}
	for _, weak := range weakSecrets {
		if secret == weak || secret == weak+"123" {
			return errors.New("JWT_SECRET must not be a common weak value")
		}
	}
	return nil
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	senv, err := loadServerEnv(logger)
	if err != nil {
		return err
	}

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

	go metrics.CollectDBStats(ctx, core.DB, dbStatsInterval)

	api := httpapi.API{
		Logs:              core.Logs,
		Gateway:           core.Gateway,
		GatewayState:      core.Gateway,
		GatewayConfigured: core.GatewayConfig.Configured(),
		Events:            core.Ingestor,
		DB:                core.DB,
		Version:           senv.Version,
		JWTSecret:         []byte(senv.JWTSecret),
		Logger:            logger,
		MaxBodyBytes:      int64(senv.MaxBodyBytes),
		RequestTimeout:    senv.RequestTimeout,
	}
	if senv.EventRPS > 0 {
		api.EventLimiter = httpapi.NewRateLimiter(float64(senv.EventRPS), senv.EventBurst)
	}

	addr := fmt.Sprintf(":%d", senv.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", slog.String("addr", addr), slog.String("version", senv.Version))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
