package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"engage-notify/internal/app"
	pkgconfig "engage-notify/internal/pkg/config"
)

// queueLener is implemented by queues that can report their size.
type queueLener interface {
	Len(ctx context.Context) (int64, error)
}

// StatusResponse is served on GET /status.
type StatusResponse struct {
	SchedulerBackend  string            `json:"scheduler_backend"`
	GatewayConfigured bool              `json:"gateway_configured"`
	AlertsEnabled     bool              `json:"alerts_enabled"`
	Breakers          map[string]string `json:"breakers"`
	QueueLength       *int64            `json:"queue_length,omitempty"`
}

// metricsPort reads METRICS_PORT (default 9090).
func metricsPort(logger *slog.Logger) int {
	tr := pkgconfig.NewTracker(logger, nil)
	return pkgconfig.Observe(tr, "metrics_port", pkgconfig.LoadInt("METRICS_PORT", 9090,
		func(p int) error { return pkgconfig.ValidateIntRange(p, 1024, 65535) }))
}

func breakerState(open bool) string {
	if open {
		return "open"
	}
	return "closed"
}

func statusHandler(core *app.Core, env app.Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := StatusResponse{
			SchedulerBackend:  env.SchedulerBackend,
			GatewayConfigured: core.GatewayConfig.Configured(),
			AlertsEnabled:     core.Alerter.Enabled(),
			Breakers: map[string]string{
				"gateway":  breakerState(core.Gateway.BreakerOpen()),
				"database": breakerState(core.DBBreaker.IsOpen()),
			},
		}
		if q, ok := core.Queue.(queueLener); ok {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if n, err := q.Len(ctx); err == nil {
				resp.QueueLength = &n
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// serveMetrics exposes GET /metrics and GET /status on port until ctx is
// cancelled.
func serveMetrics(ctx context.Context, logger *slog.Logger, port int, core *app.Core, env app.Env) error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /status", statusHandler(core, env))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics server starting", slog.Int("port", port))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown error", slog.Any("error", err))
		return nil
	}
	logger.Info("metrics server stopped")
	return nil
}
