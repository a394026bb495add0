// Package http holds the admin API server pieces: middleware, probes and
// the route table. Resource handlers live in sub packages.
package http

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"engage-notify/internal/handler/http/respond"
)

// Check states.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthResponse is the /health body.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Checks    map[string]CheckStatus `json:"checks"`
	Version   string                 `json:"version"`
}

// CheckStatus is one entry of HealthResponse.Checks.
type CheckStatus struct {
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// DB is the subset of *sql.DB the probes use.
type DB interface {
	PingContext(ctx context.Context) error
	Stats() sql.DBStats
}

// GatewayState reports the gateway client's breaker. *gateway.Client
// implements it.
type GatewayState interface {
	BreakerOpen() bool
}

// HealthHandler serves /health. A failing database makes the service
// unhealthy; gateway trouble only degrades it.
type HealthHandler struct {
	DB                DB
	Gateway           GatewayState
	GatewayConfigured bool
	Version           string
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]CheckStatus{
		"database": h.checkDatabase(ctx),
		"gateway":  h.checkGateway(),
	}

	status, code := StatusHealthy, http.StatusOK
	for _, c := range checks {
		switch c.Status {
		case StatusUnhealthy:
			status, code = StatusUnhealthy, http.StatusServiceUnavailable
		case StatusDegraded:
			if status == StatusHealthy {
				status = StatusDegraded
			}
		}
	}

	w.Header().Set("Cache-Control", "no-store")
	respond.JSON(w, code, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
		Version:   h.Version,
	})
}

func (h *HealthHandler) checkDatabase(ctx context.Context) CheckStatus {
	if h.DB == nil {
		return CheckStatus{Status: StatusUnhealthy, Message: "not configured"}
	}
	if err := h.DB.PingContext(ctx); err != nil {
		slog.Default().Warn("database ping failed", slog.String("error", respond.SanitizeError(err)))
		return CheckStatus{Status: StatusUnhealthy, Message: "ping failed"}
	}

	s := h.DB.Stats()
	details := map[string]any{
		"max_open_connections": s.MaxOpenConnections,
		"open_connections":     s.OpenConnections,
		"in_use":               s.InUse,
		"idle":                 s.Idle,
		"wait_count":           s.WaitCount,
		"wait_duration_ms":     s.WaitDuration.Milliseconds(),
	}
	if s.MaxOpenConnections > 0 {
		util := float64(s.InUse) / float64(s.MaxOpenConnections) * 100
		details["utilization_percent"] = util
		if util >= 80 {
			return CheckStatus{Status: StatusDegraded, Message: "connection pool utilization above 80%", Details: details}
		}
	}
	return CheckStatus{Status: StatusHealthy, Details: details}
}

func (h *HealthHandler) checkGateway() CheckStatus {
	switch {
	case !h.GatewayConfigured:
		return CheckStatus{Status: StatusDegraded, Message: "credentials not configured"}
	case h.Gateway != nil && h.Gateway.BreakerOpen():
		return CheckStatus{Status: StatusDegraded, Message: "circuit breaker open"}
	default:
		return CheckStatus{Status: StatusHealthy}
	}
}

// ReadyHandler answers 200 once the database accepts pings.
type ReadyHandler struct {
	DB DB
}

func (h *ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.DB == nil {
		http.Error(w, "database not configured", http.StatusServiceUnavailable)
		return
	}
	if err := h.DB.PingContext(ctx); err != nil {
		http.Error(w, "database not ready", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("ready"))
}

// LiveHandler always answers 200.
type LiveHandler struct{}

func (LiveHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("alive"))
}
