package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// HealthServer serves the worker's probes:
//   - GET /health: liveness, always 200
//   - GET /health/ready: 200 once SetReady(true) was called and no critical
//     breaker is open
//   - GET /health/{name}: 503 while the named breaker is open
type HealthServer struct {
	addr    string
	logger  *slog.Logger
	isReady atomic.Bool
	server  *http.Server

	mu       sync.RWMutex
	breakers map[string]breakerCheck
}

type breakerCheck struct {
	open     func() bool
	critical bool
}

type healthResponse struct {
	Status   string            `json:"status"`
	Breakers map[string]string `json:"breakers,omitempty"`
}

func NewHealthServer(addr string, logger *slog.Logger) *HealthServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthServer{
		addr:     addr,
		logger:   logger,
		breakers: make(map[string]breakerCheck),
	}
}

// AddBreaker exposes /health/{name}. A critical breaker also fails the
// readiness probe while it is open.
func (h *HealthServer) AddBreaker(name string, open func() bool, critical bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.breakers[name] = breakerCheck{open: open, critical: critical}
}

// Handler returns the probe mux.
func (h *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleLiveness)
	mux.HandleFunc("GET /health/ready", h.handleReadiness)
	mux.HandleFunc("GET /health/{name}", h.handleBreaker)
	return mux
}

// Start serves until ctx is cancelled, then shuts down within 5 seconds and
// returns http.ErrServerClosed.
func (h *HealthServer) Start(ctx context.Context) error {
	h.server = &http.Server{
		Addr:         h.addr,
		Handler:      h.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		h.logger.Info("health server starting", slog.String("addr", h.addr))
		errChan <- h.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			h.logger.Error("health server shutdown failed", slog.Any("error", err))
			return err
		}
		h.logger.Info("health server stopped")
		return http.ErrServerClosed
	case err := <-errChan:
		if !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("health server failed", slog.Any("error", err))
		}
		return err
	}
}

func (h *HealthServer) SetReady(ready bool) {
	h.isReady.Store(ready)
	h.logger.Info("health server readiness changed", slog.Bool("ready", ready))
}

func (h *HealthServer) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	h.write(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (h *HealthServer) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	if !h.isReady.Load() {
		h.write(w, http.StatusServiceUnavailable, healthResponse{Status: "not ready"})
		return
	}

	states, degraded := h.breakerStates()
	if degraded {
		h.write(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded", Breakers: states})
		return
	}
	h.write(w, http.StatusOK, healthResponse{Status: "ok", Breakers: states})
}

func (h *HealthServer) handleBreaker(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	h.mu.RLock()
	check, ok := h.breakers[name]
	h.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	if check.open() {
		h.write(w, http.StatusServiceUnavailable, healthResponse{
			Status:   "unavailable",
			Breakers: map[string]string{name: "open"},
		})
		return
	}
	h.write(w, http.StatusOK, healthResponse{
		Status:   "ok",
		Breakers: map[string]string{name: "closed"},
	})
}

// breakerStates reports every breaker and whether a critical one is open.
func (h *HealthServer) breakerStates() (map[string]string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.breakers) == 0 {
		return nil, false
	}

	states := make(map[string]string, len(h.breakers))
	degraded := false
	for name, check := range h.breakers {
		if check.open() {
			states[name] = "open"
			degraded = degraded || check.critical
			continue
		}
		states[name] = "closed"
	}
	return states, degraded
}

func (h *HealthServer) write(w http.ResponseWriter, status int, body healthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode health response", slog.Any("error", err))
	}
}
