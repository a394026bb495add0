package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"engage-notify/internal/handler/http/auth"
	"engage-notify/internal/handler/http/deliverylog"
	"engage-notify/internal/handler/http/events"
	"engage-notify/internal/handler/http/gatewayapi"
	"engage-notify/internal/handler/http/requestid"
	"engage-notify/internal/infra/eventsource"
	"engage-notify/internal/observability/tracing"
)

// API is the admin and webhook server.
type API struct {
	Logs              deliverylog.Reader
	Gateway           gatewayapi.Gateway
	GatewayState      GatewayState
	GatewayConfigured bool
	Events            eventsource.Handler
	DB                DB
	Version           string
	JWTSecret         []byte
	Logger            *slog.Logger

	// MaxBodyBytes defaults to 1 MiB.
	MaxBodyBytes int64
	// RequestTimeout defaults to 30s.
	RequestTimeout time.Duration
	// EventLimiter throttles webhook callers when set.
	EventLimiter *RateLimiter
}

// Handler builds the route table and middleware chain.
func (a API) Handler() http.Handler {
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxBody := a.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	timeout := a.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	mux := http.NewServeMux()
	mux.Handle("GET /health", &HealthHandler{
		DB:                a.DB,
		Gateway:           a.GatewayState,
		GatewayConfigured: a.GatewayConfigured,
		Version:           a.Version,
	})
	mux.Handle("GET /ready", &ReadyHandler{DB: a.DB})
	mux.Handle("GET /live", LiveHandler{})
	mux.Handle("GET /metrics", promhttp.Handler())

	if a.Logs != nil {
		deliverylog.Register(mux, a.Logs)
	}
	if a.Gateway != nil {
		gatewayapi.Register(mux, a.Gateway)
	}
	if a.Events != nil {
		var wrap func(http.Handler) http.Handler
		if a.EventLimiter != nil {
			wrap = a.EventLimiter.Limit
		}
		events.Register(mux, a.Events, wrap)
	}

	return Chain(mux,
		requestid.Middleware,
		Logging(logger),
		Recover(logger),
		auth.Authz(a.JWTSecret, logger),
		LimitRequestBody(maxBody),
		Timeout(timeout),
		tracing.Middleware,
		Metrics,
	)
}
