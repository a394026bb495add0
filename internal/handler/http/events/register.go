// Package events accepts order and account webhooks and hands them to the
// event ingestor.
package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"engage-notify/internal/handler/http/auth"
	"engage-notify/internal/handler/http/respond"
	"engage-notify/internal/infra/eventsource"
	"engage-notify/internal/observability/logging"
)

// Register mounts the webhook routes. wrap, when set, decorates both
// handlers (the API uses it for rate limiting).
func Register(mux *http.ServeMux, h eventsource.Handler, wrap func(http.Handler) http.Handler) {
	if wrap == nil {
		wrap = func(next http.Handler) http.Handler { return next }
	}
	mux.Handle("POST /events/order-status", wrap(Webhook{Handle: h.HandleStatusChange}))
	mux.Handle("POST /events/account", wrap(Webhook{Handle: h.HandleAccountEvent}))
}

// Accepted is the body of a 202 reply.
type Accepted struct {
	Accepted bool `json:"accepted"`
}

// Webhook reads the raw body and passes it to Handle. Dispatch continues
// if the caller hangs up mid request.
type Webhook struct {
	Handle func(ctx context.Context, data []byte) error
}

func (h Webhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			respond.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		respond.Error(w, http.StatusBadRequest, "cannot read request body")
		return
	}
	if len(body) == 0 {
		respond.Error(w, http.StatusBadRequest, "request body is required")
		return
	}

	if err := h.Handle(context.WithoutCancel(r.Context()), body); err != nil {
		if errors.Is(err, eventsource.ErrInvalidEvent) {
			logger := logging.FromContext(r.Context())
			if claims := auth.ClaimsFromContext(r.Context()); claims != nil {
				logger = logger.With(slog.String("subject", claims.Subject))
			}
			logger.Warn("webhook rejected", slog.String("path", r.URL.Path), slog.Any("error", err))
			respond.SafeError(w, http.StatusBadRequest, err)
			return
		}
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	respond.JSON(w, http.StatusAccepted, Accepted{Accepted: true})
}
