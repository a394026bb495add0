package deliverylog

import (
	"net/http"

	"engage-notify/internal/handler/http/pathutil"
	"engage-notify/internal/handler/http/respond"
)

// StatsHandler serves GET /logs/stats?days (default 30).
type StatsHandler struct{ Logs Reader }

func (h StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	days, err := pathutil.QueryInt(r.URL.Query(), "days", 30, 1, 365)
	if err != nil {
		respond.SafeError(w, http.StatusBadRequest, err)
		return
	}
	stats, err := h.Logs.Stats(r.Context(), days)
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	respond.JSON(w, http.StatusOK, StatsResponse{Days: days, LogStats: stats})
}

// ErrorsHandler serves GET /logs/errors?limit (default 10).
type ErrorsHandler struct{ Logs Reader }

func (h ErrorsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	limit, err := pathutil.QueryInt(r.URL.Query(), "limit", 10, 1, 100)
	if err != nil {
		respond.SafeError(w, http.StatusBadRequest, err)
		return
	}
	items, err := h.Logs.RecentErrors(r.Context(), limit)
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	respond.JSON(w, http.StatusOK, toDTOs(items))
}

// ScheduledHandler serves GET /logs/scheduled?limit (default 100).
type ScheduledHandler struct{ Logs Reader }

func (h ScheduledHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	limit, err := pathutil.QueryInt(r.URL.Query(), "limit", 100, 1, maxLimit)
	if err != nil {
		respond.SafeError(w, http.StatusBadRequest, err)
		return
	}
	items, err := h.Logs.ListScheduled(r.Context(), limit)
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	respond.JSON(w, http.StatusOK, toDTOs(items))
}
