package deliverylog

import (
	"net/http"

	"engage-notify/internal/handler/http/pathutil"
	"engage-notify/internal/handler/http/respond"
)

// GetHandler serves GET /logs/{id}.
type GetHandler struct{ Logs Reader }

func (h GetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, err := pathutil.ParseID(r.PathValue("id"))
	if err != nil {
		respond.SafeError(w, http.StatusBadRequest, err)
		return
	}
	a, err := h.Logs.Get(r.Context(), id)
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	if a == nil {
		respond.Error(w, http.StatusNotFound, "log not found")
		return
	}
	respond.JSON(w, http.StatusOK, toDTO(a))
}
