package deliverylog

import (
	"fmt"
	"net/http"
	"strings"

	"engage-notify/internal/domain/entity"
	"engage-notify/internal/handler/http/pathutil"
	"engage-notify/internal/handler/http/respond"
)

const (
	defaultLimit = 20
	maxLimit     = 500
)

var (
	listStatuses = map[string]bool{
		entity.StatusPending:   true,
		entity.StatusSuccess:   true,
		entity.StatusError:     true,
		entity.StatusRetry:     true,
		entity.StatusScheduled: true,
	}
	listOrderBy = map[string]bool{"id": true, "order_id": true, "status": true, "created_at": true}
)

// ListHandler serves GET /logs?order_id&status&limit&offset&orderby&order.
type ListHandler struct{ Logs Reader }

func (h ListHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		respond.SafeError(w, http.StatusBadRequest, err)
		return
	}
	items, total, err := h.Logs.List(r.Context(), f)
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	respond.JSON(w, http.StatusOK, ListResponse{
		Items:  toDTOs(items),
		Total:  total,
		Limit:  f.Limit,
		Offset: f.Offset,
	})
}

func parseFilter(r *http.Request) (entity.LogFilter, error) {
	q := r.URL.Query()
	var f entity.LogFilter

	if raw := q.Get("order_id"); raw != "" {
		id, err := pathutil.ParseID(raw)
		if err != nil {
			return f, fmt.Errorf("order_id is invalid")
		}
		f.OrderID = id
	}

	f.Status = strings.ToLower(strings.TrimSpace(q.Get("status")))
	if f.Status != "" && !listStatuses[f.Status] {
		return f, fmt.Errorf("status %q is invalid", f.Status)
	}

	var err error
	if f.Limit, err = pathutil.QueryInt(q, "limit", defaultLimit, 1, maxLimit); err != nil {
		return f, err
	}
	if f.Offset, err = pathutil.QueryInt(q, "offset", 0, 0, 1<<30); err != nil {
		return f, err
	}

	f.OrderBy = strings.ToLower(q.Get("orderby"))
	if f.OrderBy == "" {
		f.OrderBy = "created_at"
	}
	if !listOrderBy[f.OrderBy] {
		return f, fmt.Errorf("orderby %q is invalid", f.OrderBy)
	}
	f.Order = strings.ToUpper(q.Get("order"))
	if f.Order == "" {
		f.Order = "DESC"
	}
	if f.Order != "ASC" && f.Order != "DESC" {
		return f, fmt.Errorf("order must be ASC or DESC")
	}
	return f, nil
}
