// Package gatewayapi exposes gateway diagnostics and the template catalogue
// to operators.
package gatewayapi

import (
	"context"
	"net/http"
	"strings"

	"engage-notify/internal/handler/http/respond"
	"engage-notify/internal/infra/gateway"
)

// Gateway is implemented by *gateway.Client.
type Gateway interface {
	TestFullAccess(ctx context.Context) gateway.AccessReport
	ListTemplates(ctx context.Context) ([]gateway.Template, error)
}

// Register mounts the /gateway routes on mux.
func Register(mux *http.ServeMux, gw Gateway) {
	mux.Handle("GET /gateway/diagnostics", DiagnosticsHandler{gw})
	mux.Handle("GET /gateway/templates", TemplatesHandler{gw})
}

// DiagnosticsResponse adds an overall verdict to the access report.
type DiagnosticsResponse struct {
	OK bool `json:"ok"`
	gateway.AccessReport
}

// DiagnosticsHandler checks the token, account and inbox in turn.
type DiagnosticsHandler struct{ GW Gateway }

func (h DiagnosticsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report := h.GW.TestFullAccess(r.Context())
	respond.JSON(w, http.StatusOK, DiagnosticsResponse{
		OK:           report.Profile && report.Account && report.Inbox,
		AccessReport: report,
	})
}

// TemplatesHandler lists the inbox's WhatsApp templates. ?status=approved
// narrows the list.
type TemplatesHandler struct{ GW Gateway }

func (h TemplatesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	templates, err := h.GW.ListTemplates(r.Context())
	if err != nil {
		respond.DomainError(w, err)
		return
	}
	if want := r.URL.Query().Get("status"); want != "" {
		filtered := templates[:0]
		for _, t := range templates {
			if strings.EqualFold(t.Status, want) {
				filtered = append(filtered, t)
			}
		}
		templates = filtered
	}
	if templates == nil {
		templates = []gateway.Template{}
	}
	respond.JSON(w, http.StatusOK, templates)
}
