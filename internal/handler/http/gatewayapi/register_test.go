package gatewayapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engage-notify/internal/domain/entity"
	"engage-notify/internal/infra/gateway"
)

type stubGateway struct {
	report    gateway.AccessReport
	templates []gateway.Template
	err       error
}

func (s stubGateway) TestFullAccess(context.Context) gateway.AccessReport { return s.report }

func (s stubGateway) ListTemplates(context.Context) ([]gateway.Template, error) {
	return s.templates, s.err
}

func get(t *testing.T, gw Gateway, target string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	Register(mux, gw)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestDiagnostics(t *testing.T) {
	tests := []struct {
		name   string
		report gateway.AccessReport
		wantOK bool
	}{
		{"all stages pass", gateway.AccessReport{Profile: true, Account: true, Inbox: true, Messages: []string{}}, true},
		{"inbox missing", gateway.AccessReport{Profile: true, Account: true, Messages: []string{"Inbox: Inbox not found."}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, stubGateway{report: tt.report}, "/gateway/diagnostics")
			require.Equal(t, http.StatusOK, rec.Code)

			var body DiagnosticsResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantOK, body.OK)
			assert.Equal(t, tt.report.Messages, body.Messages)
		})
	}
}

func TestTemplates(t *testing.T) {
	gw := stubGateway{templates: []gateway.Template{
		{Name: "order_shipped_v2", Status: "APPROVED", Variables: []int{1, 2}},
		{Name: "order_refunded", Status: "PENDING"},
	}}

	rec := get(t, gw, "/gateway/templates")
	require.Equal(t, http.StatusOK, rec.Code)
	var all []gateway.Template
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 2)

	rec = get(t, gw, "/gateway/templates?status=approved")
	var approved []gateway.Template
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &approved))
	require.Len(t, approved, 1)
	assert.Equal(t, "order_shipped_v2", approved[0].Name)

	rec = get(t, stubGateway{}, "/gateway/templates")
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestTemplates_Errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"not configured", &entity.ConfigurationError{Field: "api_token", Message: "API access token is not configured."}, http.StatusServiceUnavailable},
		{"gateway down", &entity.TransportError{StatusCode: 503, Message: "HTTP 503"}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, stubGateway{err: tt.err}, "/gateway/templates")
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}
