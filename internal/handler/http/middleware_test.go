package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engage-notify/internal/handler/http/requestid"
	"engage-notify/internal/observability/logging"
	"engage-notify/internal/observability/metrics"
)

func jsonLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

/* ─── 1. Chain ─── */

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { order = append(order, "handler") }),
		mw("outer"), mw("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}

/* ─── 2. Logging ─── */

func TestLogging_LevelByStatus(t *testing.T) {
	tests := []struct {
		status    int
		wantLevel string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusNotFound, "WARN"},
		{http.StatusBadGateway, "ERROR"},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var buf bytes.Buffer
			h := requestid.Middleware(Logging(jsonLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("body"))
			})))
			req := httptest.NewRequest(http.MethodGet, "/logs?limit=5", nil)
			req.Header.Set(requestid.Header, "req-1")
			h.ServeHTTP(httptest.NewRecorder(), req)

			lines := logLines(t, &buf)
			require.Len(t, lines, 1)
			line := lines[0]
			assert.Equal(t, tt.wantLevel, line["level"])
			assert.Equal(t, "request completed", line["msg"])
			assert.Equal(t, "req-1", line["request_id"])
			assert.Equal(t, "/logs", line["path"])
			assert.EqualValues(t, tt.status, line["status"])
			assert.EqualValues(t, 4, line["bytes"])
		})
	}
}

func TestLogging_ScopedLoggerInContext(t *testing.T) {
	var buf bytes.Buffer
	h := requestid.Middleware(Logging(jsonLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logging.FromContext(r.Context()).Info("inside handler")
		w.WriteHeader(http.StatusNoContent)
	})))
	req := httptest.NewRequest(http.MethodGet, "/logs", nil)
	req.Header.Set(requestid.Header, "req-2")
	h.ServeHTTP(httptest.NewRecorder(), req)

	lines := logLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "inside handler", lines[0]["msg"])
	assert.Equal(t, "req-2", lines[0]["request_id"])
}

/* ─── 3. Recover ─── */

func TestRecover(t *testing.T) {
	var buf bytes.Buffer
	h := Recover(jsonLogger(&buf))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("nil order snapshot")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/events/order-status", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
	lines := logLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "panic recovered", lines[0]["msg"])
	assert.Equal(t, "nil order snapshot", lines[0]["panic"])
	assert.Contains(t, lines[0]["stack"], "TestRecover")
}

func TestRecover_AbortHandlerPropagates(t *testing.T) {
	h := Recover(slog.New(slog.NewTextHandler(io.Discard, nil)))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

/* ─── 4. LimitRequestBody ─── */

func TestLimitRequestBody(t *testing.T) {
	var readErr error
	h := LimitRequestBody(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/events/account", strings.NewReader("0123456789")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, "declared length over the cap")

	req := httptest.NewRequest(http.MethodPost, "/events/account", io.NopCloser(strings.NewReader("0123456789")))
	req.ContentLength = -1
	h.ServeHTTP(httptest.NewRecorder(), req)
	var tooBig *http.MaxBytesError
	assert.ErrorAs(t, readErr, &tooBig, "streamed body over the cap")

	readErr = nil
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/events/account", strings.NewReader("small")))
	assert.NoError(t, readErr)
}

/* ─── 5. Metrics ─── */

func TestMetrics_RouteLabels(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /logs/{id}", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("{}")) })
	h := Metrics(mux)

	routed := metrics.HTTPRequestsTotal.WithLabelValues("GET", "/logs/{id}", "200")
	unrouted := metrics.HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404")
	beforeRouted, beforeUnrouted := testutil.ToFloat64(routed), testutil.ToFloat64(unrouted)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/logs/17", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/logs/18", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/wp-admin", nil))

	assert.Equal(t, beforeRouted+2, testutil.ToFloat64(routed))
	assert.Equal(t, beforeUnrouted+1, testutil.ToFloat64(unrouted))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.HTTPRequestsInFlight))
}

/* ─── 6. Timeout ─── */

func TestTimeout(t *testing.T) {
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
			w.WriteHeader(http.StatusOK)
		}
	})
	rec := httptest.NewRecorder()
	Timeout(20*time.Millisecond)(slow).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/gateway/templates", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, timeoutBody, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestTimeout_FastHandler(t *testing.T) {
	fast := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	rec := httptest.NewRecorder()
	Timeout(time.Second)(fast).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/events/account", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

/* ─── 7. RateLimiter ─── */

func TestRateLimiter(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 2)
	rl.now = func() time.Time { return now }
	h := rl.Limit(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusAccepted) }))

	call := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/events/order-status", nil)
		req.RemoteAddr = ip + ":4711"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusAccepted, call("10.0.0.1"))
	assert.Equal(t, http.StatusAccepted, call("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1"), "burst spent")
	assert.Equal(t, http.StatusAccepted, call("10.0.0.2"), "other clients unaffected")

	now = now.Add(time.Second)
	assert.Equal(t, http.StatusAccepted, call("10.0.0.1"), "token refilled")

	now = now.Add(11 * time.Minute)
	call("10.0.0.3")
	rl.mu.Lock()
	assert.Len(t, rl.clients, 1, "idle clients forgotten")
	rl.mu.Unlock()
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		xff    string
		realIP string
		remote string
		wantIP string
	}{
		{"forwarded first hop", "203.0.113.7, 10.0.0.1", "", "10.0.0.1:80", "203.0.113.7"},
		{"bad forwarded falls through", "junk", "198.51.100.2", "10.0.0.1:80", "198.51.100.2"},
		{"socket peer", "", "", "192.0.2.9:5555", "192.0.2.9"},
		{"peer without port", "", "", "192.0.2.9", "192.0.2.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			assert.Equal(t, tt.wantIP, clientIP(req))
		})
	}
}
