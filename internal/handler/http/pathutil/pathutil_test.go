package pathutil

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseID(t *testing.T) {
	id, err := ParseID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, raw := range []string{"", "0", "-3", "abc", "1.5", "99999999999999999999"} {
		_, err := ParseID(raw)
		assert.ErrorIs(t, err, ErrInvalidID, raw)
	}
}

func TestQueryInt(t *testing.T) {
	q := url.Values{"limit": {"25"}, "bad": {"x"}, "big": {"5000"}}

	n, err := QueryInt(q, "limit", 50, 1, 500)
	require.NoError(t, err)
	assert.Equal(t, 25, n)

	n, err = QueryInt(q, "offset", 0, 0, 1<<30)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = QueryInt(q, "bad", 1, 1, 10)
	assert.EqualError(t, err, "bad must be an integer")

	_, err = QueryInt(q, "big", 1, 1, 500)
	assert.EqualError(t, err, "big must be between 1 and 500")
}

func TestRouteLabel(t *testing.T) {
	var got string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /logs/{id}", func(_ http.ResponseWriter, r *http.Request) { got = RouteLabel(r) })
	mux.HandleFunc("/health", func(_ http.ResponseWriter, r *http.Request) { got = RouteLabel(r) })

	mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/logs/7", nil))
	assert.Equal(t, "/logs/{id}", got)

	mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, "/health", got)

	assert.Equal(t, Unmatched, RouteLabel(httptest.NewRequest(http.MethodGet, "/nowhere", nil)))
}
