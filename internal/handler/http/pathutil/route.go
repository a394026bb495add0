package pathutil

import (
	"net/http"
	"strings"
)

// Unmatched labels requests that no route pattern claimed.
const Unmatched = "unmatched"

// RouteLabel returns the mux pattern that served r without its method
// prefix, e.g. "/logs/{id}". It is only set after routing, so read it from
// the request the mux handed to the handler.
func RouteLabel(r *http.Request) string {
	if r.Pattern == "" {
		return Unmatched
	}
	p := r.Pattern
	if i := strings.IndexByte(p, ' '); i >= 0 {
		p = strings.TrimSpace(p[i+1:])
	}
	return p
}
