package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// requestsTotal counts gateway requests by endpoint and response code.
// code is the HTTP status, "error" for transport failures, "breaker_open"
// when the breaker rejected the call and "429" for local rate limiting.
var requestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "engage_gateway_requests_total",
		Help: "Total number of Engage gateway requests by endpoint and response code",
	},
	[]string{"endpoint", "code"},
)
