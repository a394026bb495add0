package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	authzDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engage_authz_decisions_total",
			Help: "Authorization decisions on the admin API",
		},
		[]string{"result"}, // allowed | unauthorized | forbidden
	)

	authzCheckDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "engage_authz_check_duration_seconds",
			Help:    "Time spent validating bearer tokens",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01},
		},
	)
)
