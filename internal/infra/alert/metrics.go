package alert

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultSent      = "sent"
	resultFailed    = "failed"
	resultThrottled = "throttled"
)

var alertsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "engage_failure_alerts_total",
		Help: "Operator alerts about failed notifications by channel and result",
	},
	[]string{"channel", "result"},
)

func recordAlert(channel, result string) {
	alertsTotal.WithLabelValues(channel, result).Inc()
}
