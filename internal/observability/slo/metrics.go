// Package slo publishes delivery objectives computed from the delivery log.
package slo

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"engage-notify/internal/domain/entity"
)

// Targets.
const (
	// DeliverySuccessSLO is the share of finished attempts that should end
	// in success.
	DeliverySuccessSLO = 0.98

	// WindowDays is the default look-back for the ratios.
	WindowDays = 1
)

var (
	DeliverySuccessRatio = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "slo_delivery_success_ratio",
		Help: "Successful share of finished delivery attempts in the window, target 0.98",
	})

	DeliveryErrorRatio = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "slo_delivery_error_ratio",
		Help: "Failed share of finished delivery attempts in the window",
	})

	DeliveryBacklog = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "slo_delivery_backlog",
		Help: "Unfinished delivery log rows in the window by status",
	}, []string{"status"})
)

// StatsReader is the slice of the delivery log repository Refresh needs.
type StatsReader interface {
	Stats(ctx context.Context, days int) (entity.LogStats, error)
}

// Ratios derives success and error ratios over finished attempts. Pending,
// retry and scheduled rows are not finished. With nothing finished both
// ratios are reported as 1 and 0.
func Ratios(s entity.LogStats) (success, failure float64) {
	finished := s.Success + s.Error
	if finished == 0 {
		return 1, 0
	}
	return float64(s.Success) / float64(finished), float64(s.Error) / float64(finished)
}

// Refresh reads the last days of statistics and updates the gauges.
func Refresh(ctx context.Context, src StatsReader, days int) error {
	stats, err := src.Stats(ctx, days)
	if err != nil {
		return fmt.Errorf("refresh delivery slo: %w", err)
	}
	success, failure := Ratios(stats)
	DeliverySuccessRatio.Set(success)
	DeliveryErrorRatio.Set(failure)
	DeliveryBacklog.WithLabelValues(entity.StatusPending).Set(float64(stats.Pending))
	DeliveryBacklog.WithLabelValues(entity.StatusRetry).Set(float64(stats.Retry))
	DeliveryBacklog.WithLabelValues(entity.StatusScheduled).Set(float64(stats.Scheduled))
	return nil
}
