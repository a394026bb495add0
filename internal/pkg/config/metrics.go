package config

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ConfigMetrics tracks configuration loads for one component. The metric
// names are prefixed with the component name:
//
//	{component}_config_load_timestamp
//	{component}_config_validation_errors_total{field}
//	{component}_config_fallbacks_total{field,type}
//	{component}_config_fallback_active
type ConfigMetrics struct {
	LoadTimestamp         prometheus.Gauge
	ValidationErrorsTotal *prometheus.CounterVec
	FallbacksTotal        *prometheus.CounterVec
	FallbackActive        prometheus.Gauge

	component string
}

// NewConfigMetrics registers the metric set with the default registry. It
// panics when called twice with the same component name.
func NewConfigMetrics(component string) *ConfigMetrics {
	return &ConfigMetrics{
		LoadTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Name: component + "_config_load_timestamp",
			Help: "Unix timestamp of the last " + component + " configuration load",
		}),
		ValidationErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: component + "_config_validation_errors_total",
			Help: "Total " + component + " configuration validation errors by field",
		}, []string{"field"}),
		FallbacksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: component + "_config_fallbacks_total",
			Help: "Total " + component + " configuration fallbacks by field and kind",
		}, []string{"field", "type"}),
		FallbackActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: component + "_config_fallback_active",
			Help: "1 if any " + component + " configuration fallback is active",
		}),
		component: component,
	}
}

func (m *ConfigMetrics) RecordLoadTimestamp() {
	m.LoadTimestamp.SetToCurrentTime()
}

func (m *ConfigMetrics) RecordValidationError(field string) {
	m.ValidationErrorsTotal.WithLabelValues(field).Inc()
}

// RecordFallback counts one replaced value. kind is "default" for env
// fallbacks and "clamp" for settings clamped into range.
func (m *ConfigMetrics) RecordFallback(field, kind string) {
	m.FallbacksTotal.WithLabelValues(field, kind).Inc()
}

// SetFallbackActive sets the gauge for the whole component; scope only
// appears in logs.
func (m *ConfigMetrics) SetFallbackActive(scope string, active bool) {
	if active {
		m.FallbackActive.Set(1)
		return
	}
	m.FallbackActive.Set(0)
}

// Tracker folds a series of Results into logs and metrics so a loader can
// read many variables and publish the fallback state once.
type Tracker struct {
	logger   *slog.Logger
	metrics  *ConfigMetrics
	fallback bool
}

// NewTracker returns a Tracker. metrics may be nil.
func NewTracker(logger *slog.Logger, metrics *ConfigMetrics) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{logger: logger, metrics: metrics}
}

// Observe logs and counts r when it fell back, and returns r.Value.
func Observe[T any](t *Tracker, field string, r Result[T]) T {
	if !r.FallbackApplied {
		return r.Value
	}
	t.fallback = true
	t.logger.Warn("configuration fallback applied",
		slog.String("field", field),
		slog.String("env_key", r.Key),
		slog.String("warning", r.Warning))
	if t.metrics != nil {
		t.metrics.RecordValidationError(field)
		t.metrics.RecordFallback(field, "default")
	}
	return r.Value
}

// FallbackApplied reports whether any observed value fell back.
func (t *Tracker) FallbackApplied() bool { return t.fallback }

// Finish publishes the fallback gauge and load timestamp.
func (t *Tracker) Finish() {
	if t.metrics == nil {
		return
	}
	t.metrics.SetFallbackActive(t.metrics.component, t.fallback)
	t.metrics.RecordLoadTimestamp()
}
