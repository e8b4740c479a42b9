package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	predictions    *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	compositeScore prometheus.Gauge
	activeAlerts   prometheus.Gauge
	latency        *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		predictions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "astrosense_predictions_total",
				Help: "Total number of sector predictions produced",
			},
			[]string{"sector"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "astrosense_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		compositeScore: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "astrosense_composite_score",
				Help: "Last computed composite impact score",
			},
		),
		activeAlerts: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "astrosense_active_alerts",
				Help: "Number of unexpired alerts",
			},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "astrosense_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordPrediction counts one produced prediction for a sector.
func (r *Recorder) RecordPrediction(sector string) {
	r.predictions.WithLabelValues(sector).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordCompositeScore records the latest composite score.
func (r *Recorder) RecordCompositeScore(score float64) {
	r.compositeScore.Set(score)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// SetActiveAlerts records the current active alert count.
func (r *Recorder) SetActiveAlerts(n int) {
	r.activeAlerts.Set(float64(n))
}
