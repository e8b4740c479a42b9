package metrics

import (
    "sync"

    "github.com/prometheus/client_golang/prometheus"
)

var (
    once sync.Once

    PredictionLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{
            Namespace: "astrosense",
            Subsystem: "prediction",
            Name:      "latency_seconds",
            Help:      "Latency of prediction endpoints",
            Buckets:   prometheus.DefBuckets,
        },
        []string{"endpoint"},
    )

    PredictionErrors = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "astrosense",
            Subsystem: "prediction",
            Name:      "errors_total",
            Help:      "Errors by prediction endpoint",
        },
        []string{"endpoint"},
    )

    FlashAlertLatency = prometheus.NewHistogram(
        prometheus.HistogramOpts{
            Namespace: "astrosense",
            Subsystem: "alerting",
            Name:      "flash_latency_seconds",
            Help:      "Time from flare detection to FLASH alert emission",
            Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30},
        },
    )
)

func Register() {
    once.Do(func() {
        prometheus.MustRegister(PredictionLatency, PredictionErrors, FlashAlertLatency)
    })
}
