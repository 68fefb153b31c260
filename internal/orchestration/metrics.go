package orchestration

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the gateway client.
type Metrics struct {
	Attempts *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewMetrics registers gateway metrics once per process.
//
// Metrics:
//   - orchestration_attempts_total{step,outcome}
//   - orchestration_request_duration_seconds{step}
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			Attempts: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "orchestration_attempts_total",
					Help: "Total number of orchestration HTTP attempts",
				},
				[]string{"step", "outcome"},
			),
			Duration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "orchestration_request_duration_seconds",
					Help:    "Duration of orchestration HTTP attempts in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"step"},
			),
		}
	})
	return globalMetrics
}
