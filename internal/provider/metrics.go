package provider

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for network-backed providers.
type Metrics struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewMetrics registers provider metrics once per process.
//
// Metrics:
//   - assessment_provider_requests_total{model,outcome}
//   - assessment_provider_request_duration_seconds{model}
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			Requests: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "assessment_provider_requests_total",
					Help: "Total number of assessment provider attempts",
				},
				[]string{"model", "outcome"},
			),
			Duration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "assessment_provider_request_duration_seconds",
					Help:    "Duration of assessment provider attempts in seconds",
					Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
				},
				[]string{"model"},
			),
		}
	})
	return globalMetrics
}
