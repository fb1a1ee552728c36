package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels. Engine error kinds are recorded by their String() form.
const (
	OutcomeOK = "ok"
)

// Metrics owns a dedicated registry so tests and the process never share
// global collector state.
type Metrics struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kahaf_credential_operations_total",
				Help: "Total number of credential operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kahaf_credential_operation_duration_seconds",
				Help:    "Credential operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
	m.registry.MustRegister(
		m.operations,
		m.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Record counts one finished operation.
func (m *Metrics) Record(operation, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.duration.WithLabelValues(operation).Observe(took.Seconds())
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
