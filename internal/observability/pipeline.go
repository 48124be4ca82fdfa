package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics exposes collectors for reconciliation cycles. All
// methods tolerate a nil receiver so wiring stays optional in tests.
type PipelineMetrics struct {
	documents     *prometheus.CounterVec
	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
}

// NewPipelineMetrics registers pipeline collectors against the provided
// registerer. When the registerer is nil the default one is used.
func NewPipelineMetrics(registerer prometheus.Registerer) *PipelineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	documents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "paperledger_documents_total",
		Help: "Documents processed partitioned by kind and outcome.",
	}, []string{"kind", "outcome"})
	cycles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "paperledger_cycles_total",
		Help: "Reconciliation cycles partitioned by status.",
	}, []string{"status"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "paperledger_cycle_duration_seconds",
		Help:    "Duration in seconds of reconciliation cycles.",
		Buckets: prometheus.DefBuckets,
	})
	registerer.MustRegister(documents, cycles, duration)
	return &PipelineMetrics{documents: documents, cycles: cycles, cycleDuration: duration}
}

// CountDocument increments the per-document outcome counter.
func (m *PipelineMetrics) CountDocument(kind, outcome string) {
	if m == nil {
		return
	}
	m.documents.WithLabelValues(kind, outcome).Inc()
}

// ObserveCycle records one completed cycle.
func (m *PipelineMetrics) ObserveCycle(ok bool, d time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if !ok {
		status = "failure"
	}
	m.cycles.WithLabelValues(status).Inc()
	m.cycleDuration.Observe(d.Seconds())
}
