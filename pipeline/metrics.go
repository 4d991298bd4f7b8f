package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics records workflow execution metrics under the
// "ria_pipeline" namespace:
//
//   - inflight_nodes (gauge): nodes currently executing
//   - step_latency_ms (histogram, labels node_id, status): per-attempt duration
//   - retries_total (counter, labels node_id, reason): retry attempts
//   - runs_total (counter, label status): finished runs
//
// Expose them with promhttp.HandlerFor on the same registry.
type PrometheusMetrics struct {
	inflightNodes prometheus.Gauge
	stepLatency   *prometheus.HistogramVec
	retries       *prometheus.CounterVec
	runs          *prometheus.CounterVec
}

// NewPrometheusMetrics registers the metrics with registry, or with the
// default registerer when registry is nil.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &PrometheusMetrics{
		inflightNodes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "ria_pipeline",
			Name:      "inflight_nodes",
			Help:      "Number of workflow nodes currently executing",
		}),
		stepLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ria_pipeline",
			Name:      "step_latency_ms",
			Help:      "Node attempt duration in milliseconds",
			Buckets:   []float64{1, 10, 50, 100, 500, 1000, 5000, 10000, 30000, 60000},
		}, []string{"node_id", "status"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ria_pipeline",
			Name:      "retries_total",
			Help:      "Node retry attempts",
		}, []string{"node_id", "reason"}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ria_pipeline",
			Name:      "runs_total",
			Help:      "Finished workflow runs by outcome",
		}, []string{"status"}),
	}
}

// RecordStepLatency observes one node attempt. status is success, error or timeout.
func (m *PrometheusMetrics) RecordStepLatency(nodeID string, d time.Duration, status string) {
	if m == nil {
		return
	}
	m.stepLatency.WithLabelValues(nodeID, status).Observe(float64(d.Milliseconds()))
}

// IncrementRetries counts a retry of nodeID.
func (m *PrometheusMetrics) IncrementRetries(nodeID, reason string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(nodeID, reason).Inc()
}

// RecordRun counts a finished run.
func (m *PrometheusMetrics) RecordRun(status string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
}

func (m *PrometheusMetrics) nodeStarted() {
	if m != nil {
		m.inflightNodes.Inc()
	}
}

func (m *PrometheusMetrics) nodeFinished() {
	if m != nil {
		m.inflightNodes.Dec()
	}
}
