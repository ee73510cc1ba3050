package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "reviewground"

// Metrics groups the pipeline's prometheus collectors. A nil *Metrics is
// valid and records nothing, so components can be built without telemetry.
type Metrics struct {
	registry *prometheus.Registry

	// oracleRequests counts calls to external models.
	// Labels: oracle (embedding, generation, structured, nli), status (ok, error, malformed)
	oracleRequests *prometheus.CounterVec

	// oracleLatency measures external model call latency.
	// Labels: oracle
	oracleLatency *prometheus.HistogramVec

	// verdicts counts detector verdicts.
	// Labels: method, verdict
	verdicts *prometheus.CounterVec

	// indexedChunks counts chunks written to the vector index.
	indexedChunks prometheus.Counter

	// indexSkips counts papers that were already indexed.
	indexSkips prometheus.Counter

	// experiments counts finished paper experiments.
	// Labels: status (ok, error)
	experiments *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		oracleRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "requests_total",
			Help:      "External model requests by oracle and status",
		}, []string{"oracle", "status"}),
		oracleLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "latency_seconds",
			Help:      "External model request latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"oracle"}),
		verdicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "verdicts_total",
			Help:      "Detector verdicts by method and label",
		}, []string{"method", "verdict"}),
		indexedChunks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "chunks_total",
			Help:      "Chunks written to the vector index",
		}),
		indexSkips: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "skips_total",
			Help:      "Index requests skipped because the paper was already indexed",
		}),
		experiments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "experiment",
			Name:      "papers_total",
			Help:      "Paper experiments by status",
		}, []string{"status"}),
	}
}

func (m *Metrics) ObserveOracle(oracle, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.oracleRequests.WithLabelValues(oracle, status).Inc()
	m.oracleLatency.WithLabelValues(oracle).Observe(elapsed.Seconds())
}

func (m *Metrics) RecordVerdict(method, verdict string) {
	if m == nil {
		return
	}
	m.verdicts.WithLabelValues(method, verdict).Inc()
}

func (m *Metrics) RecordIndexed(chunks int) {
	if m == nil {
		return
	}
	m.indexedChunks.Add(float64(chunks))
}

func (m *Metrics) RecordIndexSkip() {
	if m == nil {
		return
	}
	m.indexSkips.Inc()
}

func (m *Metrics) RecordExperiment(status string) {
	if m == nil {
		return
	}
	m.experiments.WithLabelValues(status).Inc()
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
