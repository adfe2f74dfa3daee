package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ragpipe/internal/domain"
)

const namespace = "ragpipe"

// Query outcomes recorded by QueryFinished.
const (
	OutcomeAnswered   = "answered"
	OutcomeNoContext  = "no_context"
	OutcomeOutOfScope = "out_of_scope"
	OutcomeFailed     = "failed"
)

// Metrics holds the pipeline collectors registered on one registry. All
// methods are safe on a nil receiver.
type Metrics struct {
	registry       *prometheus.Registry
	documents      *prometheus.CounterVec
	chunks         *prometheus.CounterVec
	queries        *prometheus.CounterVec
	queryDuration  prometheus.Histogram
	retrievalEmpty prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_ingested_total",
			Help:      "Documents processed by ingestion, by final status.",
		}, []string{"status"}),
		chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_total",
			Help:      "Chunks processed by the indexer, by result.",
		}, []string{"result"}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Queries answered, by outcome.",
		}, []string{"outcome"}),
		queryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "End to end query latency.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		retrievalEmpty: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_empty_total",
			Help:      "Retrievals that returned no chunks.",
		}),
	}
	m.registry.MustRegister(m.documents, m.chunks, m.queries, m.queryDuration, m.retrievalEmpty)
	return m
}

func (m *Metrics) DocumentIngested(status domain.DocumentStatus) {
	if m == nil {
		return
	}
	m.documents.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) ChunksIndexed(succeeded, failed int) {
	if m == nil {
		return
	}
	m.chunks.WithLabelValues("indexed").Add(float64(succeeded))
	m.chunks.WithLabelValues("failed").Add(float64(failed))
}

func (m *Metrics) QueryFinished(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(outcome).Inc()
	m.queryDuration.Observe(d.Seconds())
}

func (m *Metrics) RetrievalReturned(n int) {
	if m == nil || n > 0 {
		return
	}
	m.retrievalEmpty.Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
