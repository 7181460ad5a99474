// Package telemetry records search and indexing metrics. Collectors live on a
// private Prometheus registry so several managers can coexist in one process.
// All data stays local unless the caller exposes Registry over HTTP.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docsearch"

// Mutation operation labels.
const (
	OpUpsert = "upsert"
	OpDelete = "delete"
	OpClear  = "clear"
)

// Metrics holds the Prometheus collectors plus the in-memory query stats.
type Metrics struct {
	registry *prometheus.Registry

	searches  *prometheus.CounterVec
	failures  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	results   *prometheus.HistogramVec
	mutations *prometheus.CounterVec
	documents *prometheus.CounterVec

	queries *QueryStats
}

// NewMetrics creates the collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		searches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "search_total",
				Help:      "Total number of searches by strategy",
			},
			[]string{"strategy"},
		),
		failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "search_errors_total",
				Help:      "Total number of failed searches by strategy and error code",
			},
			[]string{"strategy", "code"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_duration_seconds",
				Help:      "Search latency in seconds",
				Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"strategy"},
		),
		results: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_results",
				Help:      "Number of results returned per search",
				Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 500},
			},
			[]string{"strategy"},
		),
		mutations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "index_mutations_total",
				Help:      "Total number of index mutations by strategy and operation",
			},
			[]string{"strategy", "op"},
		),
		documents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "index_documents_total",
				Help:      "Total number of documents passed to index mutations",
			},
			[]string{"strategy", "op"},
		),
		queries: NewQueryStats(DefaultQueryStatsConfig()),
	}
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Queries returns the query pattern stats.
func (m *Metrics) Queries() *QueryStats {
	return m.queries
}

// ObserveSearch records one completed search. A non-empty code marks a failure.
func (m *Metrics) ObserveSearch(strategy, query string, results int, elapsed time.Duration, code string) {
	m.searches.WithLabelValues(strategy).Inc()
	m.duration.WithLabelValues(strategy).Observe(elapsed.Seconds())
	if code != "" {
		m.failures.WithLabelValues(strategy, code).Inc()
		return
	}
	m.results.WithLabelValues(strategy).Observe(float64(results))
	m.queries.Record(QueryEvent{
		Query:       query,
		Strategy:    strategy,
		ResultCount: results,
		Latency:     elapsed,
		Timestamp:   time.Now(),
	})
}

// ObserveMutation records one index mutation over docs documents.
func (m *Metrics) ObserveMutation(strategy, op string, docs int) {
	m.mutations.WithLabelValues(strategy, op).Inc()
	if docs > 0 {
		m.documents.WithLabelValues(strategy, op).Add(float64(docs))
	}
}
