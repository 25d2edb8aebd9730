// Package metrics holds the prometheus collectors exported on /metrics.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	ingestRuns     *prometheus.CounterVec
	ingestDuration prometheus.Histogram
	embedBatches   *prometheus.CounterVec
	embedDuration  prometheus.Histogram
	searches       *prometheus.CounterVec
	queryCache     *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		ingestRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docsift_ingest_runs_total",
			Help: "Ingestion runs by outcome.",
		}, []string{"outcome"}),
		ingestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "docsift_ingest_duration_seconds",
			Help:    "Wall time of a full ingestion run.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		embedBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docsift_embed_batches_total",
			Help: "Embedding provider batch calls by outcome.",
		}, []string{"outcome"}),
		embedDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "docsift_embed_batch_duration_seconds",
			Help:    "Latency of one embedding provider batch call.",
			Buckets: prometheus.DefBuckets,
		}),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docsift_search_requests_total",
			Help: "Search requests by outcome.",
		}, []string{"outcome"}),
		queryCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docsift_query_cache_lookups_total",
			Help: "Query embedding cache lookups by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ingestRuns, m.ingestDuration,
		m.embedBatches, m.embedDuration,
		m.searches, m.queryCache,
	)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) IngestFinished(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ingestRuns.WithLabelValues(outcome).Inc()
	m.ingestDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) EmbedBatch(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.embedBatches.WithLabelValues(outcome).Inc()
	m.embedDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) Search(outcome string) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) QueryCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.queryCache.WithLabelValues(result).Inc()
}
