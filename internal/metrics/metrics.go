// Package metrics provides Prometheus metrics for the document pipeline
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "docintel"

// Metrics holds all Prometheus metrics for the pipeline. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Document processing metrics
	DocumentsProcessedTotal *prometheus.CounterVec
	ProcessingDuration      prometheus.Histogram
	ChunksCreatedTotal      prometheus.Counter
	ChunkerFallbacksTotal   prometheus.Counter

	// Embedding metrics
	EmbeddingRequestsTotal  *prometheus.CounterVec
	EmbeddingFallbacksTotal prometheus.Counter
	EmbeddingCacheHitsTotal prometheus.Counter
	EmbeddingDuration       prometheus.Histogram

	// Search metrics
	SearchQueriesTotal *prometheus.CounterVec
	SearchResultsTotal prometheus.Counter
	SearchDuration     prometheus.Histogram

	// Store metrics
	StoreOperationsTotal *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{}

	m.DocumentsProcessedTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_processed_total",
			Help:      "Total number of pipeline runs by final status",
		},
		[]string{"status"},
	)

	m.ProcessingDuration = f.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "document_processing_duration_seconds",
			Help:      "Duration of pipeline runs in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	m.ChunksCreatedTotal = f.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_created_total",
			Help:      "Total number of chunks written to the store",
		},
	)

	m.ChunkerFallbacksTotal = f.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunker_fallbacks_total",
			Help:      "Number of documents chunked with the word splitter",
		},
	)

	m.EmbeddingRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests by outcome",
		},
		[]string{"outcome"},
	)

	m.EmbeddingFallbacksTotal = f.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_fallbacks_total",
			Help:      "Number of zero vectors substituted for failed embeddings",
		},
	)

	m.EmbeddingCacheHitsTotal = f.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_cache_hits_total",
			Help:      "Number of embeddings served from the cache",
		},
	)

	m.EmbeddingDuration = f.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "embedding_duration_seconds",
			Help:      "Duration of embedding provider calls in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	m.SearchQueriesTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_queries_total",
			Help:      "Total number of similarity searches by outcome",
		},
		[]string{"outcome"},
	)

	m.SearchResultsTotal = f.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_results_total",
			Help:      "Total number of search results returned",
		},
	)

	m.SearchDuration = f.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Duration of similarity searches in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	m.StoreOperationsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Total number of store operations",
		},
		[]string{"operation", "status"},
	)

	return m
}

// RecordProcessing records the outcome of one pipeline run.
func (m *Metrics) RecordProcessing(status string, chunks int, chunkerFallback bool, d time.Duration) {
	if m == nil {
		return
	}
	m.DocumentsProcessedTotal.WithLabelValues(status).Inc()
	m.ProcessingDuration.Observe(d.Seconds())
	m.ChunksCreatedTotal.Add(float64(chunks))
	if chunkerFallback {
		m.ChunkerFallbacksTotal.Inc()
	}
}

// RecordEmbedding records one embedding call. Outcome is "ok", "fallback"
// or "cache".
func (m *Metrics) RecordEmbedding(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.EmbeddingRequestsTotal.WithLabelValues(outcome).Inc()
	switch outcome {
	case "fallback":
		m.EmbeddingFallbacksTotal.Inc()
	case "cache":
		m.EmbeddingCacheHitsTotal.Inc()
		return
	}
	m.EmbeddingDuration.Observe(d.Seconds())
}

// RecordSearch records one search request.
func (m *Metrics) RecordSearch(outcome string, results int, d time.Duration) {
	if m == nil {
		return
	}
	m.SearchQueriesTotal.WithLabelValues(outcome).Inc()
	m.SearchResultsTotal.Add(float64(results))
	m.SearchDuration.Observe(d.Seconds())
}

// RecordStoreOp records a store call.
func (m *Metrics) RecordStoreOp(operation string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.StoreOperationsTotal.WithLabelValues(operation, status).Inc()
}
