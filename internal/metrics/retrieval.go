package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/lexrag/internal/domain"
)

// Retrieval and chunking Prometheus metrics.
var (
	RetrievalOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_operation_duration_seconds",
			Help:      "Vector store operation duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"op", "status"},
	)

	OwnershipRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ownership_rejections_total",
			Help:      "Requests rejected for touching resources of another tenant",
		},
		[]string{"op"},
	)

	SearchResults = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_results",
			Help:      "Number of hits returned per similarity search",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
		},
	)

	ChunksPerDocument = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunks_per_document",
			Help:      "Number of chunks produced per document",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250, 500},
		},
	)

	TokensPerChunk = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tokens_per_chunk",
			Help:      "Estimated tokens per produced chunk",
			Buckets:   []float64{50, 100, 200, 300, 400, 500, 600, 800, 1000, 2000},
		},
	)
)

var retrievalMetricsRegistered bool

// RegisterRetrievalMetrics registers retrieval and chunking metrics. Must be called once from main.
func RegisterRetrievalMetrics() {
	if retrievalMetricsRegistered {
		return
	}
	prometheus.MustRegister(RetrievalOpDuration)
	prometheus.MustRegister(OwnershipRejectionsTotal)
	prometheus.MustRegister(SearchResults)
	prometheus.MustRegister(ChunksPerDocument)
	prometheus.MustRegister(TokensPerChunk)
	retrievalMetricsRegistered = true
}

// ObserveOp records the duration of a retrieval operation, labelled by error class.
func ObserveOp(op string, start time.Time, err error) {
	RetrievalOpDuration.WithLabelValues(op, Status(err)).Observe(time.Since(start).Seconds())
}

// Status maps an error to a low-cardinality label value.
func Status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrOwnership):
		return "ownership"
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrVectorDimMismatch),
		errors.Is(err, domain.ErrModelMismatch):
		return "invalid"
	case errors.Is(err, domain.ErrDocumentNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return "store_error"
	default:
		return "error"
	}
}
