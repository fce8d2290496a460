package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docchat",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docchat",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"method", "route"},
	)

	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docchat",
			Subsystem: "documents",
			Name:      "uploads_total",
			Help:      "Total document uploads by content type and outcome",
		},
		[]string{"content_type", "status"},
	)

	IngestionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docchat",
			Subsystem: "ingestion",
			Name:      "runs_total",
			Help:      "Ingestion runs by outcome and failure reason",
		},
		[]string{"status", "reason"},
	)

	ChunksPerDocument = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "docchat",
			Subsystem: "ingestion",
			Name:      "chunks_per_document",
			Help:      "Number of chunks produced per successfully ingested document",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	IngestionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "docchat",
			Subsystem: "ingestion",
			Name:      "duration_seconds",
			Help:      "Ingestion duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)

	RetrievalDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "docchat",
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "BM25 ranking duration in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
	)

	GenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docchat",
			Subsystem: "generation",
			Name:      "calls_total",
			Help:      "Generation calls by outcome",
		},
		[]string{"status"},
	)
)

// RecordRequest records an HTTP request
func RecordRequest(method, route, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(method, route, status).Inc()
	RequestDuration.WithLabelValues(method, route).Observe(durationSec)
}

// RecordUpload records an upload attempt
func RecordUpload(contentType, status string) {
	UploadsTotal.WithLabelValues(contentType, status).Inc()
}

// RecordIngestion records the outcome of one ingestion run. reason is empty on success.
func RecordIngestion(status, reason string, chunks int, durationSec float64) {
	IngestionsTotal.WithLabelValues(status, reason).Inc()
	IngestionDuration.Observe(durationSec)
	if status == "ready" {
		ChunksPerDocument.Observe(float64(chunks))
	}
}

// RecordRetrieval records one BM25 ranking pass
func RecordRetrieval(durationSec float64) {
	RetrievalDuration.Observe(durationSec)
}

// RecordGeneration records one generation call
func RecordGeneration(status string) {
	GenerationsTotal.WithLabelValues(status).Inc()
}
