package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Storage metrics shared by every importer and the admin server
var (
	// Backend metrics
	BackendRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mimir_backend_requests_total",
			Help: "Total number of requests sent to the search backend",
		},
		[]string{"operation", "outcome"},
	)

	BackendRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mimir_backend_request_duration_seconds",
			Help:    "Search backend request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"operation"},
	)

	// Ingestion metrics
	DocumentsInsertedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mimir_documents_inserted_total",
			Help: "Total number of documents sent through bulk insertion, by result",
		},
		[]string{"index", "result"},
	)

	BulkChunkFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mimir_bulk_chunk_failures_total",
			Help: "Total number of bulk chunks that did not fully succeed",
		},
		[]string{"index"},
	)

	BulkChunksInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mimir_bulk_chunks_in_flight",
			Help: "Number of bulk chunk requests currently in flight",
		},
	)

	// Publication metrics
	PublicationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mimir_publications_total",
			Help: "Total number of index publications",
		},
		[]string{"doc_type", "visibility", "outcome"},
	)

	// Export metrics
	DocumentsScannedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mimir_documents_scanned_total",
			Help: "Total number of documents read back by index scans",
		},
		[]string{"index"},
	)

	OpenScans = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mimir_open_scans",
			Help: "Number of point-in-time scans currently open",
		},
	)
)

// Outcome labels
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// OutcomeOf maps an error to an outcome label.
func OutcomeOf(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}
