package metrics

import "github.com/prometheus/client_golang/prometheus"

// Retrieval Prometheus metrics.
var (
	BuildDocumentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "build_documents_total",
			Help:      "Documents processed by index builds",
		},
		[]string{"status"}, // "ok" / "error"
	)

	IndexedChunks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "indexed_chunks",
			Help:      "Chunks in the most recently built index",
		},
	)

	BuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Index build duration in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	RetrievalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrievals_total",
			Help:      "Retrieval calls by outcome (grounded, empty_index, error)",
		},
		[]string{"result"},
	)
)

var retrievalMetricsRegistered bool

// RegisterRetrievalMetrics registers retrieval metrics. Call once from main.
func RegisterRetrievalMetrics() {
	if retrievalMetricsRegistered {
		return
	}
	prometheus.MustRegister(BuildDocumentsTotal, IndexedChunks, BuildDuration, RetrievalsTotal)
	retrievalMetricsRegistered = true
}
