package metrics

import "github.com/prometheus/client_golang/prometheus"

// Generation Prometheus metrics.
var (
	GenerationStreamsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_streams_total",
			Help:      "Generation streams by outcome (completed, aborted, error)",
		},
		[]string{"provider", "model", "status"},
	)

	GenerationStreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_stream_duration_seconds",
			Help:      "Time from stream open to close",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		},
		[]string{"provider", "model"},
	)

	GenerationFirstFragmentSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_first_fragment_seconds",
			Help:      "Time from stream open to the first fragment",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		},
		[]string{"provider", "model"},
	)

	GenerationFragmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_fragments_total",
			Help:      "Total streamed fragments",
		},
		[]string{"provider", "model"},
	)

	GenerationErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_errors_total",
			Help:      "Total generation errors",
		},
		[]string{"provider", "model", "error_type"},
	)
)

var genMetricsRegistered bool

// RegisterGenerationMetrics registers generation metrics. Call once from main.
func RegisterGenerationMetrics() {
	if genMetricsRegistered {
		return
	}
	prometheus.MustRegister(
		GenerationStreamsTotal,
		GenerationStreamDuration,
		GenerationFirstFragmentSeconds,
		GenerationFragmentsTotal,
		GenerationErrorsTotal,
	)
	genMetricsRegistered = true
}
