package generate

import "github.com/prometheus/client_golang/prometheus"

var (
	completionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ghostline",
			Subsystem: "engine",
			Name:      "completions_total",
			Help:      "Completion requests by outcome.",
		},
		[]string{"outcome"},
	)
	availabilityChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ghostline",
			Subsystem: "engine",
			Name:      "availability_checks_total",
			Help:      "Availability checks by result.",
		},
		[]string{"result"},
	)
	generationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ghostline",
			Subsystem: "engine",
			Name:      "generation_duration_seconds",
			Help:      "Latency of generate calls to the inference service.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 30},
		},
	)
)

func init() {
	prometheus.MustRegister(completionsTotal, availabilityChecks, generationDuration)
}
