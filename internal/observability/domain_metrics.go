package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	intentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatdb_intents_total",
			Help: "Total number of utterances matched to an intent, by intent tag.",
		},
		[]string{"tag"},
	)
	translationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatdb_translations_total",
			Help: "Total number of explore requests by outcome.",
		},
		[]string{"outcome"},
	)
	profileDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatdb_profile_duration_seconds",
			Help:    "Latency of profiling a source into a schema snapshot.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend"},
	)
	examplesGeneratedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatdb_examples_generated_total",
			Help: "Total number of example queries generated.",
		},
	)
	queryDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatdb_query_duration_seconds",
			Help:    "Latency of executing rendered queries against the backend.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"backend", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		intentsTotal,
		translationsTotal,
		profileDurationSeconds,
		examplesGeneratedTotal,
		queryDurationSeconds,
	)
}

func ObserveIntent(tag string) {
	intentsTotal.WithLabelValues(tag).Inc()
}

func ObserveTranslation(outcome string) {
	translationsTotal.WithLabelValues(outcome).Inc()
}

func ObserveProfile(backend string, elapsed time.Duration) {
	profileDurationSeconds.WithLabelValues(backend).Observe(elapsed.Seconds())
}

func ObserveExamplesGenerated(count int) {
	if count > 0 {
		examplesGeneratedTotal.Add(float64(count))
	}
}

func ObserveQuery(backend string, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	queryDurationSeconds.WithLabelValues(backend, status).Observe(elapsed.Seconds())
}
