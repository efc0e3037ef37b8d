package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RunsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "council_runs_created_total",
			Help: "Total number of runs created",
		},
	)

	RunsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "council_runs_finished_total",
			Help: "Total number of runs reaching a terminal status",
		},
		[]string{"status"},
	)

	PhaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "council_phase_duration_seconds",
			Help:    "Pipeline phase duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"phase"},
	)

	ProviderCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "council_provider_calls_total",
			Help: "Total LLM provider calls",
		},
		[]string{"provider", "operation", "status"},
	)

	ProviderCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "council_provider_call_duration_seconds",
			Help:    "LLM provider call duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"provider", "operation"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "council_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"provider", "type"},
	)

	ReviewParseFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "council_review_parse_fallbacks_total",
			Help: "Total reviewer replies that fell back to the default parse",
		},
	)

	ReviewConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "council_review_confidence_score",
			Help:    "Reviewer self-reported confidence scores",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "council_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "council_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)
)

func Init() {
	prometheus.MustRegister(RunsCreated)
	prometheus.MustRegister(RunsFinished)
	prometheus.MustRegister(PhaseDuration)
	prometheus.MustRegister(ProviderCalls)
	prometheus.MustRegister(ProviderCallDuration)
	prometheus.MustRegister(LLMTokensUsed)
	prometheus.MustRegister(ReviewParseFallbacks)
	prometheus.MustRegister(ReviewConfidence)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
