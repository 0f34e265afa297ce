package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric label values.
const (
	OutcomeSuccess    = "success"
	OutcomeFailure    = "failure"
	OutcomeValidation = "validation"
	OutcomeQuota      = "quota"
)

var (
	ArticlesAcquired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsquiz_articles_acquired_total",
		Help: "The total number of documents acquired by layer and language",
	}, []string{"layer", "language"})

	ArticlesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsquiz_articles_rejected_total",
		Help: "Entries skipped during acquisition by reason",
	}, []string{"reason"})

	SourceFetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsquiz_source_fetch_errors_total",
		Help: "Failed source fetches by layer",
	}, []string{"layer"})

	NewsAPICalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsquiz_news_api_calls_total",
		Help: "Calls made to the news API by endpoint",
	}, []string{"endpoint"})

	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "newsquiz_acquisition_cycle_duration_seconds",
		Help:    "Duration of acquisition cycles",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	CyclesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "newsquiz_acquisition_cycles_skipped_total",
		Help: "Cycles skipped because another worker holds the cycle lock",
	})

	LLMRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsquiz_llm_requests_total",
		Help: "Generation requests by model and outcome",
	}, []string{"model", "outcome"})

	LLMRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "newsquiz_llm_request_duration_seconds",
		Help:    "Duration of generation requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})

	LLMFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsquiz_llm_fallbacks_total",
		Help: "Moves to the next model of a fallback chain",
	}, []string{"from_model"})

	LLMProbeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsquiz_llm_probe_failures_total",
		Help: "Failed liveness probes by model",
	}, []string{"model"})

	LLMLastResort = promauto.NewCounter(prometheus.CounterOpts{
		Name: "newsquiz_llm_last_resort_total",
		Help: "Selections that fell through to the last resort model",
	})

	ThrottleWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsquiz_throttle_waits_total",
		Help: "Times a caller waited for the minute window by tier group",
	}, []string{"group"})

	ThrottleWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "newsquiz_throttle_wait_seconds",
		Help:    "Time spent waiting for the minute window",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
	}, []string{"group"})

	QuotaExhausted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsquiz_quota_exhausted_total",
		Help: "Requests refused because the day window was full",
	}, []string{"group"})

	DocumentsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsquiz_documents_finished_total",
		Help: "Documents reaching a terminal status",
	}, []string{"status"})

	DocumentRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "newsquiz_document_retries_total",
		Help: "Retry attempts made by the task controller",
	})

	QueueRedelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "newsquiz_queue_redelivered_total",
		Help: "Stale pending documents re-enqueued by the sweep",
	})
)
