package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AnalysisRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trend_analysis_requests_total",
		Help: "Analysis requests by mode and outcome",
	}, []string{"mode", "status"})

	AnalysisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trend_analysis_duration_seconds",
		Help:    "Wall time of one analysis request",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200},
	}, []string{"mode", "branch"})

	AnalysisChunks = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trend_analysis_chunks",
		Help:    "Chunks produced per analysis request",
		Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34},
	}, []string{"mode"})

	AnalysisMaterials = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trend_analysis_materials",
		Help:    "Materials retrieved per analysis request",
		Buckets: []float64{0, 5, 10, 25, 50, 100, 200, 500},
	}, []string{"mode"})

	AnalysisQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trend_analysis_queue_depth",
		Help: "Analysis requests waiting for a worker",
	})

	AnalysisInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trend_analysis_in_flight",
		Help: "Analysis requests currently running",
	})

	LLMRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trend_llm_requests_total",
		Help: "LLM requests by provider, model, task and status",
	}, []string{"provider", "model", "task", "status"})

	LLMRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trend_llm_request_latency_seconds",
		Help:    "LLM request latency",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160},
	}, []string{"provider", "model", "task"})

	LLMTokensPrompt = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trend_llm_tokens_prompt_total",
		Help: "Prompt tokens sent to LLM providers",
	}, []string{"provider", "model", "task"})

	LLMTokensCompletion = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trend_llm_tokens_completion_total",
		Help: "Completion tokens received from LLM providers",
	}, []string{"provider", "model", "task"})

	LLMFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trend_llm_fallbacks_total",
		Help: "Requests served by a fallback provider",
	}, []string{"from_provider", "to_provider", "task"})

	LLMProviderAvailable = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "trend_llm_provider_available",
		Help: "1 when the provider is configured and its circuit is closed",
	}, []string{"provider"})

	LLMCircuitBreakerOpens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trend_llm_circuit_breaker_opens_total",
		Help: "Times a provider circuit breaker opened",
	}, []string{"provider"})

	LLMBudgetTokens = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trend_llm_budget_daily_tokens",
		Help: "Tokens used today against the daily budget",
	})

	LLMBudgetAlerts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trend_llm_budget_alerts_total",
		Help: "Daily budget thresholds crossed, by level",
	}, []string{"level"})

	EmbeddingRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trend_embedding_requests_total",
		Help: "Embedding requests by provider and status",
	}, []string{"provider", "status"})

	EmbeddingLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trend_embedding_latency_seconds",
		Help:    "Embedding request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})

	EmbeddingTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trend_embedding_tokens_total",
		Help: "Estimated tokens sent to embedding providers",
	}, []string{"provider"})

	EmbeddingFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trend_embedding_fallbacks_total",
		Help: "Embedding requests served by a fallback provider",
	}, []string{"from_provider", "to_provider"})

	IngestMaterials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trend_ingest_materials_total",
		Help: "Materials seen by the ingester by source type and result",
	}, []string{"source_type", "result"})

	IngestSourceErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trend_ingest_source_errors_total",
		Help: "Sources that failed after all retries",
	}, []string{"source_type"})

	IngestRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trend_ingest_run_duration_seconds",
		Help:    "Duration of a full ingest run",
		Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800},
	})

	MessagesDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trend_messages_delivered_total",
		Help: "Telegram messages sent by kind and status",
	}, []string{"kind", "status"})

	ScheduledDigests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trend_scheduled_digest_recipients_total",
		Help: "Scheduled digest deliveries by kind (daily, weekly) and status",
	}, []string{"kind", "status"})

	DigestCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trend_digest_cache_lookups_total",
		Help: "Digest cache lookups by layer and result",
	}, []string{"layer", "result"})
)
