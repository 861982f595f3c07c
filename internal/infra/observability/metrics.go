package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the PNAE assistant API.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	externalErrors  *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	tokensUsed      *prometheus.CounterVec
	diagnosesTotal  *prometheus.CounterVec
	guidesTotal     *prometheus.CounterVec
	jobsTotal       *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pnae_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pnae_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pnae_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pnae_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		tokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pnae_llm_tokens_total",
				Help: "Total LLM tokens consumed.",
			},
			[]string{"type"},
		),
		diagnosesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pnae_diagnoses_total",
				Help: "Total eligibility diagnoses by resulting level.",
			},
			[]string{"level"},
		),
		guidesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pnae_guides_total",
				Help: "Total guide generations by source (llm or fallback).",
			},
			[]string{"source"},
		),
		jobsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pnae_jobs_total",
				Help: "Total background jobs by final status.",
			},
			[]string{"status"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// RecordTokens records prompt and completion token usage.
func (m *Metrics) RecordTokens(prompt, completion int) {
	m.tokensUsed.WithLabelValues("prompt").Add(float64(prompt))
	m.tokensUsed.WithLabelValues("completion").Add(float64(completion))
}

// IncrDiagnosis increments the diagnosis counter for an eligibility level.
func (m *Metrics) IncrDiagnosis(level string) {
	m.diagnosesTotal.WithLabelValues(level).Inc()
}

// IncrGuide increments the guide counter. Source is "llm" or "fallback".
func (m *Metrics) IncrGuide(source string) {
	m.guidesTotal.WithLabelValues(source).Inc()
}

// IncrJob increments the job counter for a final status.
func (m *Metrics) IncrJob(status string) {
	m.jobsTotal.WithLabelValues(status).Inc()
}

// UsageSnapshot is a point-in-time read of the LLM and cache counters,
// served by GET /v1/admin/metrics/usage.
type UsageSnapshot struct {
	PromptTokens     float64 `json:"prompt_tokens"`
	CompletionTokens float64 `json:"completion_tokens"`
	TotalTokens      float64 `json:"total_tokens"`
	GuidesFromLLM    float64 `json:"guides_from_llm"`
	GuidesFallback   float64 `json:"guides_fallback"`
	CacheHitRate     float64 `json:"cache_hit_rate"`
	JobsSucceeded    float64 `json:"jobs_succeeded"`
	JobsFailed       float64 `json:"jobs_failed"`
}

// GetUsageSnapshot gathers the current counter values.
func (m *Metrics) GetUsageSnapshot() *UsageSnapshot {
	prompt := getCounterValue(m.tokensUsed, "prompt")
	completion := getCounterValue(m.tokensUsed, "completion")

	hits := getCounterValue(m.cacheHits, "questions") + getCounterValue(m.cacheHits, "tasks")
	misses := getCounterValue(m.cacheMisses, "questions") + getCounterValue(m.cacheMisses, "tasks")
	hitRate := float64(0)
	if hits+misses > 0 {
		hitRate = hits / (hits + misses)
	}

	return &UsageSnapshot{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
		GuidesFromLLM:    getCounterValue(m.guidesTotal, "llm"),
		GuidesFallback:   getCounterValue(m.guidesTotal, "fallback"),
		CacheHitRate:     hitRate,
		JobsSucceeded:    getCounterValue(m.jobsTotal, "succeeded"),
		JobsFailed:       getCounterValue(m.jobsTotal, "failed"),
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
