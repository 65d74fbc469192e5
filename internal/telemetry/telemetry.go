// Package telemetry owns the Prometheus collectors and the tracer shared by the pipeline components.
// A nil *Metrics is valid and records nothing.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const namespace = "docchat"

// Metrics groups every collector exported by the service.
type Metrics struct {
	llmAttempts     *prometheus.CounterVec
	llmFallbacks    prometheus.Counter
	llmTimeouts     prometheus.Counter
	stageSeconds    *prometheus.HistogramVec
	ingestedChunks  prometheus.Counter
	historyFailures prometheus.Counter
	embedCache      *prometheus.CounterVec
	ingestJobs      *prometheus.CounterVec
}

// NewRegistry returns a registry preloaded with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// NewMetrics builds the collectors and registers them on reg when reg is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		llmAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "attempts_total",
			Help:      "LLM candidate attempts by model and outcome.",
		}, []string{"model", "outcome"}),
		llmFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "fallbacks_total",
			Help:      "Answers produced by a non-primary candidate.",
		}),
		llmTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "timeouts_total",
			Help:      "Answer calls aborted by the wall-clock timeout.",
		}),
		stageSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_seconds",
			Help:      "Duration of pipeline stages.",
			Buckets:   []float64{.005, .025, .1, .5, 1, 2.5, 5, 15, 30, 60, 120, 180},
		}, []string{"pipeline", "stage"}),
		ingestedChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "ingested_chunks_total",
			Help:      "Chunks committed to the vector store.",
		}),
		historyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "write_failures_total",
			Help:      "Conversation pairs that could not be persisted.",
		}),
		embedCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "cache_lookups_total",
			Help:      "Embedding cache lookups by result.",
		}, []string{"result"}),
		ingestJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "ingest_jobs_total",
			Help:      "Queued ingestion jobs by outcome.",
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.llmAttempts, m.llmFallbacks, m.llmTimeouts, m.stageSeconds,
			m.ingestedChunks, m.historyFailures, m.embedCache, m.ingestJobs)
	}
	return m
}

func (m *Metrics) LLMAttempt(model, outcome string) {
	if m == nil {
		return
	}
	m.llmAttempts.WithLabelValues(model, outcome).Inc()
}

func (m *Metrics) LLMFallback() {
	if m == nil {
		return
	}
	m.llmFallbacks.Inc()
}

func (m *Metrics) LLMTimeout() {
	if m == nil {
		return
	}
	m.llmTimeouts.Inc()
}

func (m *Metrics) ObserveStage(pipeline, stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageSeconds.WithLabelValues(pipeline, stage).Observe(d.Seconds())
}

func (m *Metrics) ChunksIngested(n int) {
	if m == nil {
		return
	}
	m.ingestedChunks.Add(float64(n))
}

func (m *Metrics) HistoryFailure() {
	if m == nil {
		return
	}
	m.historyFailures.Inc()
}

func (m *Metrics) EmbedCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.embedCache.WithLabelValues(result).Inc()
}

// IngestJob counts a queued ingestion job as enqueued, done, retried or dropped.
func (m *Metrics) IngestJob(outcome string) {
	if m == nil {
		return
	}
	m.ingestJobs.WithLabelValues(outcome).Inc()
}

// Tracer returns the named tracer from the global provider. Spans are dropped
// unless the process installs an SDK provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer("github.com/mohammad-safakhou/docchat/" + name)
}
