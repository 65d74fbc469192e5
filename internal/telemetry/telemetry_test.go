package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecord(t *testing.T) {
	reg := NewRegistry()
	m := NewMetrics(reg)
	m.LLMAttempt("gemma", "ok")
	m.LLMAttempt("gemma", "ok")
	m.LLMFallback()
	m.EmbedCache(true)
	m.ObserveStage("ask", "retrieve", 10*time.Millisecond)

	if got := testutil.ToFloat64(m.llmAttempts.WithLabelValues("gemma", "ok")); got != 2 {
		t.Fatalf("expected 2 attempts got %v", got)
	}
	if got := testutil.ToFloat64(m.llmFallbacks); got != 1 {
		t.Fatalf("expected 1 fallback got %v", got)
	}
	if got := testutil.ToFloat64(m.embedCache.WithLabelValues("hit")); got != 1 {
		t.Fatalf("expected 1 cache hit got %v", got)
	}
	m.IngestJob("retried")
	if got := testutil.ToFloat64(m.ingestJobs.WithLabelValues("retried")); got != 1 {
		t.Fatalf("expected 1 retried job got %v", got)
	}
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("Gather: %v", err)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.LLMAttempt("x", "error")
	m.LLMTimeout()
	m.ChunksIngested(3)
	m.HistoryFailure()
	m.IngestJob("done")
}
