package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mohammad-safakhou/docchat/internal/domain"
	"github.com/mohammad-safakhou/docchat/internal/pipeline"
	"github.com/mohammad-safakhou/docchat/internal/queue/streams"
	"github.com/mohammad-safakhou/docchat/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
)

// memStream is a single-consumer stand-in for a Redis stream and its group.
type memStream struct {
	mu       sync.Mutex
	seq      int
	entries  []streams.Message
	pending  map[string]streams.Message
	acked    []string
	readErr  error
	reclaims int
}

func (s *memStream) Publish(_ context.Context, stream string, env streams.Envelope, _ ...streams.PublishOption) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stream == "" {
		return "", fmt.Errorf("stream name is required")
	}
	s.seq++
	id := fmt.Sprintf("%d-0", s.seq)
	if env.EventID == "" {
		env.EventID = id
	}
	s.entries = append(s.entries, streams.Message{ID: id, Envelope: env})
	return id, nil
}

func (s *memStream) EnsureGroup(context.Context) error { return nil }

func (s *memStream) Read(context.Context) ([]streams.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	out := s.entries
	s.entries = nil
	if s.pending == nil {
		s.pending = map[string]streams.Message{}
	}
	for _, m := range out {
		s.pending[m.ID] = m
	}
	return out, nil
}

func (s *memStream) Reclaim(context.Context, time.Duration) ([]streams.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reclaims++
	out := make([]streams.Message, 0, len(s.pending))
	for _, m := range s.pending {
		out = append(out, m)
	}
	return out, nil
}

func (s *memStream) Ack(_ context.Context, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.pending, id)
		s.acked = append(s.acked, id)
	}
	return nil
}

type fakeIngester struct {
	mu    sync.Mutex
	errs  []error
	calls []IngestJob
}

func (f *fakeIngester) Ingest(_ context.Context, documentID, text string) (pipeline.IngestReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, IngestJob{DocumentID: documentID, Text: text})
	var err error
	if len(f.errs) > 0 {
		err, f.errs = f.errs[0], f.errs[1:]
	}
	return pipeline.IngestReport{DocumentID: documentID, Stage: pipeline.StageChunkAndEmbed}, err
}

func newRunner(st *memStream, ing Ingester, metrics *telemetry.Metrics, maxAttempts int) *Runner {
	return NewRunner(Options{Stream: "document.ingest", MaxAttempts: maxAttempts}, st, st, ing, metrics)
}

func drain(t *testing.T, r *Runner, st *memStream) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		msgs, err := st.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if len(msgs) == 0 {
			return
		}
		r.handleAll(ctx, msgs)
	}
	t.Fatalf("stream did not drain")
}

func TestQueueEnqueuePublishesJob(t *testing.T) {
	st := &memStream{}
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	q := NewQueue(st, "document.ingest", 100, metrics)

	if err := q.Enqueue(context.Background(), "doc-1", "hello"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if len(st.entries) != 1 || jobCount(t, reg, "enqueued") != 1 {
		t.Fatalf("expected one entry got %d", len(st.entries))
	}
	env := st.entries[0].Envelope
	var job IngestJob
	if err := json.Unmarshal(env.Data, &job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if env.EventType != EventDocumentIngest || env.Attempt != 0 || job.DocumentID != "doc-1" || job.Text != "hello" {
		t.Fatalf("unexpected envelope %+v job %+v", env, job)
	}
	if err := q.Enqueue(context.Background(), " ", "x"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput got %v", err)
	}
}

func TestRunnerIngestsAndAcks(t *testing.T) {
	st := &memStream{}
	ing := &fakeIngester{}
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	q := NewQueue(st, "document.ingest", 0, metrics)
	_ = q.Enqueue(context.Background(), "doc-1", "one")
	_ = q.Enqueue(context.Background(), "doc-2", "two")

	drain(t, newRunner(st, ing, metrics, 3), st)

	if len(ing.calls) != 2 || ing.calls[1].Text != "two" {
		t.Fatalf("unexpected ingest calls %+v", ing.calls)
	}
	if len(st.acked) != 2 || len(st.pending) != 0 {
		t.Fatalf("expected both acked, acked=%v pending=%d", st.acked, len(st.pending))
	}
	if got := jobCount(t, reg, "done"); got != 2 {
		t.Fatalf("expected 2 done jobs got %v", got)
	}
}

func TestRunnerRequeuesTransientFailures(t *testing.T) {
	st := &memStream{}
	transient := fmt.Errorf("chunk_and_embed: %w", domain.ErrEmbedding)
	ing := &fakeIngester{errs: []error{transient, transient}}
	_ = NewQueue(st, "document.ingest", 0, nil).Enqueue(context.Background(), "doc-1", "text")

	drain(t, newRunner(st, ing, nil, 3), st)

	if len(ing.calls) != 3 {
		t.Fatalf("expected 3 attempts got %d", len(ing.calls))
	}
	if len(st.pending) != 0 || len(st.acked) != 3 {
		t.Fatalf("every delivery should be acked, acked=%v pending=%d", st.acked, len(st.pending))
	}
}

func TestRunnerGivesUpAfterMaxAttempts(t *testing.T) {
	st := &memStream{}
	ing := &fakeIngester{errs: []error{domain.ErrEmbedding, domain.ErrEmbedding, domain.ErrEmbedding}}
	_ = NewQueue(st, "document.ingest", 0, nil).Enqueue(context.Background(), "doc-1", "text")

	drain(t, newRunner(st, ing, nil, 2), st)

	if len(ing.calls) != 2 {
		t.Fatalf("expected 2 attempts got %d", len(ing.calls))
	}
	if len(st.entries) != 0 || len(st.pending) != 0 {
		t.Fatalf("job should be dropped, entries=%d pending=%d", len(st.entries), len(st.pending))
	}
}

func TestRunnerAcksPermanentFailures(t *testing.T) {
	cases := map[string]error{
		"already ingested": fmt.Errorf("stored: %w", domain.ErrAlreadyIngested),
		"deleted":          domain.ErrNotFound,
		"dimensions":       domain.ErrDimensionMismatch,
	}
	for name, ingestErr := range cases {
		t.Run(name, func(t *testing.T) {
			st := &memStream{}
			ing := &fakeIngester{errs: []error{ingestErr}}
			_ = NewQueue(st, "document.ingest", 0, nil).Enqueue(context.Background(), "doc-1", "text")

			drain(t, newRunner(st, ing, nil, 5), st)

			if len(ing.calls) != 1 || len(st.acked) != 1 {
				t.Fatalf("expected one call and one ack, calls=%d acked=%v", len(ing.calls), st.acked)
			}
		})
	}
}

func TestRunnerDropsMalformedPayload(t *testing.T) {
	st := &memStream{}
	ing := &fakeIngester{}
	_, _ = st.Publish(context.Background(), "document.ingest", streams.Envelope{
		EventType: EventDocumentIngest,
		Data:      json.RawMessage(`"not an object"`),
	})

	drain(t, newRunner(st, ing, nil, 3), st)

	if len(ing.calls) != 0 || len(st.acked) != 1 {
		t.Fatalf("malformed job should be acked without ingesting, calls=%d acked=%v", len(ing.calls), st.acked)
	}
}

func TestRunnerLeavesEntryPendingWhenRequeueFails(t *testing.T) {
	st := &memStream{}
	ing := &fakeIngester{errs: []error{domain.ErrEmbedding}}
	_ = NewQueue(st, "document.ingest", 0, nil).Enqueue(context.Background(), "doc-1", "text")
	r := NewRunner(Options{MaxAttempts: 3}, st, st, ing, nil) // no stream name: publish fails

	msgs, _ := st.Read(context.Background())
	r.handleAll(context.Background(), msgs)

	if len(st.pending) != 1 || len(st.acked) != 0 {
		t.Fatalf("entry should stay pending, pending=%d acked=%v", len(st.pending), st.acked)
	}
}

func TestRunReclaimsPendingAndStopsOnCancel(t *testing.T) {
	st := &memStream{}
	ing := &fakeIngester{}
	_ = NewQueue(st, "document.ingest", 0, nil).Enqueue(context.Background(), "doc-1", "text")
	// delivered to a consumer that died before acking
	if _, err := st.Read(context.Background()); err != nil {
		t.Fatalf("read: %v", err)
	}
	st.readErr = errors.New("connection refused")

	r := NewRunner(Options{Stream: "document.ingest", MaxAttempts: 3, ClaimIdle: time.Hour, ReadBackoff: 5 * time.Millisecond}, st, st, ing, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := r.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if st.reclaims != 1 || len(ing.calls) != 1 || len(st.pending) != 0 {
		t.Fatalf("expected pending job to be reclaimed and processed, reclaims=%d calls=%d pending=%d", st.reclaims, len(ing.calls), len(st.pending))
	}
}

func jobCount(t *testing.T, reg *prometheus.Registry, outcome string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() != "docchat_queue_ingest_jobs_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "outcome" && l.GetValue() == outcome {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
