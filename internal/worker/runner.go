package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mohammad-safakhou/docchat/internal/domain"
	"github.com/mohammad-safakhou/docchat/internal/pipeline"
	"github.com/mohammad-safakhou/docchat/internal/queue/streams"
	"github.com/mohammad-safakhou/docchat/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Source is the consumer side of the ingestion stream.
type Source interface {
	EnsureGroup(ctx context.Context) error
	Read(ctx context.Context) ([]streams.Message, error)
	Reclaim(ctx context.Context, minIdle time.Duration) ([]streams.Message, error)
	Ack(ctx context.Context, ids ...string) error
}

// Ingester chunks, embeds and stores a document's text.
type Ingester interface {
	Ingest(ctx context.Context, documentID, text string) (pipeline.IngestReport, error)
}

var _ Ingester = (*pipeline.Pipeline)(nil)

type Options struct {
	Stream      string
	MaxAttempts int
	ClaimIdle   time.Duration
	MaxLen      int64
	// ReadBackoff is how long to wait after a failed read. Defaults to one second.
	ReadBackoff time.Duration
}

// Runner consumes ingestion jobs until its context is cancelled.
type Runner struct {
	opts     Options
	source   Source
	pub      Publisher
	ingester Ingester
	metrics  *telemetry.Metrics
	logger   *log.Logger
	tracer   trace.Tracer
}

func NewRunner(opts Options, source Source, pub Publisher, ingester Ingester, metrics *telemetry.Metrics) *Runner {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.ReadBackoff <= 0 {
		opts.ReadBackoff = time.Second
	}
	return &Runner{
		opts:     opts,
		source:   source,
		pub:      pub,
		ingester: ingester,
		metrics:  metrics,
		logger:   log.New(log.Writer(), "[WORKER] ", log.LstdFlags),
		tracer:   telemetry.Tracer("worker"),
	}
}

// Run blocks, processing jobs until ctx is cancelled. Entries left pending by a
// crashed consumer are reclaimed on start and then every ClaimIdle.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.source.EnsureGroup(ctx); err != nil {
		return err
	}
	r.logger.Printf("worker starting; consuming stream %s", r.opts.Stream)
	r.reclaim(ctx)
	lastClaim := time.Now()

	for {
		select {
		case <-ctx.Done():
			r.logger.Printf("worker stopping: %v", ctx.Err())
			return nil
		default:
		}

		if r.opts.ClaimIdle > 0 && time.Since(lastClaim) >= r.opts.ClaimIdle {
			r.reclaim(ctx)
			lastClaim = time.Now()
		}

		msgs, err := r.source.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			r.logger.Printf("error reading stream: %v", err)
			select {
			case <-ctx.Done():
			case <-time.After(r.opts.ReadBackoff):
			}
			continue
		}
		r.handleAll(ctx, msgs)
	}
}

func (r *Runner) reclaim(ctx context.Context) {
	if r.opts.ClaimIdle <= 0 {
		return
	}
	msgs, err := r.source.Reclaim(ctx, r.opts.ClaimIdle)
	if err != nil {
		r.logger.Printf("warn: reclaim pending jobs: %v", err)
	}
	if len(msgs) > 0 {
		r.logger.Printf("reclaimed %d pending jobs", len(msgs))
	}
	r.handleAll(ctx, msgs)
}

func (r *Runner) handleAll(ctx context.Context, msgs []streams.Message) {
	for _, msg := range msgs {
		if err := r.handle(ctx, msg); err != nil {
			// left pending; Reclaim picks it up once it has been idle long enough
			r.logger.Printf("error handling job %s: %v", msg.ID, err)
			continue
		}
		if err := r.source.Ack(ctx, msg.ID); err != nil {
			r.logger.Printf("warn: failed to ack job %s: %v", msg.ID, err)
		}
	}
}

// handle returns an error only when the entry must stay pending. Permanent
// failures and exhausted retries are logged and acknowledged.
func (r *Runner) handle(ctx context.Context, msg streams.Message) error {
	ctx, span := r.tracer.Start(ctx, "worker.ingest", trace.WithAttributes(
		attribute.String("stream.id", msg.ID),
		attribute.Int("attempt", msg.Envelope.Attempt),
	))
	defer span.End()

	if msg.Envelope.EventType != EventDocumentIngest {
		r.logger.Printf("warn: skipping %s event %s", msg.Envelope.EventType, msg.Envelope.EventID)
		return nil
	}
	var job IngestJob
	if err := json.Unmarshal(msg.Envelope.Data, &job); err != nil {
		r.logger.Printf("warn: dropping job %s: %v", msg.ID, err)
		r.metrics.IngestJob("dropped")
		return nil
	}
	span.SetAttributes(attribute.String("document.id", job.DocumentID))

	report, err := r.ingester.Ingest(ctx, job.DocumentID, job.Text)
	switch {
	case err == nil:
		r.metrics.IngestJob("done")
		return nil
	case errors.Is(err, domain.ErrAlreadyIngested):
		r.logger.Printf("document %s already ingested; skipping", job.DocumentID)
		r.metrics.IngestJob("done")
		return nil
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrDimensionMismatch):
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Printf("warn: dropping job for document %s: %v", job.DocumentID, err)
		r.metrics.IngestJob("dropped")
		return nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	next := msg.Envelope.Attempt + 1
	if next >= r.opts.MaxAttempts {
		r.logger.Printf("warn: giving up on document %s after %d attempts at %s: %v", job.DocumentID, next, report.Stage, err)
		r.metrics.IngestJob("dropped")
		return nil
	}
	if perr := publishJob(ctx, r.pub, r.opts.Stream, job, next, r.opts.MaxLen); perr != nil {
		return fmt.Errorf("requeue document %s: %w", job.DocumentID, perr)
	}
	r.logger.Printf("requeued document %s (attempt %d) after %v", job.DocumentID, next+1, err)
	r.metrics.IngestJob("retried")
	return nil
}
