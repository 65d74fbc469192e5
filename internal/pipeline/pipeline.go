// Package pipeline wires chunking, embedding, retrieval, generation and history
// into the two flows the service exposes: document ingestion and question answering.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mohammad-safakhou/docchat/internal/answer"
	"github.com/mohammad-safakhou/docchat/internal/chunker"
	"github.com/mohammad-safakhou/docchat/internal/domain"
	"github.com/mohammad-safakhou/docchat/internal/history"
	"github.com/mohammad-safakhou/docchat/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultTopK             = 5
	DefaultNoContextMessage = "No relevant content found in the document."
)

// Stage is a step of the ingestion or question flow.
type Stage string

const (
	StageIdle          Stage = "idle"
	StageChunkAndEmbed Stage = "chunk_and_embed"
	StageStored        Stage = "stored"
	StageQueued        Stage = "queued"
	StageEmbedQuery    Stage = "embed_query"
	StageRetrieve      Stage = "retrieve"
	StageGenerate      Stage = "generate"
	StageRecord        Stage = "record"
	StageDone          Stage = "done"
)

const (
	flowIngest   = "ingest"
	flowQuestion = "question"
	flowGeneral  = "general"
)

type Options struct {
	Chunker          chunker.Options
	TopK             int
	NoContextMessage string
	Levels           Levels
	BatchSize        int
	Parallelism      int
	Debug            bool
}

func (o Options) normalize() Options {
	if o.Chunker.Size == 0 && o.Chunker.Overlap == 0 {
		o.Chunker = chunker.DefaultOptions()
	}
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	if strings.TrimSpace(o.NoContextMessage) == "" {
		o.NoContextMessage = DefaultNoContextMessage
	}
	if o.Levels == (Levels{}) {
		o.Levels = DefaultLevels()
	}
	return o
}

type Pipeline struct {
	opts     Options
	embedder domain.Embedder
	store    domain.Store
	engine   *answer.Engine
	recorder *history.Recorder
	logger   *log.Logger
	metrics  *telemetry.Metrics
	tracer   trace.Tracer
	queue    Enqueuer
}

// Enqueuer hands extracted text to a background worker.
type Enqueuer interface {
	Enqueue(ctx context.Context, documentID, text string) error
}

// UseQueue makes AddDocument enqueue ingestion instead of running it inline.
// Call it before serving requests.
func (p *Pipeline) UseQueue(q Enqueuer) { p.queue = q }

// New takes already constructed components; nothing here dials out.
// A nil engine gives an ingest-only pipeline whose Ask and AskGeneral fail.
func New(opts Options, embedder domain.Embedder, store domain.Store, engine *answer.Engine, metrics *telemetry.Metrics) (*Pipeline, error) {
	opts = opts.normalize()
	if err := opts.Chunker.Validate(); err != nil {
		return nil, err
	}
	if embedder == nil || store == nil {
		return nil, fmt.Errorf("pipeline needs an embedder and a store")
	}
	return &Pipeline{
		opts:     opts,
		embedder: embedder,
		store:    store,
		engine:   engine,
		recorder: history.NewRecorder(store, metrics),
		logger:   log.New(log.Writer(), "[PIPELINE] ", log.LstdFlags),
		metrics:  metrics,
		tracer:   telemetry.Tracer("pipeline"),
	}, nil
}

// stage runs fn inside a span and records its duration.
func (p *Pipeline) stage(ctx context.Context, flow string, st Stage, fn func(ctx context.Context) error, attrs ...attribute.KeyValue) error {
	ctx, span := p.tracer.Start(ctx, flow+"."+string(st), trace.WithAttributes(attrs...))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	p.metrics.ObserveStage(flow, string(st), elapsed)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%s: %w", st, err)
	}
	if p.opts.Debug {
		p.logger.Printf("%s %s took %s", flow, st, elapsed)
	}
	return nil
}

func validateID(name, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %s must be a UUID", domain.ErrInvalidInput, name)
	}
	return nil
}
