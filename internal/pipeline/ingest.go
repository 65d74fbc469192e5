package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mohammad-safakhou/docchat/internal/chunker"
	"github.com/mohammad-safakhou/docchat/internal/domain"
	"github.com/mohammad-safakhou/docchat/internal/embedding"
	"github.com/mohammad-safakhou/docchat/internal/extract"
	"go.opentelemetry.io/otel/attribute"
)

// NewDocument is an upload waiting to be stored and ingested.
type NewDocument struct {
	ID          string
	UserID      string
	Title       string
	Filename    string
	ContentType string
	Data        []byte
}

// IngestReport describes how far ingestion of one document got.
type IngestReport struct {
	DocumentID  string  `json:"document_id"`
	Stage       Stage   `json:"stage"`
	Chunks      int     `json:"chunks"`
	Characters  int     `json:"characters"`
	Embedder    string  `json:"embedder"`
	ElapsedTime float64 `json:"elapsed_time"`
	Error       string  `json:"error,omitempty"`
}

// Ingest chunks text, embeds every chunk and stores them all in one transaction.
// The document must exist and must not have been ingested before.
func (p *Pipeline) Ingest(ctx context.Context, documentID, text string) (IngestReport, error) {
	start := time.Now()
	report := IngestReport{
		DocumentID: documentID,
		Stage:      StageIdle,
		Characters: utf8.RuneCountInString(text),
		Embedder:   p.embedder.Name(),
	}
	finish := func(err error) (IngestReport, error) {
		report.ElapsedTime = time.Since(start).Seconds()
		if err != nil {
			report.Error = err.Error()
		}
		return report, err
	}

	docAttr := attribute.String("document.id", documentID)
	var chunks []domain.NewChunk
	err := p.stage(ctx, flowIngest, StageChunkAndEmbed, func(ctx context.Context) error {
		texts, err := chunker.Split(text, p.opts.Chunker)
		if err != nil {
			return err
		}
		vecs, err := embedding.EmbedAll(ctx, p.embedder, texts, p.opts.BatchSize, p.opts.Parallelism)
		if err != nil {
			return err
		}
		chunks = make([]domain.NewChunk, len(texts))
		for i := range texts {
			chunks[i] = domain.NewChunk{Text: texts[i], Embedding: vecs[i]}
		}
		return nil
	}, docAttr)
	if err != nil {
		return finish(err)
	}
	report.Stage = StageChunkAndEmbed

	err = p.stage(ctx, flowIngest, StageStored, func(ctx context.Context) error {
		return p.store.InsertChunks(ctx, documentID, chunks)
	}, docAttr, attribute.Int("chunks", len(chunks)))
	if err != nil {
		return finish(err)
	}
	report.Stage = StageStored
	report.Chunks = len(chunks)
	p.metrics.ChunksIngested(len(chunks))
	p.logger.Printf("ingested document %s: %d chunks from %d characters", documentID, len(chunks), report.Characters)
	return finish(nil)
}

// AddDocument commits the document metadata, then extracts and ingests its text,
// or enqueues the text when a queue is configured.
// Ingestion failures do not remove the document: they are logged and reported,
// and the document stays queryable against whatever chunks it has (none).
func (p *Pipeline) AddDocument(ctx context.Context, in NewDocument) (domain.Document, IngestReport, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return domain.Document{}, IngestReport{}, fmt.Errorf("%w: user_id required", domain.ErrInvalidInput)
	}
	if err := validateID("user_id", in.UserID); err != nil {
		return domain.Document{}, IngestReport{}, err
	}
	if in.ID != "" {
		if err := validateID("document_id", in.ID); err != nil {
			return domain.Document{}, IngestReport{}, err
		}
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = in.Filename
	}

	doc, err := p.store.CreateDocument(ctx, domain.Document{
		ID:          in.ID,
		UserID:      in.UserID,
		Title:       title,
		ContentType: extract.DetectType(in.Data, in.ContentType, in.Filename),
		FileSize:    int64(len(in.Data)),
	})
	if err != nil {
		return domain.Document{}, IngestReport{}, err
	}

	text, err := extract.Text(in.Data, doc.ContentType, in.Filename)
	if err != nil {
		p.logger.Printf("warn: extraction failed for document %s: %v", doc.ID, err)
		return doc, IngestReport{DocumentID: doc.ID, Stage: StageIdle, Embedder: p.embedder.Name(), Error: err.Error()}, nil
	}
	if p.queue != nil {
		report := IngestReport{
			DocumentID: doc.ID,
			Stage:      StageQueued,
			Characters: utf8.RuneCountInString(text),
			Embedder:   p.embedder.Name(),
		}
		if err := p.queue.Enqueue(ctx, doc.ID, text); err != nil {
			p.logger.Printf("warn: enqueue failed for document %s: %v", doc.ID, err)
			report.Stage = StageIdle
			report.Error = err.Error()
		}
		return doc, report, nil
	}
	report, err := p.Ingest(ctx, doc.ID, text)
	if err != nil {
		p.logger.Printf("warn: ingestion failed for document %s at %s: %v", doc.ID, report.Stage, err)
	}
	return doc, report, nil
}
