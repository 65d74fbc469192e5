// Package worker moves document ingestion off the request path: uploads are
// published to a Redis stream and a worker process chunks and embeds them.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/docchat/internal/domain"
	"github.com/mohammad-safakhou/docchat/internal/queue/streams"
	"github.com/mohammad-safakhou/docchat/internal/telemetry"
)

// EventDocumentIngest is the event type of queued ingestion jobs.
const EventDocumentIngest = "document.ingest"

// IngestJob carries already extracted text so the worker never needs the upload itself.
type IngestJob struct {
	DocumentID string `json:"document_id"`
	Text       string `json:"text"`
}

// Publisher appends envelopes to a stream.
type Publisher interface {
	Publish(ctx context.Context, stream string, env streams.Envelope, opts ...streams.PublishOption) (string, error)
}

// Queue enqueues ingestion jobs.
type Queue struct {
	pub     Publisher
	stream  string
	maxLen  int64
	metrics *telemetry.Metrics
}

func NewQueue(pub Publisher, stream string, maxLen int64, metrics *telemetry.Metrics) *Queue {
	return &Queue{pub: pub, stream: stream, maxLen: maxLen, metrics: metrics}
}

func (q *Queue) Enqueue(ctx context.Context, documentID, text string) error {
	if strings.TrimSpace(documentID) == "" {
		return fmt.Errorf("%w: document_id required", domain.ErrInvalidInput)
	}
	if err := publishJob(ctx, q.pub, q.stream, IngestJob{DocumentID: documentID, Text: text}, 0, q.maxLen); err != nil {
		return err
	}
	q.metrics.IngestJob("enqueued")
	return nil
}

func publishJob(ctx context.Context, pub Publisher, stream string, job IngestJob, attempt int, maxLen int64) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal ingest job: %w", err)
	}
	env := streams.Envelope{EventType: EventDocumentIngest, Attempt: attempt, Data: data}
	if _, err := pub.Publish(ctx, stream, env, streams.WithMaxLenApprox(maxLen)); err != nil {
		return fmt.Errorf("publish %s: %w", EventDocumentIngest, err)
	}
	return nil
}
