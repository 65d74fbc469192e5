package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mohammad-safakhou/docchat/internal/answer"
	"github.com/mohammad-safakhou/docchat/internal/domain"
	"github.com/mohammad-safakhou/docchat/internal/embedding"
	"go.opentelemetry.io/otel/attribute"
)

// Query is a question about one document.
type Query struct {
	Question   string
	DocumentID string
	UserID     string
	Level      int
}

// GeneralQuery is a question answered without document context.
type GeneralQuery struct {
	Question string
	UserID   string
	Level    int
}

// Response is always well formed, even when the answer is a degraded message.
type Response struct {
	Question    string   `json:"question"`
	Answer      string   `json:"answer"`
	RawResponse any      `json:"raw_response"`
	ElapsedTime float64  `json:"elapsed_time"`
	DocumentID  string   `json:"document_id,omitempty"`
	Context     string   `json:"context,omitempty"`
	Model       string   `json:"model,omitempty"`
	Fallback    bool     `json:"fallback,omitempty"`
	TimedOut    bool     `json:"timed_out,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
}

func validateQuestion(question, userID string, level int) error {
	if strings.TrimSpace(question) == "" {
		return fmt.Errorf("%w: question required", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: user_id required", domain.ErrInvalidInput)
	}
	if err := validateID("user_id", userID); err != nil {
		return err
	}
	return validateLevel(level)
}

// errNoEngine is returned by ingest-only pipelines built without an answer engine.
var errNoEngine = errors.New("pipeline has no answer engine")

func (p *Pipeline) canAnswer(question, userID string, level int) error {
	if p.engine == nil {
		return errNoEngine
	}
	return validateQuestion(question, userID, level)
}

// Ask runs EmbedQuery, Retrieve, Generate and Record in order. Embedding and
// retrieval failures are returned; generation and history failures degrade the
// response instead.
func (p *Pipeline) Ask(ctx context.Context, q Query) (Response, error) {
	if err := p.canAnswer(q.Question, q.UserID, q.Level); err != nil {
		return Response{}, err
	}
	if err := validateID("document_id", q.DocumentID); err != nil {
		return Response{}, err
	}
	start := time.Now()
	if _, err := p.store.GetDocument(ctx, q.DocumentID); err != nil {
		return Response{}, err
	}

	docAttr := attribute.String("document.id", q.DocumentID)
	var vec []float32
	err := p.stage(ctx, flowQuestion, StageEmbedQuery, func(ctx context.Context) (err error) {
		vec, err = embedding.EmbedOne(ctx, p.embedder, q.Question)
		return err
	}, docAttr)
	if err != nil {
		return Response{}, err
	}

	var hits []domain.Hit
	err = p.stage(ctx, flowQuestion, StageRetrieve, func(ctx context.Context) (err error) {
		hits, err = p.store.Nearest(ctx, q.DocumentID, vec, p.opts.TopK)
		if err != nil && !errors.Is(err, domain.ErrRetrieval) {
			err = fmt.Errorf("%w: %w", domain.ErrRetrieval, err)
		}
		return err
	}, docAttr, attribute.Int("top_k", p.opts.TopK))
	if err != nil {
		return Response{}, err
	}

	contextText := p.opts.NoContextMessage
	if len(hits) > 0 {
		texts := make([]string, len(hits))
		for i, h := range hits {
			texts[i] = h.Text
		}
		contextText = strings.Join(texts, "\n")
	}

	var res answer.Result
	_ = p.stage(ctx, flowQuestion, StageGenerate, func(ctx context.Context) error {
		res = p.engine.Answer(ctx, p.opts.Levels.Apply(q.Level, q.Question), contextText)
		return nil
	}, docAttr, attribute.Int("hits", len(hits)))
	if res.Err != nil {
		p.logger.Printf("warn: degraded answer for document %s: %v", q.DocumentID, res.Err)
	}

	docID := q.DocumentID
	resp := p.respond(ctx, flowQuestion, q.UserID, &docID, q.Question, res)
	resp.DocumentID = q.DocumentID
	resp.ElapsedTime = time.Since(start).Seconds()
	return resp, nil
}

// AskGeneral answers without retrieval. History is recorded without a document.
func (p *Pipeline) AskGeneral(ctx context.Context, q GeneralQuery) (Response, error) {
	if err := p.canAnswer(q.Question, q.UserID, q.Level); err != nil {
		return Response{}, err
	}
	start := time.Now()

	var res answer.Result
	_ = p.stage(ctx, flowGeneral, StageGenerate, func(ctx context.Context) error {
		res = p.engine.AnswerGeneral(ctx, p.opts.Levels.Apply(q.Level, q.Question))
		return nil
	})
	if res.Err != nil {
		p.logger.Printf("warn: degraded general answer: %v", res.Err)
	}

	resp := p.respond(ctx, flowGeneral, q.UserID, nil, q.Question, res)
	resp.ElapsedTime = time.Since(start).Seconds()
	return resp, nil
}

func (p *Pipeline) respond(ctx context.Context, flow, userID string, documentID *string, question string, res answer.Result) Response {
	resp := Response{
		Question:    question,
		Answer:      res.Text,
		RawResponse: res.Raw,
		Context:     res.Context,
		Model:       res.Model,
		Fallback:    res.Fallback,
		TimedOut:    res.TimedOut,
	}
	err := p.stage(ctx, flow, StageRecord, func(ctx context.Context) error {
		return p.recorder.Record(ctx, userID, documentID, question, res.Text)
	})
	if err != nil {
		resp.Warnings = append(resp.Warnings, "conversation history was not saved")
	}
	return resp
}
