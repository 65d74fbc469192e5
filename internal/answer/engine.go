// Package answer turns a question plus retrieved context into a single answer
// string by trying an ordered list of LLM candidates under a wall-clock deadline.
// It never returns an error: failures degrade to a configured apology message.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"text/template"
	"time"

	"github.com/mohammad-safakhou/docchat/internal/domain"
	"github.com/mohammad-safakhou/docchat/internal/llm"
	"github.com/mohammad-safakhou/docchat/internal/telemetry"
)

const (
	DefaultMaxContextChars = 4000
	DefaultTimeout         = 2 * time.Minute
	DefaultTemplate        = "Context:\n{{.Context}}\n\nQuestion: {{.Question}}\nAnswer:"
	DefaultGeneralTemplate = "Question: {{.Question}}\nAnswer:"
	DefaultTimeoutMessage  = "Sorry, the model took too long to respond. Please try again later."
	DefaultFailureMessage  = "Sorry, I could not get an answer."
)

// DefaultStopMarkers are end-of-turn tokens some models leak at the end of their output.
var DefaultStopMarkers = []string{"<end_of_turn>", "<eos>", "</s>", "<|eot_id|>", "<|im_end|>", "<|endoftext|>"}

var errEmptyOutput = errors.New("model returned empty output")

type Config struct {
	MaxContextChars int
	Timeout         time.Duration
	Template        string
	GeneralTemplate string
	TimeoutMessage  string
	FailureMessage  string
	StopMarkers     []string
}

func (c Config) normalize() Config {
	if c.MaxContextChars <= 0 {
		c.MaxContextChars = DefaultMaxContextChars
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if strings.TrimSpace(c.Template) == "" {
		c.Template = DefaultTemplate
	}
	if strings.TrimSpace(c.GeneralTemplate) == "" {
		c.GeneralTemplate = DefaultGeneralTemplate
	}
	if c.TimeoutMessage == "" {
		c.TimeoutMessage = DefaultTimeoutMessage
	}
	if c.FailureMessage == "" {
		c.FailureMessage = DefaultFailureMessage
	}
	if c.StopMarkers == nil {
		c.StopMarkers = DefaultStopMarkers
	}
	return c
}

// Attempt records one candidate call.
type Attempt struct {
	Model    string        `json:"model"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Result is the outcome of an answer call. Raw is the provider's unnormalised
// output on success, the joined error text on failure and nil on timeout.
type Result struct {
	Text     string
	Raw      any
	Model    string
	Context  string
	Attempts []Attempt
	Fallback bool
	TimedOut bool
	// Err is set when Text is a degraded message; for diagnostics only.
	Err error

	aborted bool
}

type Engine struct {
	cfg         Config
	candidates  []llm.Generator
	tmpl        *template.Template
	generalTmpl *template.Template
	logger      *log.Logger
	metrics     *telemetry.Metrics
}

// NewEngine validates configuration. Candidates are tried in order: primary first, then fallbacks.
func NewEngine(cfg Config, candidates []llm.Generator, metrics *telemetry.Metrics) (*Engine, error) {
	cfg = cfg.normalize()
	if len(candidates) == 0 {
		return nil, fmt.Errorf("answer engine needs at least one LLM candidate")
	}
	tmpl, err := template.New("prompt").Option("missingkey=error").Parse(cfg.Template)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template: %w", err)
	}
	generalTmpl, err := template.New("general").Option("missingkey=error").Parse(cfg.GeneralTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse general prompt template: %w", err)
	}
	return &Engine{
		cfg:         cfg,
		candidates:  candidates,
		tmpl:        tmpl,
		generalTmpl: generalTmpl,
		logger:      log.New(log.Writer(), "[ANSWER] ", log.LstdFlags),
		metrics:     metrics,
	}, nil
}

// Timeout is the wall-clock budget of one answer call.
func (e *Engine) Timeout() time.Duration { return e.cfg.Timeout }

// Answer builds the prompt from the truncated context and the question and runs the candidates.
func (e *Engine) Answer(ctx context.Context, question, contextText string) Result {
	contextText = Truncate(contextText, e.cfg.MaxContextChars)
	prompt, err := render(e.tmpl, question, contextText)
	if err != nil {
		return e.failed(fmt.Errorf("render prompt: %w", err), nil, contextText)
	}
	res := e.run(ctx, prompt)
	res.Context = contextText
	return res
}

// AnswerGeneral answers without document context.
func (e *Engine) AnswerGeneral(ctx context.Context, question string) Result {
	prompt, err := render(e.generalTmpl, question, "")
	if err != nil {
		return e.failed(fmt.Errorf("render prompt: %w", err), nil, "")
	}
	return e.run(ctx, prompt)
}

// Prompt renders the document prompt exactly as Answer would send it.
func (e *Engine) Prompt(question, contextText string) (string, error) {
	return render(e.tmpl, question, Truncate(contextText, e.cfg.MaxContextChars))
}

func (e *Engine) run(parent context.Context, prompt string) Result {
	ctx, cancel := context.WithTimeout(parent, e.cfg.Timeout)
	defer cancel()

	done := make(chan Result, 1)
	go func() { done <- e.tryCandidates(ctx, prompt) }()

	var res Result
	select {
	case res = <-done:
		if !res.aborted {
			return res
		}
	case <-ctx.Done():
		// a provider that ignores ctx must not hold the caller past the deadline
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		e.metrics.LLMTimeout()
		e.logger.Printf("warn: answer timed out after %s", e.cfg.Timeout)
		return Result{
			Text:     e.cfg.TimeoutMessage,
			Raw:      nil,
			Attempts: res.Attempts,
			TimedOut: true,
			Err:      fmt.Errorf("%w after %s", domain.ErrTimeout, e.cfg.Timeout),
		}
	}
	return e.failed(ctx.Err(), res.Attempts, "")
}

func (e *Engine) tryCandidates(ctx context.Context, prompt string) Result {
	var (
		attempts []Attempt
		errs     []error
	)
	for i, cand := range e.candidates {
		start := time.Now()
		text, raw, err := e.generate(ctx, cand, prompt)
		attempt := Attempt{Model: cand.Name(), Duration: time.Since(start)}
		if err == nil {
			attempts = append(attempts, attempt)
			e.metrics.LLMAttempt(cand.Name(), "ok")
			if i > 0 {
				e.metrics.LLMFallback()
				e.logger.Printf("answered by fallback candidate %s", cand.Name())
			}
			return Result{Text: text, Raw: raw, Model: cand.Name(), Attempts: attempts, Fallback: i > 0}
		}

		attempt.Error = err.Error()
		attempts = append(attempts, attempt)
		errs = append(errs, fmt.Errorf("%s: %w", cand.Name(), err))
		e.metrics.LLMAttempt(cand.Name(), "error")
		e.logger.Printf("warn: candidate %s failed: %v", cand.Name(), err)
		if ctx.Err() != nil {
			return Result{Attempts: attempts, aborted: true}
		}
	}
	return e.failed(errors.Join(errs...), attempts, "")
}

func (e *Engine) generate(ctx context.Context, cand llm.Generator, prompt string) (string, any, error) {
	out, err := cand.Generate(ctx, prompt)
	if err != nil {
		return "", nil, err
	}
	text, err := out.Normalize()
	if err != nil {
		return "", nil, err
	}
	text = StripMarkers(text, e.cfg.StopMarkers)
	if text == "" {
		return "", nil, errEmptyOutput
	}
	return text, out.Raw(), nil
}

func (e *Engine) failed(err error, attempts []Attempt, contextText string) Result {
	raw := ""
	if err != nil {
		raw = err.Error()
	}
	return Result{
		Text:     e.cfg.FailureMessage,
		Raw:      raw,
		Context:  contextText,
		Attempts: attempts,
		Err:      fmt.Errorf("%w: %w", domain.ErrGeneration, err),
	}
}

func render(t *template.Template, question, contextText string) (string, error) {
	var b strings.Builder
	err := t.Execute(&b, struct {
		Question string
		Context  string
	}{Question: question, Context: contextText})
	return b.String(), err
}
