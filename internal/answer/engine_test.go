package answer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mohammad-safakhou/docchat/internal/domain"
	"github.com/mohammad-safakhou/docchat/internal/llm"
)

type fakeModel struct {
	name  string
	out   llm.Output
	err   error
	delay time.Duration
	// ignoreCtx makes the model sleep through cancellation
	ignoreCtx bool

	mu      sync.Mutex
	prompts []string
}

func (f *fakeModel) Name() string { return f.name }

func (f *fakeModel) Generate(ctx context.Context, prompt string) (llm.Output, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.delay > 0 {
		if f.ignoreCtx {
			time.Sleep(f.delay)
		} else {
			select {
			case <-time.After(f.delay):
			case <-ctx.Done():
				return llm.Output{}, ctx.Err()
			}
		}
	}
	return f.out, f.err
}

func (f *fakeModel) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func newEngine(t *testing.T, cfg Config, models ...llm.Generator) *Engine {
	t.Helper()
	e, err := NewEngine(cfg, models, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestAnswerPrimarySucceeds(t *testing.T) {
	primary := &fakeModel{name: "gemma-27b", out: llm.TextOutput("Close the valve.<end_of_turn>")}
	fallback := &fakeModel{name: "gemma-4b", out: llm.TextOutput("unused")}
	e := newEngine(t, Config{}, primary, fallback)

	res := e.Answer(context.Background(), "What first?", "Always close the valve.")
	if res.Text != "Close the valve." || res.Model != "gemma-27b" || res.Fallback || res.Err != nil {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Raw != "Close the valve.<end_of_turn>" {
		t.Fatalf("expected raw provider output got %#v", res.Raw)
	}
	if fallback.calls() != 0 {
		t.Fatalf("fallback should not be called")
	}
	want := "Context:\nAlways close the valve.\n\nQuestion: What first?\nAnswer:"
	if primary.prompts[0] != want {
		t.Fatalf("unexpected prompt %q", primary.prompts[0])
	}
}

func TestAnswerFallsBackOnce(t *testing.T) {
	primary := &fakeModel{name: "primary", err: errors.New("502 Bad Gateway")}
	fallback := &fakeModel{name: "fallback", out: llm.StreamOutput([]string{"Use ", "PTFE ", "tape."})}
	e := newEngine(t, Config{}, primary, fallback)

	res := e.Answer(context.Background(), "q", "c")
	if res.Text != "Use PTFE tape." || res.Model != "fallback" || !res.Fallback {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(res.Attempts) != 2 || res.Attempts[0].Error == "" || res.Attempts[1].Error != "" {
		t.Fatalf("unexpected attempts %+v", res.Attempts)
	}
	if primary.calls() != 1 || fallback.calls() != 1 {
		t.Fatalf("expected exactly one call each, got %d and %d", primary.calls(), fallback.calls())
	}
}

func TestAnswerAllCandidatesFail(t *testing.T) {
	primary := &fakeModel{name: "primary", err: errors.New("connection refused")}
	fallback := &fakeModel{name: "fallback", out: llm.StructuredOutput(map[string]any{"usage": 1})}
	e := newEngine(t, Config{FailureMessage: "Error contacting the model."}, primary, fallback)

	res := e.Answer(context.Background(), "q", "c")
	if res.Text != "Error contacting the model." {
		t.Fatalf("unexpected text %q", res.Text)
	}
	raw, ok := res.Raw.(string)
	if !ok || !strings.Contains(raw, "connection refused") || !strings.Contains(raw, "fallback") {
		t.Fatalf("expected joined error text in raw got %#v", res.Raw)
	}
	if !errors.Is(res.Err, domain.ErrGeneration) {
		t.Fatalf("expected ErrGeneration got %v", res.Err)
	}
}

func TestAnswerEmptyOutputTriggersFallback(t *testing.T) {
	primary := &fakeModel{name: "primary", out: llm.TextOutput("  <eos> ")}
	fallback := &fakeModel{name: "fallback", out: llm.TextOutput("real answer")}
	e := newEngine(t, Config{}, primary, fallback)

	if res := e.Answer(context.Background(), "q", "c"); res.Text != "real answer" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestAnswerTimeout(t *testing.T) {
	slow := &fakeModel{name: "slow", out: llm.TextOutput("late"), delay: 5 * time.Second}
	e := newEngine(t, Config{Timeout: 50 * time.Millisecond}, slow, &fakeModel{name: "fallback", out: llm.TextOutput("x")})

	start := time.Now()
	res := e.Answer(context.Background(), "q", "c")
	elapsed := time.Since(start)

	if !res.TimedOut || res.Text != DefaultTimeoutMessage || res.Raw != nil {
		t.Fatalf("unexpected result %+v", res)
	}
	if !errors.Is(res.Err, domain.ErrTimeout) {
		t.Fatalf("expected ErrTimeout got %v", res.Err)
	}
	if elapsed > time.Second {
		t.Fatalf("timeout not honoured: took %s", elapsed)
	}
}

func TestAnswerTimeoutWithProviderIgnoringContext(t *testing.T) {
	stuck := &fakeModel{name: "stuck", out: llm.TextOutput("late"), delay: 2 * time.Second, ignoreCtx: true}
	e := newEngine(t, Config{Timeout: 50 * time.Millisecond}, stuck)

	start := time.Now()
	res := e.Answer(context.Background(), "q", "c")
	if !res.TimedOut || res.Raw != nil {
		t.Fatalf("unexpected result %+v", res)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("caller held past deadline: %s", elapsed)
	}
}

func TestAnswerCallerCancelled(t *testing.T) {
	slow := &fakeModel{name: "slow", out: llm.TextOutput("late"), delay: 5 * time.Second}
	e := newEngine(t, Config{Timeout: time.Minute}, slow)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	res := e.Answer(ctx, "q", "c")
	if res.TimedOut || res.Text != DefaultFailureMessage {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestAnswerTruncatesContext(t *testing.T) {
	m := &fakeModel{name: "m", out: llm.TextOutput("ok")}
	e := newEngine(t, Config{MaxContextChars: 10, Template: "{{.Context}}|{{.Question}}"}, m)

	res := e.Answer(context.Background(), "q", "ääääääääääXXXXX")
	if res.Context != "ääääääääää" {
		t.Fatalf("unexpected context %q", res.Context)
	}
	if m.prompts[0] != "ääääääääää|q" {
		t.Fatalf("unexpected prompt %q", m.prompts[0])
	}
}

func TestAnswerGeneral(t *testing.T) {
	m := &fakeModel{name: "m", out: llm.TextOutput("hello")}
	e := newEngine(t, Config{}, m)

	res := e.AnswerGeneral(context.Background(), "Which glue for PVC?")
	if res.Text != "hello" || res.Context != "" {
		t.Fatalf("unexpected result %+v", res)
	}
	if m.prompts[0] != "Question: Which glue for PVC?\nAnswer:" {
		t.Fatalf("unexpected prompt %q", m.prompts[0])
	}
}

func TestNewEngineConfigFaults(t *testing.T) {
	if _, err := NewEngine(Config{}, nil, nil); err == nil {
		t.Fatalf("expected error without candidates")
	}
	m := &fakeModel{name: "m"}
	if _, err := NewEngine(Config{Template: "{{.Context"}, []llm.Generator{m}, nil); err == nil {
		t.Fatalf("expected template parse error")
	}
}

func TestStripMarkers(t *testing.T) {
	cases := map[string]string{
		"answer<end_of_turn>":           "answer",
		"answer <end_of_turn>\n<eos>  ": "answer",
		"answer</s><|eot_id|>":          "answer",
		"keep <eos> in the middle":      "keep <eos> in the middle",
		"  padded  ":                    "padded",
		"<end_of_turn>":                 "",
	}
	for in, want := range cases {
		if got := StripMarkers(in, DefaultStopMarkers); got != want {
			t.Fatalf("StripMarkers(%q) = %q want %q", in, got, want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("abcdef", 4); got != "abcd" {
		t.Fatalf("got %q", got)
	}
	if got := Truncate("abc", 4); got != "abc" {
		t.Fatalf("got %q", got)
	}
	if got := Truncate(strings.Repeat("x", 5000), DefaultMaxContextChars); len(got) != DefaultMaxContextChars {
		t.Fatalf("expected %d chars got %d", DefaultMaxContextChars, len(got))
	}
}
