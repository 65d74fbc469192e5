// Package llm talks to text-generation providers and normalises their heterogeneous
// outputs into a tagged Output value.
package llm

import (
	"context"
	"fmt"
	"strings"
)

// Kind tags the shape a provider returned.
type Kind int

const (
	KindText Kind = iota + 1
	KindStream
	KindStructured
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindStream:
		return "stream"
	case KindStructured:
		return "structured"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Output is one of Text(string), Stream([]string) or Structured(map). Only the
// field matching Kind is meaningful.
type Output struct {
	Kind   Kind
	Text   string
	Tokens []string
	Fields map[string]any
}

func TextOutput(s string) Output          { return Output{Kind: KindText, Text: s} }
func StreamOutput(tokens []string) Output { return Output{Kind: KindStream, Tokens: tokens} }
func StructuredOutput(fields map[string]any) Output {
	return Output{Kind: KindStructured, Fields: fields}
}

// Generator produces an Output for a single prompt.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string) (Output, error)
}

// Normalize flattens the output into one string. Stream fragments are joined in
// emission order; structured payloads must carry a recognised text field.
func (o Output) Normalize() (string, error) {
	switch o.Kind {
	case KindText:
		return normalizeText(o.Text), nil
	case KindStream:
		return normalizeStream(o.Tokens), nil
	case KindStructured:
		return normalizeStructured(o.Fields)
	default:
		return "", fmt.Errorf("unknown output kind %v", o.Kind)
	}
}

// Raw returns the provider value before normalisation, for diagnostics.
func (o Output) Raw() any {
	switch o.Kind {
	case KindText:
		return o.Text
	case KindStream:
		return o.Tokens
	case KindStructured:
		return o.Fields
	default:
		return nil
	}
}

func normalizeText(s string) string { return s }

func normalizeStream(tokens []string) string {
	return strings.Join(tokens, "")
}

// checked in order; the first one holding text wins
var textKeys = []string{"choices", "message", "output", "text", "content", "answer", "response", "generated_text"}

func normalizeStructured(fields map[string]any) (string, error) {
	if s, ok := textFrom(fields); ok {
		return s, nil
	}
	return "", fmt.Errorf("structured output has no text field")
}

func textFrom(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case []any:
		var b strings.Builder
		found := false
		for _, item := range x {
			if s, ok := textFrom(item); ok {
				b.WriteString(s)
				found = true
			}
		}
		return b.String(), found
	case []string:
		return strings.Join(x, ""), true
	case map[string]any:
		for _, key := range textKeys {
			inner, ok := x[key]
			if !ok {
				continue
			}
			if list, isList := inner.([]any); isList && key == "choices" {
				if len(list) == 0 {
					continue
				}
				inner = list[0]
			}
			if s, ok := textFrom(inner); ok {
				return s, true
			}
		}
	}
	return "", false
}

// outputFrom tags an arbitrary decoded JSON value.
func outputFrom(v any) Output {
	switch x := v.(type) {
	case nil:
		return TextOutput("")
	case string:
		return TextOutput(x)
	case []any:
		tokens := make([]string, 0, len(x))
		for _, item := range x {
			s, ok := item.(string)
			if !ok {
				return StructuredOutput(map[string]any{"output": x})
			}
			tokens = append(tokens, s)
		}
		return StreamOutput(tokens)
	case map[string]any:
		return StructuredOutput(x)
	default:
		return TextOutput(fmt.Sprint(x))
	}
}
