package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/mohammad-safakhou/docchat/internal/httpclient"
)

const DefaultOpenAIURL = "https://api.openai.com/v1"

// OpenAI calls an OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	opts Options
	http *httpclient.Client
}

func NewOpenAI(opts Options) (*OpenAI, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("openai candidate %q: %w", opts.displayName(), ErrMissingCredential)
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultOpenAIURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &OpenAI{opts: opts, http: httpclient.New(opts.Timeout, 0, 0)}, nil
}

func (p *OpenAI) Name() string { return p.opts.displayName() }

func (p *OpenAI) Generate(ctx context.Context, prompt string) (Output, error) {
	type chatMsg struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	type chatReq struct {
		Model       string    `json:"model"`
		Messages    []chatMsg `json:"messages"`
		Temperature float64   `json:"temperature,omitempty"`
		MaxTokens   int       `json:"max_tokens,omitempty"`
	}
	req := chatReq{
		Model:       p.opts.Model,
		Messages:    []chatMsg{{Role: "user", Content: prompt}},
		Temperature: p.opts.Temperature,
		MaxTokens:   p.opts.MaxTokens,
	}
	headers := map[string]string{"Authorization": "Bearer " + p.opts.APIKey}

	var resp map[string]any
	if err := p.http.DoJSON(ctx, http.MethodPost, p.opts.BaseURL+"/chat/completions", headers, req, &resp); err != nil {
		return Output{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if apiErr, ok := resp["error"]; ok && apiErr != nil {
		return Output{}, fmt.Errorf("openai chat completion: %v", apiErr)
	}
	return StructuredOutput(resp), nil
}
