package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mohammad-safakhou/docchat/internal/httpclient"
)

const DefaultReplicateURL = "https://api.replicate.com"

// Replicate runs a prediction on a hosted model such as google-deepmind/gemma-3-27b-it.
// Model may be "owner/name" (latest version) or "owner/name:version".
type Replicate struct {
	opts         Options
	http         *httpclient.Client
	pollInterval time.Duration
}

func NewReplicate(opts Options) (*Replicate, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("replicate candidate %q: %w", opts.displayName(), ErrMissingCredential)
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultReplicateURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &Replicate{opts: opts, http: httpclient.New(opts.Timeout, 0, 0), pollInterval: time.Second}, nil
}

func (p *Replicate) Name() string { return p.opts.displayName() }

type prediction struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Output any    `json:"output"`
	Error  any    `json:"error"`
	URLs   struct {
		Get string `json:"get"`
	} `json:"urls"`
}

func (p *Replicate) Generate(ctx context.Context, prompt string) (Output, error) {
	input := map[string]any{"prompt": prompt}
	if p.opts.MaxTokens > 0 {
		input["max_new_tokens"] = p.opts.MaxTokens
	}
	if p.opts.Temperature > 0 {
		input["temperature"] = p.opts.Temperature
	}

	url := p.opts.BaseURL + "/v1/models/" + p.opts.Model + "/predictions"
	body := map[string]any{"input": input}
	if model, version, ok := strings.Cut(p.opts.Model, ":"); ok && model != "" {
		url = p.opts.BaseURL + "/v1/predictions"
		body["version"] = version
	}
	headers := map[string]string{
		"Authorization": "Bearer " + p.opts.APIKey,
		"Prefer":        "wait",
	}

	var pred prediction
	if err := p.http.DoJSON(ctx, http.MethodPost, url, headers, body, &pred); err != nil {
		return Output{}, fmt.Errorf("replicate create prediction: %w", err)
	}
	for pred.Status == "starting" || pred.Status == "processing" {
		if pred.URLs.Get == "" {
			return Output{}, fmt.Errorf("replicate prediction %s is %s with no poll url", pred.ID, pred.Status)
		}
		select {
		case <-time.After(p.pollInterval):
		case <-ctx.Done():
			return Output{}, ctx.Err()
		}
		next := prediction{}
		if err := p.http.DoJSON(ctx, http.MethodGet, pred.URLs.Get, headers, nil, &next); err != nil {
			return Output{}, fmt.Errorf("replicate poll prediction %s: %w", pred.ID, err)
		}
		pred = next
	}
	switch pred.Status {
	case "succeeded":
		return outputFrom(pred.Output), nil
	case "failed", "canceled":
		return Output{}, fmt.Errorf("replicate prediction %s %s: %v", pred.ID, pred.Status, pred.Error)
	default:
		return Output{}, fmt.Errorf("replicate prediction %s: unexpected status %q", pred.ID, pred.Status)
	}
}
