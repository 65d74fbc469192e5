package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mohammad-safakhou/docchat/internal/httpclient"
)

const DefaultOllamaURL = "http://localhost:11434"

// Ollama streams a completion from a local Ollama server.
type Ollama struct {
	opts Options
	http *httpclient.Client
}

func NewOllama(opts Options) (*Ollama, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultOllamaURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &Ollama{opts: opts, http: httpclient.New(0, 0, 0)}, nil
}

func (p *Ollama) Name() string { return p.opts.displayName() }

type generateChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

// Generate returns the streamed fragments in the order the server emitted them.
func (p *Ollama) Generate(ctx context.Context, prompt string) (Output, error) {
	options := map[string]any{}
	if p.opts.Temperature > 0 {
		options["temperature"] = p.opts.Temperature
	}
	if p.opts.MaxTokens > 0 {
		options["num_predict"] = p.opts.MaxTokens
	}
	req := map[string]any{
		"model":   p.opts.Model,
		"prompt":  prompt,
		"stream":  true,
		"options": options,
	}
	resp, err := p.http.Do(ctx, http.MethodPost, p.opts.BaseURL+"/api/generate", nil, req)
	if err != nil {
		return Output{}, fmt.Errorf("ollama generate: %w", err)
	}
	defer resp.Body.Close()

	var tokens []string
	done := false
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var chunk generateChunk
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			return Output{}, fmt.Errorf("ollama generate: decode fragment: %w", err)
		}
		if chunk.Error != "" {
			return Output{}, fmt.Errorf("ollama generate: %s", chunk.Error)
		}
		if chunk.Response != "" {
			tokens = append(tokens, chunk.Response)
		}
		if chunk.Done {
			done = true
			break
		}
	}
	if err := sc.Err(); err != nil {
		return Output{}, fmt.Errorf("ollama generate: read stream: %w", err)
	}
	if !done {
		return Output{}, errors.New("ollama generate: stream ended before done")
	}
	return StreamOutput(tokens), nil
}
