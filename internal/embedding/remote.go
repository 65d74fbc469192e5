package embedding

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/mohammad-safakhou/docchat/internal/httpclient"
	"golang.org/x/time/rate"
)

// Remote backend kinds.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

const (
	DefaultOllamaURL = "http://localhost:11434"
	DefaultOpenAIURL = "https://api.openai.com/v1"
)

// RemoteOptions configures an HTTP embedding backend.
type RemoteOptions struct {
	Provider          string
	BaseURL           string
	Model             string
	APIKey            string
	Dimensions        int
	BatchSize         int
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerSecond float64
}

// Remote embeds through an Ollama (/api/embed) or OpenAI-compatible (/embeddings) server.
type Remote struct {
	opts    RemoteOptions
	http    *httpclient.Client
	limiter *rate.Limiter
}

func NewRemote(opts RemoteOptions) (*Remote, error) {
	opts.Provider = strings.ToLower(strings.TrimSpace(opts.Provider))
	switch opts.Provider {
	case ProviderOllama:
		if opts.BaseURL == "" {
			opts.BaseURL = DefaultOllamaURL
		}
	case ProviderOpenAI:
		if opts.BaseURL == "" {
			opts.BaseURL = DefaultOpenAIURL
		}
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %q", opts.Provider)
	}
	if strings.TrimSpace(opts.Model) == "" {
		return nil, fmt.Errorf("embedding model required for provider %s", opts.Provider)
	}
	if opts.Dimensions <= 0 {
		return nil, fmt.Errorf("embedding dimensions must be > 0")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := int(math.Max(1, math.Ceil(opts.RequestsPerSecond)))
	return &Remote{
		opts:    opts,
		http:    httpclient.New(opts.Timeout, opts.MaxRetries, 0),
		limiter: rate.NewLimiter(limit, burst),
	}, nil
}

func (r *Remote) Name() string    { return r.opts.Provider + ":" + r.opts.Model }
func (r *Remote) Dimensions() int { return r.opts.Dimensions }

// Embed sends texts in batches of BatchSize, sequentially. EmbedAll adds parallelism on top.
func (r *Remote) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += r.opts.BatchSize {
		end := min(start+r.opts.BatchSize, len(texts))
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, wrap(err)
		}
		var (
			vecs [][]float32
			err  error
		)
		switch r.opts.Provider {
		case ProviderOllama:
			vecs, err = r.ollama(ctx, texts[start:end])
		default:
			vecs, err = r.openai(ctx, texts[start:end])
		}
		if err != nil {
			return nil, wrap(fmt.Errorf("%s embed batch [%d:%d]: %w", r.opts.Provider, start, end, err))
		}
		if len(vecs) != end-start {
			return nil, wrap(fmt.Errorf("%s returned %d vectors for %d texts", r.opts.Provider, len(vecs), end-start))
		}
		out = append(out, vecs...)
	}
	if err := CheckDimensions(out, r.opts.Dimensions); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Remote) ollama(ctx context.Context, texts []string) ([][]float32, error) {
	req := map[string]any{"model": r.opts.Model, "input": texts}
	var resp struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := r.http.DoJSON(ctx, http.MethodPost, r.opts.BaseURL+"/api/embed", nil, req, &resp); err != nil {
		return nil, err
	}
	return resp.Embeddings, nil
}

func (r *Remote) openai(ctx context.Context, texts []string) ([][]float32, error) {
	req := map[string]any{"model": r.opts.Model, "input": texts}
	headers := map[string]string{}
	if r.opts.APIKey != "" {
		headers["Authorization"] = "Bearer " + r.opts.APIKey
	}
	var resp struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := r.http.DoJSON(ctx, http.MethodPost, r.opts.BaseURL+"/embeddings", headers, req, &resp); err != nil {
		return nil, err
	}
	sort.SliceStable(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
	vecs := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vecs[i] = d.Embedding
	}
	return vecs, nil
}
