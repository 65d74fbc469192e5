package llm

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMissingCredential is returned at construction when a hosted provider has no API key.
var ErrMissingCredential = errors.New("missing provider credential")

const (
	ProviderOpenAI    = "openai"
	ProviderReplicate = "replicate"
	ProviderOllama    = "ollama"
)

// Options configures one candidate model.
type Options struct {
	Name        string
	Provider    string
	Model       string
	BaseURL     string
	APIKey      string
	MaxTokens   int
	Temperature float64
	// Timeout bounds a single HTTP exchange; the answer engine applies the overall deadline.
	Timeout time.Duration
}

func (o Options) displayName() string {
	if o.Name != "" {
		return o.Name
	}
	return o.Provider + "/" + o.Model
}

// New builds the generator for one candidate.
func New(opts Options) (Generator, error) {
	if strings.TrimSpace(opts.Model) == "" {
		return nil, fmt.Errorf("llm candidate %q: model required", opts.displayName())
	}
	switch strings.ToLower(opts.Provider) {
	case ProviderOpenAI:
		return NewOpenAI(opts)
	case ProviderReplicate:
		return NewReplicate(opts)
	case ProviderOllama:
		return NewOllama(opts)
	default:
		return nil, fmt.Errorf("unsupported LLM provider type: %s", opts.Provider)
	}
}
