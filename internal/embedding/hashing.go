package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/mohammad-safakhou/docchat/internal/vecmath"
)

// Hashing is an offline embedder based on signed feature hashing of word
// unigrams and character trigrams. It has no state besides its dimension
// count, so vectors computed at ingestion and at query time stay comparable.
type Hashing struct {
	dims int
}

func NewHashing(dims int) *Hashing {
	return &Hashing{dims: dims}
}

func (h *Hashing) Name() string    { return fmt.Sprintf("hashing-%d", h.dims) }
func (h *Hashing) Dimensions() int { return h.dims }

func (h *Hashing) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if h.dims <= 0 {
		return nil, wrap(fmt.Errorf("hashing embedder needs positive dimensions, got %d", h.dims))
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, wrap(err)
		}
		out[i] = h.vector(text)
	}
	return out, nil
}

func (h *Hashing) vector(text string) []float32 {
	v := make([]float32, h.dims)
	for _, tok := range tokenize(text) {
		h.add(v, "w:"+tok, 1)
		runes := []rune(" " + tok + " ")
		for i := 0; i+3 <= len(runes); i++ {
			h.add(v, "c:"+string(runes[i:i+3]), 0.5)
		}
	}
	vecmath.Normalize(v)
	return v
}

func (h *Hashing) add(v []float32, feature string, weight float32) {
	f := fnv.New64a()
	_, _ = f.Write([]byte(feature))
	sum := f.Sum64()
	idx := sum % uint64(h.dims)
	if sum>>63 == 1 {
		weight = -weight
	}
	v[idx] += weight
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
