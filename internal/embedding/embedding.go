// Package embedding turns text into fixed-length vectors. Every backend is
// order-preserving and reports failures wrapped in domain.ErrEmbedding.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/mohammad-safakhou/docchat/internal/domain"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultBatchSize   = 32
	DefaultParallelism = 4
)

// EmbedAll embeds texts in batches of batchSize with at most parallelism batches
// in flight. Output order always matches input order.
func EmbedAll(ctx context.Context, e domain.Embedder, texts []string, batchSize, parallelism int) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		g.Go(func() error {
			vecs, err := e.Embed(gctx, texts[start:end])
			if err != nil {
				return err
			}
			if len(vecs) != end-start {
				return fmt.Errorf("%w: backend returned %d vectors for %d texts", domain.ErrEmbedding, len(vecs), end-start)
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, wrap(err)
	}
	if err := CheckDimensions(out, e.Dimensions()); err != nil {
		return nil, err
	}
	return out, nil
}

// EmbedOne embeds a single text.
func EmbedOne(ctx context.Context, e domain.Embedder, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, wrap(err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%w: backend returned %d vectors for 1 text", domain.ErrEmbedding, len(vecs))
	}
	if err := CheckDimensions(vecs, e.Dimensions()); err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// CheckDimensions fails when any vector does not have exactly dims components.
func CheckDimensions(vecs [][]float32, dims int) error {
	for i, v := range vecs {
		if len(v) != dims {
			return fmt.Errorf("%w: %w: vector %d has %d dimensions, want %d", domain.ErrEmbedding, domain.ErrDimensionMismatch, i, len(v), dims)
		}
	}
	return nil
}

func wrap(err error) error {
	if err == nil || errors.Is(err, domain.ErrEmbedding) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrEmbedding, err)
}
