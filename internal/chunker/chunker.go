// Package chunker splits extracted document text into overlapping fixed-size windows.
package chunker

import (
	"fmt"
	"iter"

	"github.com/mohammad-safakhou/docchat/internal/domain"
)

const (
	DefaultSize    = 800
	DefaultOverlap = 200
)

// Options configures window size and overlap, measured in characters (runes).
type Options struct {
	Size    int
	Overlap int
}

// DefaultOptions returns the 800/200 windowing used for ingestion.
func DefaultOptions() Options {
	return Options{Size: DefaultSize, Overlap: DefaultOverlap}
}

// Validate checks 0 < overlap < size.
func (o Options) Validate() error {
	if o.Size <= 0 {
		return fmt.Errorf("%w: chunk size must be > 0, got %d", domain.ErrInvalidInput, o.Size)
	}
	if o.Overlap <= 0 || o.Overlap >= o.Size {
		return fmt.Errorf("%w: chunk overlap must satisfy 0 < overlap < size, got overlap=%d size=%d", domain.ErrInvalidInput, o.Overlap, o.Size)
	}
	return nil
}

func (o Options) step() int { return o.Size - o.Overlap }

// Windows returns a lazy sequence of windows over text. Window i covers runes
// [i*(size-overlap), i*(size-overlap)+size) clipped to the text length; the
// sequence ends once a window would start at or past the end. Each range over
// the result starts again from the beginning.
func Windows(text string, opts Options) (iter.Seq[string], error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return func(yield func(string) bool) {
		if text == "" {
			return
		}
		runes := []rune(text)
		step := opts.step()
		for start := 0; start < len(runes); start += step {
			end := start + opts.Size
			if end > len(runes) {
				end = len(runes)
			}
			if !yield(string(runes[start:end])) {
				return
			}
		}
	}, nil
}

// Split collects Windows into a slice.
func Split(text string, opts Options) ([]string, error) {
	seq, err := Windows(text, opts)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, Count(len([]rune(text)), opts))
	for w := range seq {
		out = append(out, w)
	}
	return out, nil
}

// Count is the number of windows produced for a text of n runes: ceil(n/(size-overlap)).
func Count(n int, opts Options) int {
	if n <= 0 || opts.step() <= 0 {
		return 0
	}
	step := opts.step()
	return (n + step - 1) / step
}
