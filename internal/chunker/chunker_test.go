package chunker

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/docchat/internal/domain"
)

func TestSplitTwoThousandChars(t *testing.T) {
	text := strings.Repeat("A", 2000)
	chunks, err := Split(text, DefaultOptions())
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks got %d", len(chunks))
	}
	wantLens := []int{800, 800, 800, 200}
	for i, c := range chunks {
		if len(c) != wantLens[i] {
			t.Fatalf("chunk %d: expected len %d got %d", i, wantLens[i], len(c))
		}
	}
}

func TestSplitEmpty(t *testing.T) {
	chunks, err := Split("", DefaultOptions())
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks got %d", len(chunks))
	}
}

func TestInvalidOptions(t *testing.T) {
	cases := []Options{
		{Size: 0, Overlap: 0},
		{Size: 100, Overlap: 0},
		{Size: 100, Overlap: 100},
		{Size: 100, Overlap: 150},
		{Size: -5, Overlap: 1},
	}
	for _, opts := range cases {
		if _, err := Windows("abc", opts); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("opts %+v: expected ErrInvalidInput got %v", opts, err)
		}
	}
}

func TestWindowOffsetsAndCoverage(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	alphabet := []rune("abcdefghijklmnopqrstuvwxyzäöüß ")
	for iter := 0; iter < 200; iter++ {
		n := rng.Intn(3000)
		size := 2 + rng.Intn(400)
		overlap := 1 + rng.Intn(size-1)
		opts := Options{Size: size, Overlap: overlap}

		runes := make([]rune, n)
		for i := range runes {
			runes[i] = alphabet[rng.Intn(len(alphabet))]
		}
		text := string(runes)

		chunks, err := Split(text, opts)
		if err != nil {
			t.Fatalf("Split(n=%d,size=%d,overlap=%d): %v", n, size, overlap, err)
		}
		if len(chunks) != Count(n, opts) {
			t.Fatalf("n=%d size=%d overlap=%d: expected %d chunks got %d", n, size, overlap, Count(n, opts), len(chunks))
		}
		covered := make([]bool, n)
		step := size - overlap
		for i, c := range chunks {
			start := i * step
			end := start + size
			if end > n {
				end = n
			}
			if c != string(runes[start:end]) {
				t.Fatalf("chunk %d is not the window [%d,%d)", i, start, end)
			}
			for j := start; j < end; j++ {
				covered[j] = true
			}
		}
		for j, ok := range covered {
			if !ok {
				t.Fatalf("n=%d size=%d overlap=%d: rune %d not covered", n, size, overlap, j)
			}
		}
	}
}

func TestWindowsRestartable(t *testing.T) {
	seq, err := Windows(strings.Repeat("xyz", 700), Options{Size: 500, Overlap: 100})
	if err != nil {
		t.Fatalf("Windows: %v", err)
	}
	var first, second []string
	for w := range seq {
		first = append(first, w)
	}
	for w := range seq {
		second = append(second, w)
	}
	if len(first) == 0 || len(first) != len(second) {
		t.Fatalf("expected identical non-empty passes, got %d and %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("pass mismatch at %d", i)
		}
	}
}

func TestWindowsEarlyStop(t *testing.T) {
	seq, err := Windows(strings.Repeat("a", 5000), DefaultOptions())
	if err != nil {
		t.Fatalf("Windows: %v", err)
	}
	n := 0
	for range seq {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Fatalf("expected to stop after 2 got %d", n)
	}
}

func TestSplitMultibyte(t *testing.T) {
	text := strings.Repeat("ü", 1000)
	chunks, err := Split(text, DefaultOptions())
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks got %d", len(chunks))
	}
	if got := len([]rune(chunks[0])); got != 800 {
		t.Fatalf("expected 800 runes got %d", got)
	}
	if got := len([]rune(chunks[1])); got != 400 {
		t.Fatalf("expected 400 runes got %d", got)
	}
}
