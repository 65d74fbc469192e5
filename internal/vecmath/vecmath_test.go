package vecmath

import (
	"math"
	"math/rand"
	"sort"
	"testing"
)

func TestL2(t *testing.T) {
	a := []float32{0, 3}
	b := []float32{4, 0}
	if got := L2(a, b); math.Abs(got-5) > 1e-9 {
		t.Fatalf("expected 5 got %v", got)
	}
	if got := L2(a, a); got != 0 {
		t.Fatalf("expected 0 got %v", got)
	}
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	Normalize(v)
	if math.Abs(Norm(v)-1) > 1e-6 {
		t.Fatalf("expected unit norm got %v", Norm(v))
	}
	zero := []float32{0, 0}
	Normalize(zero)
	if zero[0] != 0 || zero[1] != 0 {
		t.Fatalf("zero vector changed: %v", zero)
	}
}

func TestTopKTiesKeepInsertionOrder(t *testing.T) {
	d := []float64{0.5, 0.1, 0.5, 0.1, 0.9, 0.5}
	got := TopK(d, 4)
	want := []int{1, 3, 0, 2}
	if len(got) != len(want) {
		t.Fatalf("expected %v got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v got %v", want, got)
		}
	}
}

func TestTopKBounds(t *testing.T) {
	if got := TopK(nil, 3); len(got) != 0 {
		t.Fatalf("expected empty got %v", got)
	}
	if got := TopK([]float64{1, 2}, 0); len(got) != 0 {
		t.Fatalf("expected empty got %v", got)
	}
	if got := TopK([]float64{2, 1}, 10); len(got) != 2 || got[0] != 1 || got[1] != 0 {
		t.Fatalf("expected [1 0] got %v", got)
	}
}

func TestTopKMatchesStableSort(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for iter := 0; iter < 100; iter++ {
		n := 1 + rng.Intn(60)
		d := make([]float64, n)
		for i := range d {
			d[i] = float64(rng.Intn(8))
		}
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool { return d[idx[a]] < d[idx[b]] })
		k := 1 + rng.Intn(n)
		got := TopK(d, k)
		for i := 0; i < k; i++ {
			if got[i] != idx[i] {
				t.Fatalf("n=%d k=%d: expected %v got %v", n, k, idx[:k], got)
			}
		}
	}
}
