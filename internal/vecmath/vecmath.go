// Package vecmath holds the small amount of vector arithmetic the stores and embedders share.
package vecmath

import (
	"container/heap"
	"math"
)

// SquaredL2 returns the squared Euclidean distance. Vectors must have equal length.
func SquaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

// L2 returns the Euclidean distance.
func L2(a, b []float32) float64 {
	return math.Sqrt(SquaredL2(a, b))
}

// Norm returns the Euclidean length of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Normalize scales v to unit length in place. Zero vectors are left alone.
func Normalize(v []float32) {
	n := Norm(v)
	if n == 0 {
		return
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / n)
	}
}

// TopK returns the indexes of the k smallest distances, smallest first.
// Equal distances keep the lower index first.
func TopK(distances []float64, k int) []int {
	if k <= 0 || len(distances) == 0 {
		return []int{}
	}
	if k > len(distances) {
		k = len(distances)
	}
	// max-heap of the best k seen so far
	h := &candidates{}
	for i, d := range distances {
		c := candidate{idx: i, dist: d}
		if h.Len() < k {
			heap.Push(h, c)
			continue
		}
		if c.less((*h)[0]) {
			(*h)[0] = c
			heap.Fix(h, 0)
		}
	}
	out := make([]int, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(candidate).idx
	}
	return out
}

type candidate struct {
	idx  int
	dist float64
}

func (c candidate) less(o candidate) bool {
	if c.dist != o.dist {
		return c.dist < o.dist
	}
	return c.idx < o.idx
}

type candidates []candidate

func (h candidates) Len() int           { return len(h) }
func (h candidates) Less(i, j int) bool { return h[j].less(h[i]) }
func (h candidates) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *candidates) Push(x any)        { *h = append(*h, x.(candidate)) }
func (h *candidates) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
