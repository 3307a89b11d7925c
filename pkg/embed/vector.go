package embed

import (
	"fmt"

	"github.com/viant/vec/search"
)

// CosineSimilarity computes the cosine similarity between two vectors.
// It returns an error on dimension mismatch or when either vector has zero
// magnitude; callers decide whether that is a skip or a failure.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("cosine similarity dimension mismatch: %d vs %d", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, fmt.Errorf("cosine similarity on empty vectors")
	}

	va := search.Float32s(a)
	vb := search.Float32s(b)
	if va.Magnitude() == 0 || vb.Magnitude() == 0 {
		return 0, fmt.Errorf("cosine similarity with zero-magnitude vector")
	}

	// Magnitude-passing variants of CosineDistance only exist on arm64.
	return 1 - float64(va.CosineDistance(b)), nil
}

// Normalize scales a vector to unit length. Zero vectors are returned
// unchanged.
func Normalize(v []float32) []float32 {
	m := search.Float32s(v).Magnitude()
	if m == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / m
	}
	return out
}

// Combine merges multiple vectors of equal dimension into one normalized
// vector using the given weights. Nil weights means equal weighting.
func Combine(vectors [][]float32, weights []float64) ([]float32, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no vectors to combine")
	}
	if weights == nil {
		weights = make([]float64, len(vectors))
		for i := range weights {
			weights[i] = 1
		}
	}
	if len(weights) != len(vectors) {
		return nil, fmt.Errorf("weight count mismatch: %d vectors, %d weights", len(vectors), len(weights))
	}

	dim := len(vectors[0])
	out := make([]float32, dim)
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("vector dimension mismatch: %d vs %d", len(v), dim)
		}
		for j, x := range v {
			out[j] += float32(weights[i]) * x
		}
	}
	return Normalize(out), nil
}
