package memory

import (
	"errors"
	"math"
)

// Cosine errors.
var (
	ErrDimensionMismatch = errors.New("vector dimensions differ")
	ErrZeroVector        = errors.New("zero or empty vector")
)

// Cosine returns the cosine similarity of a and b. It fails when the
// vectors differ in length or either has no magnitude, since the
// similarity is undefined there.
func Cosine(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0, ErrZeroVector
	}
	return dot / denom, nil
}

// CosineSimilarity is Cosine with undefined cases scored 0, for ranking
// stored vectors.
func CosineSimilarity(a, b []float64) float64 {
	sim, err := Cosine(a, b)
	if err != nil {
		return 0
	}
	return sim
}
