// Package vector provides vector math and an in-memory embedding store.
package vector

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrZeroNorm is returned when a vector has zero (or non-finite) L2 norm.
	ErrZeroNorm = errors.New("zero-norm vector")
	// ErrDimensionMismatch is returned when two vectors differ in length.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// InnerProduct returns the Euclidean dot product of a and b accumulated in float64.
// Vectors of different length yield 0.
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// CosineSimilarity returns dot(a, b) / (‖a‖·‖b‖). Norms are always computed, so inputs
// need not be normalized. The result is not rounded or clamped.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}
	na, nb := L2Norm(a), L2Norm(b)
	if !usableNorm(na) || !usableNorm(nb) {
		return 0, ErrZeroNorm
	}
	return InnerProduct(a, b) / (na * nb), nil
}

func usableNorm(n float64) bool {
	return n > 0 && !math.IsInf(n, 0) && !math.IsNaN(n)
}
