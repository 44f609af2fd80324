// Package vectormath computes distances between embedding vectors.
//
// Two interchangeable strategies are provided. Scalar walks the vectors one
// element at a time. Batched accumulates eight lanes per step and folds them at
// the end. Both compute the per-element difference in float32 and accumulate
// the squares in float64, so their results agree within floating-point
// rounding of the summation order.
package vectormath

import (
	"errors"
	"fmt"
)

// ErrVectorLengthMismatch is returned by CheckLengths when two vectors that
// should share a dimension do not.
var ErrVectorLengthMismatch = errors.New("vector length mismatch")

// Strategy computes the squared Euclidean distance between two vectors.
// Only the first min(len(a), len(b)) elements are compared.
type Strategy interface {
	Name() string
	SquaredDistance(a, b []float32) float64
}

// Scalar is the element-by-element strategy.
type Scalar struct{}

// Name returns "scalar".
func (Scalar) Name() string { return "scalar" }

// SquaredDistance implements Strategy.
func (Scalar) SquaredDistance(a, b []float32) float64 {
	n := min(len(a), len(b))
	var sum float64
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sum += float64(d) * float64(d)
	}
	return sum
}

// batchLanes is the number of independent accumulators used by Batched.
const batchLanes = 8

// Batched is the unrolled multi-lane strategy.
type Batched struct{}

// Name returns "batched".
func (Batched) Name() string { return "batched" }

// SquaredDistance implements Strategy.
func (Batched) SquaredDistance(a, b []float32) float64 {
	n := min(len(a), len(b))
	a, b = a[:n], b[:n]

	var acc [batchLanes]float64
	i := 0
	for ; i+batchLanes <= n; i += batchLanes {
		for lane := 0; lane < batchLanes; lane++ {
			d := a[i+lane] - b[i+lane]
			acc[lane] += float64(d) * float64(d)
		}
	}

	var sum float64
	for _, v := range acc {
		sum += v
	}
	// tail
	for ; i < n; i++ {
		d := a[i] - b[i]
		sum += float64(d) * float64(d)
	}
	return sum
}

// SquaredDistance computes the squared distance with the active strategy.
func SquaredDistance(a, b []float32) float64 {
	return Active().SquaredDistance(a, b)
}

// CheckLengths returns ErrVectorLengthMismatch if a and b differ in length.
func CheckLengths(a, b []float32) error {
	if len(a) != len(b) {
		return fmt.Errorf("%w: %d != %d", ErrVectorLengthMismatch, len(a), len(b))
	}
	return nil
}
