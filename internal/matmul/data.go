package matmul

import (
	"math/rand/v2"

	"github.com/fxnlabs/mxm/internal/accel"
)

// Random returns an n×n row-major matrix of integers drawn uniformly from
// [lo, hi].
func Random[T accel.Elem](rng *rand.Rand, n, lo, hi int) []T {
	out := make([]T, n*n)
	for i := range out {
		out[i] = T(lo + rng.IntN(hi-lo+1))
	}
	return out
}

// Sequential returns an n×n matrix whose element (i, j) is i*n + j.
func Sequential[T accel.Elem](n int) []T {
	out := make([]T, n*n)
	for i := range out {
		out[i] = T(i)
	}
	return out
}

// ToFloat64 converts a flat matrix to float64
func ToFloat64[T accel.Elem](in []T) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

// Rows splits a flat row-major matrix into rows of cols elements.
func Rows[T accel.Elem](flat []T, cols int) [][]T {
	if cols <= 0 || len(flat)%cols != 0 {
		return nil
	}
	rows := make([][]T, 0, len(flat)/cols)
	for i := 0; i < len(flat); i += cols {
		rows = append(rows, flat[i:i+cols])
	}
	return rows
}
