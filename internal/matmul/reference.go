package matmul

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/fxnlabs/mxm/internal/accel"
	"gonum.org/v1/gonum/mat"
)

// Reference computes A·B on the host with gonum.
func Reference[T accel.Elem](a, b []T, n int) []float64 {
	ma := mat.NewDense(n, n, ToFloat64(a))
	mb := mat.NewDense(n, n, ToFloat64(b))

	var res mat.Dense
	res.Mul(ma, mb)
	return res.RawMatrix().Data
}

// isInteger reports whether T truncates division, i.e. is an integer type.
func isInteger[T accel.Elem]() bool {
	half := T(1)
	half /= 2
	return half == 0
}

// exactProduct computes A·B in T itself. For integer types it wraps on
// overflow exactly like the kernel does.
func exactProduct[T accel.Elem](a, b []T, n int) []T {
	c := make([]T, n*n)
	for i := 0; i < n; i++ {
		for k := 0; k < n; k++ {
			aik := a[i*n+k]
			for j := 0; j < n; j++ {
				c[i*n+j] += aik * b[k*n+j]
			}
		}
	}
	return c
}

// Verify compares got against the product of a and b. Integer results must
// match exactly, modulo the width of T. Float results are checked against
// gonum; each element may differ by tol relative to the magnitude of the
// expected value (absolute for values below 1).
func Verify[T accel.Elem](a, b, got []T, n int, tol float64) error {
	if len(got) != n*n {
		return fmt.Errorf("result has %d elements, expected %d", len(got), n*n)
	}
	if isInteger[T]() {
		for i, w := range exactProduct(a, b, n) {
			if got[i] != w {
				return fmt.Errorf("element (%d, %d) = %v, expected %v", i/n, i%n, got[i], w)
			}
		}
		return nil
	}
	for i, w := range Reference(a, b, n) {
		g := float64(got[i])
		if math.Abs(g-w) > tol*math.Max(1, math.Abs(w)) {
			return fmt.Errorf("element (%d, %d) = %v, expected %v", i/n, i%n, g, w)
		}
	}
	return nil
}

// FreivaldsVerify performs Freivalds' algorithm to probabilistically verify that C = A * B
// without computing the product. Each iteration checks A(Br) = Cr for a random
// binary vector r; a wrong C passes an iteration with probability at most 1/2.
// Integer types are checked in T arithmetic so that wrapped products verify.
func FreivaldsVerify[T accel.Elem](rng *rand.Rand, a, b, c []T, n, iterations int, tol float64) bool {
	if isInteger[T]() {
		return freivaldsExact(rng, a, b, c, n, iterations)
	}

	ma := mat.NewDense(n, n, ToFloat64(a))
	mb := mat.NewDense(n, n, ToFloat64(b))
	mc := mat.NewDense(n, n, ToFloat64(c))

	r := mat.NewVecDense(n, nil)
	var br, abr, cr mat.VecDense
	for it := 0; it < iterations; it++ {
		for j := 0; j < n; j++ {
			r.SetVec(j, float64(rng.IntN(2)))
		}
		br.MulVec(mb, r)
		abr.MulVec(ma, &br)
		cr.MulVec(mc, r)
		for i := 0; i < n; i++ {
			want := abr.AtVec(i)
			if math.Abs(cr.AtVec(i)-want) > tol*math.Max(1, math.Abs(want)) {
				return false
			}
		}
	}
	return true
}

func freivaldsExact[T accel.Elem](rng *rand.Rand, a, b, c []T, n, iterations int) bool {
	r := make([]T, n)
	for it := 0; it < iterations; it++ {
		for j := range r {
			r[j] = T(rng.IntN(2))
		}
		abr := mulVec(a, mulVec(b, r, n), n)
		cr := mulVec(c, r, n)
		for i := range cr {
			if cr[i] != abr[i] {
				return false
			}
		}
	}
	return true
}

func mulVec[T accel.Elem](m, v []T, n int) []T {
	out := make([]T, n)
	for i := 0; i < n; i++ {
		var sum T
		for j := 0; j < n; j++ {
			sum += m[i*n+j] * v[j]
		}
		out[i] = sum
	}
	return out
}
