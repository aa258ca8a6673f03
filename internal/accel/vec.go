package accel

import (
	"fmt"
	"strings"
)

// Vec is an N-dimensional tuple used both as an extent (per-dimension sizes)
// and as a coordinate into such an extent. Index 0 is the slowest varying
// dimension, the last index the fastest (row-major).
type Vec []int

// NewVec returns a Vec holding the given components.
func NewVec(components ...int) Vec {
	v := make(Vec, len(components))
	copy(v, components)
	return v
}

// Fill returns a Vec of dimension dim with every component set to value.
func Fill(dim, value int) Vec {
	v := make(Vec, dim)
	for i := range v {
		v[i] = value
	}
	return v
}

// Dim returns the dimensionality.
func (v Vec) Dim() int {
	return len(v)
}

// Prod returns the product of all components. The empty Vec has product 1.
func (v Vec) Prod() int {
	p := 1
	for _, c := range v {
		p *= c
	}
	return p
}

func (v Vec) Clone() Vec {
	return NewVec(v...)
}

func (v Vec) Equal(o Vec) bool {
	if len(v) != len(o) {
		return false
	}
	for i := range v {
		if v[i] != o[i] {
			return false
		}
	}
	return true
}

// Validate reports a shape error if any component is negative.
func (v Vec) Validate() error {
	for i, c := range v {
		if c < 0 {
			return newError(KindShapeMismatch, "Vec.Validate", fmt.Sprintf("component %d of %s is negative", i, v), nil)
		}
	}
	return nil
}

// Contains reports whether c is a valid coordinate inside the extent v.
func (v Vec) Contains(c Vec) bool {
	if len(c) != len(v) {
		return false
	}
	for i := range v {
		if c[i] < 0 || c[i] >= v[i] {
			return false
		}
	}
	return true
}

// Linearize maps coordinate c to its row-major offset within extent v.
// The caller is responsible for c being inside v.
func (v Vec) Linearize(c Vec) int {
	idx := 0
	for i := range v {
		idx = idx*v[i] + c[i]
	}
	return idx
}

// Delinearize is the inverse of Linearize.
func (v Vec) Delinearize(idx int) Vec {
	c := make(Vec, len(v))
	for i := len(v) - 1; i >= 0; i-- {
		if v[i] == 0 {
			continue
		}
		c[i] = idx % v[i]
		idx /= v[i]
	}
	return c
}

// CeilDiv divides a by b component-wise, rounding up.
func CeilDiv(a, b Vec) Vec {
	out := make(Vec, len(a))
	for i := range a {
		out[i] = (a[i] + b[i] - 1) / b[i]
	}
	return out
}

// Mul multiplies a and b component-wise.
func Mul(a, b Vec) Vec {
	out := make(Vec, len(a))
	for i := range a {
		out[i] = a[i] * b[i]
	}
	return out
}

func (v Vec) String() string {
	parts := make([]string, len(v))
	for i, c := range v {
		parts[i] = fmt.Sprint(c)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
