package matmul

import (
	"github.com/fxnlabs/mxm/internal/accel"
)

// Kernel computes one element of C = A·B for N×N row-major matrices.
//
// Arguments: A, B, C *accel.Buffer[T] and N int. The element coordinate is
// (row, column); coordinates in the padding of the work division are skipped.
type Kernel[T accel.Elem] struct{}

func (Kernel[T]) Execute(acc accel.Acc, args ...any) {
	a := args[0].(*accel.Buffer[T]).Data()
	b := args[1].(*accel.Buffer[T]).Data()
	c := args[2].(*accel.Buffer[T]).Data()
	n := args[3].(int)

	idx := acc.GlobalIdx()
	y, x := idx[0], idx[1]
	if x < n && y < n {
		var sum T
		for k := 0; k < n; k++ {
			sum += a[y*n+k] * b[k*n+x]
		}
		c[y*n+x] = sum
	}
}
