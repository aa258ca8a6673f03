package accel

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeWorkDiv_GPUSim(t *testing.T) {
	dev := newTestDevice(t, KindGPUSim)

	testCases := []struct {
		name   string
		global Vec
		elems  Vec
		grid   Vec
		block  Vec
	}{
		{name: "matrix 128x128, 8 elements", global: NewVec(128, 128), elems: NewVec(8, 8), grid: NewVec(1, 1), block: NewVec(16, 16)},
		{name: "exact block for 100", global: NewVec(100), elems: NewVec(1), grid: NewVec(1), block: NewVec(100)},
		{name: "small 3x5", global: NewVec(3, 5), elems: NewVec(1, 1), grid: NewVec(1, 1), block: NewVec(3, 5)},
		{name: "past the extent limit", global: NewVec(5000), elems: NewVec(1), grid: NewVec(625), block: NewVec(8)},
		{name: "empty dimension", global: NewVec(0, 5), elems: NewVec(1, 1), grid: NewVec(0, 1), block: NewVec(1, 5)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			wd, err := ComputeWorkDiv(dev, tc.global, tc.elems)
			require.NoError(t, err)
			assert.Equal(t, tc.grid, wd.GridBlockExtent)
			assert.Equal(t, tc.block, wd.BlockThreadExtent)
			assert.Equal(t, tc.elems, wd.ThreadElemExtent)
		})
	}
}

func TestComputeWorkDiv_SerialUsesSingleThreadBlocks(t *testing.T) {
	dev := newTestDevice(t, KindCPUSerial)

	wd, err := ComputeWorkDiv(dev, NewVec(128, 128), NewVec(8, 8))
	require.NoError(t, err)
	assert.Equal(t, NewVec(16, 16), wd.GridBlockExtent)
	assert.Equal(t, NewVec(1, 1), wd.BlockThreadExtent)
	assert.Equal(t, NewVec(8, 8), wd.ThreadElemExtent)
	assert.Equal(t, 1, wd.BlockThreadCount())
}

func TestComputeWorkDiv_ClampsElements(t *testing.T) {
	dev := newTestDevice(t, KindCPUBlocks)

	wd, err := ComputeWorkDiv(dev, NewVec(10, 10), NewVec(0, 1<<20))
	require.NoError(t, err)
	assert.Equal(t, NewVec(1, maxThreadElemExtent), wd.ThreadElemExtent)
	assert.Equal(t, NewVec(10, 1), wd.GridBlockExtent)
}

func TestComputeWorkDiv_Errors(t *testing.T) {
	dev := newTestDevice(t, KindGPUSim)

	_, err := ComputeWorkDiv(dev, NewVec(4, 4), NewVec(1))
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = ComputeWorkDiv(dev, NewVec(-1, 4), NewVec(1, 1))
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestComputeWorkDiv_CoversGlobalWithinLimits(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for _, kind := range allKinds() {
		dev := newTestDevice(t, kind)
		props := dev.Props()
		for i := 0; i < 200; i++ {
			dim := 1 + rng.IntN(3)
			global, elems := make(Vec, dim), make(Vec, dim)
			for d := range global {
				global[d] = rng.IntN(300)
				elems[d] = 1 + rng.IntN(9)
			}
			wd, err := ComputeWorkDiv(dev, global, elems)
			require.NoError(t, err)
			require.NoError(t, wd.Validate())

			coverage := wd.Coverage()
			for d := range global {
				assert.GreaterOrEqual(t, coverage[d], global[d], "%s: %s for %s", kind, wd, global)
				assert.LessOrEqual(t, wd.BlockThreadExtent[d], props.BlockThreadExtentMax)
			}
			assert.LessOrEqual(t, wd.BlockThreadCount(), props.BlockThreadCountMax)
		}
	}
}

func TestBetter_TieBreak(t *testing.T) {
	// less padding wins
	assert.True(t, better(NewVec(1, 1), 1, 0, NewVec(4, 4), 16, 3))
	// then more threads per block
	assert.True(t, better(NewVec(4, 4), 16, 0, NewVec(2, 4), 8, 0))
	// then the larger extent in the fastest varying dimension
	assert.True(t, better(NewVec(2, 4), 8, 0, NewVec(4, 2), 8, 0))
	assert.False(t, better(NewVec(4, 2), 8, 0, NewVec(2, 4), 8, 0))
	assert.False(t, better(NewVec(2, 4), 8, 0, NewVec(2, 4), 8, 0))
}

func TestWorkDiv_Validate(t *testing.T) {
	_, err := NewWorkDiv(NewVec(1, 1), NewVec(1), NewVec(1, 1))
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = NewWorkDiv(NewVec(1), NewVec(0), NewVec(1))
	assert.ErrorIs(t, err, ErrShapeMismatch)

	wd, err := NewWorkDiv(NewVec(2, 3), NewVec(4, 5), NewVec(1, 2))
	require.NoError(t, err)
	assert.Equal(t, NewVec(8, 30), wd.Coverage())
	assert.Equal(t, 6, wd.GridBlockCount())
	assert.Equal(t, 20, wd.BlockThreadCount())
	assert.Equal(t, 2, wd.Dim())
}
