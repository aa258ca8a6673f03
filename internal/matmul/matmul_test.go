package matmul

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/fxnlabs/mxm/internal/accel"
	"github.com/fxnlabs/mxm/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newManager(t *testing.T, kind accel.Kind) *accel.Manager {
	t.Helper()
	mgr, err := accel.NewManager(kind, accel.Options{
		HostMemory: 64 << 20,
		Workers:    4,
		GPUSim:     accel.GPUSimOptions{Devices: 2, Memory: 64 << 20, MultiProcessors: 4},
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Cleanup() })
	return mgr
}

func TestMultiply_2x2(t *testing.T) {
	mgr := newManager(t, accel.KindCPUSerial)

	res, err := Multiply(context.Background(), mgr, []float32{1, 2, 3, 4}, []float32{5, 6, 7, 8}, 2, Options{Blocking: true}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, []float32{19, 22, 43, 50}, res.C)
	assert.Equal(t, 2, res.N)
	assert.Equal(t, "serial", res.Backend)
}

func TestMultiply_MatchesReference(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for _, kind := range []accel.Kind{accel.KindCPUSerial, accel.KindCPUBlocks, accel.KindGPUSim} {
		mgr := newManager(t, kind)
		for _, n := range []int{1, 2, 7, 33, 64} {
			for _, blocking := range []bool{true, false} {
				t.Run(fmt.Sprintf("%s/n=%d/blocking=%t", kind, n, blocking), func(t *testing.T) {
					a := Random[uint32](rng, n, 1, 42)
					b := Random[uint32](rng, n, 1, 42)

					res, err := Multiply(context.Background(), mgr, a, b, n, Options{
						ElementsPerThread: DefaultElementsPerThread,
						Blocking:          blocking,
					}, zaptest.NewLogger(t))
					require.NoError(t, err)
					require.NoError(t, Verify(a, b, res.C, n, 0))
					assert.Equal(t, kind.String(), res.Backend)

					coverage := res.WorkDiv.Coverage()
					assert.GreaterOrEqual(t, coverage[0], n)
					assert.GreaterOrEqual(t, coverage[1], n)
				})
			}
		}
	}
}

func TestMultiply_FloatTypes(t *testing.T) {
	mgr := newManager(t, accel.KindGPUSim)
	n := 17
	a := Sequential[float64](n)
	b := Sequential[float64](n)

	res, err := Multiply(context.Background(), mgr, a, b, n, Options{ElementsPerThread: 3}, nil)
	require.NoError(t, err)
	assert.NoError(t, Verify(a, b, res.C, n, 1e-12))
	assert.Equal(t, accel.NewVec(3, 3), res.WorkDiv.ThreadElemExtent)
}

func TestMultiply_ReleasesMemory(t *testing.T) {
	mgr := newManager(t, accel.KindGPUSim)
	a := Sequential[float32](32)

	_, err := Multiply(context.Background(), mgr, a, a, 32, Options{DeviceIndex: 1}, nil)
	require.NoError(t, err)

	dev, err := mgr.Platform().Device(1)
	require.NoError(t, err)
	used, _ := mgr.Platform().MemoryUsage(dev)
	assert.Zero(t, used)
	assert.Equal(t, uint64(3*32*32*4), mgr.Platform().PeakMemory(dev))
	used, _ = mgr.Host().MemoryUsage(mgr.HostDevice())
	assert.Zero(t, used)
}

func TestMultiply_Errors(t *testing.T) {
	mgr := newManager(t, accel.KindGPUSim)

	_, err := Multiply(context.Background(), mgr, []int32{1}, []int32{1}, 0, Options{}, nil)
	assert.Error(t, err)

	_, err = Multiply(context.Background(), mgr, []int32{1, 2, 3}, []int32{1, 2, 3, 4}, 2, Options{}, nil)
	assert.ErrorContains(t, err, "matrix A size mismatch")

	_, err = Multiply(context.Background(), mgr, []int32{1, 2, 3, 4}, []int32{1}, 2, Options{}, nil)
	assert.ErrorContains(t, err, "matrix B size mismatch")

	// 2048² float64 is 32MiB per matrix, over the 64MiB device budget for three
	big := make([]float64, 2048*2048)
	_, err = Multiply(context.Background(), mgr, big, big, 2048, Options{}, nil)
	assert.ErrorIs(t, err, accel.ErrAllocation)
}

func TestMultiply_BadDeviceAllocatesNothing(t *testing.T) {
	mgr := newManager(t, accel.KindGPUSim)
	devices, err := mgr.Platform().Devices()
	require.NoError(t, err)

	labels := []string{mgr.HostDevice().String()}
	for _, dev := range devices {
		labels = append(labels, dev.String())
	}
	allocations := func() float64 {
		var total float64
		for _, label := range labels {
			for _, status := range []string{"ok", "failed"} {
				total += testutil.ToFloat64(metrics.BufferAllocations.WithLabelValues(label, status))
			}
		}
		return total
	}
	before := allocations()

	_, err = Multiply(context.Background(), mgr, []int32{1, 2, 3, 4}, []int32{1, 2, 3, 4}, 2, Options{DeviceIndex: len(devices)}, nil)
	assert.ErrorIs(t, err, accel.ErrDeviceIndex)

	assert.Equal(t, before, allocations())
	used, _ := mgr.Host().MemoryUsage(mgr.HostDevice())
	assert.Zero(t, used)
	assert.Zero(t, mgr.Host().PeakMemory(mgr.HostDevice()))
	for _, dev := range devices {
		assert.Zero(t, mgr.Platform().PeakMemory(dev))
	}
}

func TestMultiply_IntegerOverflowWraps(t *testing.T) {
	mgr := newManager(t, accel.KindCPUBlocks)
	// row 3 times column 3 of the 4x4 sequential matrix is 506, past uint8
	a := Sequential[uint8](4)

	res, err := Multiply(context.Background(), mgr, a, a, 4, Options{ElementsPerThread: 2}, nil)
	require.NoError(t, err)
	assert.Equal(t, uint8(506%256), res.C[15])
	assert.NotEqual(t, Reference(a, a, 4)[15], float64(res.C[15]))

	require.NoError(t, Verify(a, a, res.C, 4, 0))
	rng := rand.New(rand.NewPCG(9, 9))
	assert.True(t, FreivaldsVerify(rng, a, a, res.C, 4, 10, 0))

	res.C[15]++
	assert.Error(t, Verify(a, a, res.C, 4, 0))
}

func TestThroughput(t *testing.T) {
	assert.Zero(t, throughput(1, 0))
	assert.False(t, math.IsInf(throughput(1, 0), 0))
	assert.InDelta(t, 2.0, throughput(1000, time.Second), 1e-9)
}

func TestSequential(t *testing.T) {
	m := Sequential[int32](3)
	assert.Equal(t, [][]int32{{0, 1, 2}, {3, 4, 5}, {6, 7, 8}}, Rows(m, 3))
	assert.Nil(t, Rows(m, 4))
}

func TestRandomRange(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	for _, v := range Random[uint32](rng, 20, 1, 42) {
		assert.GreaterOrEqual(t, v, uint32(1))
		assert.LessOrEqual(t, v, uint32(42))
	}
}

func TestVerify(t *testing.T) {
	a := []float64{1, 2, 3, 4}
	b := []float64{5, 6, 7, 8}
	assert.NoError(t, Verify(a, b, []float64{19, 22, 43, 50}, 2, 0))
	assert.ErrorContains(t, Verify(a, b, []float64{19, 22, 43, 51}, 2, 1e-6), "element (1, 1)")
	assert.Error(t, Verify(a, b, []float64{19, 22, 43}, 2, 0))
}

func TestFreivaldsVerify(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	n := 40
	a := Random[int64](rng, n, 1, 42)
	b := Random[int64](rng, n, 1, 42)
	want := Reference(a, b, n)
	c := make([]int64, len(want))
	for i, v := range want {
		c[i] = int64(v)
	}
	assert.True(t, FreivaldsVerify(rng, a, b, c, n, 10, 0))

	c[n*n/2]++
	assert.False(t, FreivaldsVerify(rng, a, b, c, n, 20, 0))
}

func TestKernel_SkipsPadding(t *testing.T) {
	mgr := newManager(t, accel.KindCPUSerial)
	// 5 is not a multiple of 4 elements per thread, so the coverage has padding
	a := Sequential[int32](5)
	res, err := Multiply(context.Background(), mgr, a, a, 5, Options{ElementsPerThread: 4, Blocking: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, accel.NewVec(8, 8), res.WorkDiv.Coverage())
	assert.NoError(t, Verify(a, a, res.C, 5, 0))
}
