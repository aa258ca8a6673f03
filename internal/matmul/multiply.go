package matmul

import (
	"context"
	"fmt"
	"time"

	"github.com/fxnlabs/mxm/internal/accel"
	"github.com/fxnlabs/mxm/internal/metrics"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// DefaultElementsPerThread is the number of elements a thread computes per
// dimension when Options leaves it unset.
const DefaultElementsPerThread = 8

// Options controls how Multiply uses the accelerator.
type Options struct {
	DeviceIndex       int
	ElementsPerThread int
	Blocking          bool
	QueueDepth        int
}

// Result is the outcome of one multiplication.
type Result[T accel.Elem] struct {
	C        []T
	N        int
	WorkDiv  accel.WorkDiv
	Backend  string
	Device   string
	Duration time.Duration
	GFLOPS   float64
}

// Multiply computes C = A·B for n×n row-major matrices on the manager's
// accelerator: it allocates host and device buffers, copies A and B to the
// device, runs Kernel over a computed work division, copies C back and waits
// for the queue.
func Multiply[T accel.Elem](ctx context.Context, mgr *accel.Manager, a, b []T, n int, opts Options, log *zap.Logger) (*Result[T], error) {
	if log == nil {
		log = zap.NewNop()
	}
	if n < 1 {
		return nil, fmt.Errorf("matrix size must be at least 1, got %d", n)
	}
	if len(a) != n*n {
		return nil, fmt.Errorf("matrix A size mismatch: expected %d, got %d", n*n, len(a))
	}
	if len(b) != n*n {
		return nil, fmt.Errorf("matrix B size mismatch: expected %d, got %d", n*n, len(b))
	}
	if opts.ElementsPerThread <= 0 {
		opts.ElementsPerThread = DefaultElementsPerThread
	}

	start := time.Now()

	// Select the device before any allocation
	dev, err := mgr.Platform().Device(opts.DeviceIndex)
	if err != nil {
		return nil, err
	}
	host := mgr.HostDevice()
	log = log.With(zap.Stringer("device", dev), zap.Int("n", n))

	extent := accel.NewVec(n, n)

	hostA, err := accel.Alloc[T](host, extent)
	if err != nil {
		return nil, errors.Wrap(err, "allocating host A")
	}
	defer hostA.Free()
	hostB, err := accel.Alloc[T](host, extent)
	if err != nil {
		return nil, errors.Wrap(err, "allocating host B")
	}
	defer hostB.Free()
	hostC, err := accel.Alloc[T](host, extent)
	if err != nil {
		return nil, errors.Wrap(err, "allocating host C")
	}
	defer hostC.Free()

	copy(hostA.Data(), a)
	copy(hostB.Data(), b)

	devA, err := accel.Alloc[T](dev, extent)
	if err != nil {
		return nil, errors.Wrap(err, "allocating device A")
	}
	defer devA.Free()
	devB, err := accel.Alloc[T](dev, extent)
	if err != nil {
		return nil, errors.Wrap(err, "allocating device B")
	}
	defer devB.Free()
	devC, err := accel.Alloc[T](dev, extent)
	if err != nil {
		return nil, errors.Wrap(err, "allocating device C")
	}
	defer devC.Free()

	behavior := accel.NonBlocking
	if opts.Blocking {
		behavior = accel.Blocking
	}
	queue := accel.NewQueue(dev, behavior, log, accel.WithDepth(opts.QueueDepth))
	defer queue.Close()

	if err := accel.Copy(queue, devA, hostA); err != nil {
		return nil, errors.Wrap(err, "copying A to device")
	}
	if err := accel.Copy(queue, devB, hostB); err != nil {
		return nil, errors.Wrap(err, "copying B to device")
	}

	wd, err := accel.ComputeWorkDiv(dev, extent, accel.Fill(extent.Dim(), opts.ElementsPerThread))
	if err != nil {
		return nil, err
	}
	log.Debug("Work division computed", zap.Stringer("workDiv", wd))

	if err := accel.Exec(queue, wd, Kernel[T]{}, devA, devB, devC, n); err != nil {
		return nil, errors.Wrap(err, "dispatching kernel")
	}
	if err := accel.Copy(queue, hostC, devC); err != nil {
		return nil, errors.Wrap(err, "copying C to host")
	}
	if err := queue.Wait(ctx); err != nil {
		return nil, err
	}

	c := make([]T, n*n)
	copy(c, hostC.Data())

	elapsed := time.Since(start)
	gflops := throughput(n, elapsed)

	metrics.MatrixMultDuration.Observe(float64(elapsed.Microseconds()) / 1000)
	metrics.MatrixMultSize.Set(float64(n))
	metrics.MatrixMultGFLOPS.Set(gflops)
	metrics.MatrixMultBackend.WithLabelValues(dev.Kind().String()).Inc()

	log.Info("Matrix multiplication completed",
		zap.Stringer("workDiv", wd),
		zap.Duration("elapsed", elapsed),
		zap.Float64("gflops", gflops))

	return &Result[T]{
		C:        c,
		N:        n,
		WorkDiv:  wd,
		Backend:  dev.Kind().String(),
		Device:   dev.Name(),
		Duration: elapsed,
		GFLOPS:   gflops,
	}, nil
}

// throughput returns the GFLOPS of an n×n product that took elapsed, or 0
// when the clock did not advance.
func throughput(n int, elapsed time.Duration) float64 {
	secs := elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return 2 * float64(n) * float64(n) * float64(n) / secs / 1e9
}
