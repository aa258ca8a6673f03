package accel

import (
	"context"
	"fmt"

	"github.com/fxnlabs/mxm/internal/metrics"
	"github.com/pkg/errors"
)

// Acc is the execution context handed to a kernel invocation. It is the only
// thing a kernel learns about the backend it runs on, which keeps kernel
// bodies free of backend-specific control flow.
type Acc interface {
	// Kind of the accelerator executing the kernel.
	Kind() Kind
	// WorkDiv the kernel was launched with.
	WorkDiv() WorkDiv
	// GridBlockIdx is the block's coordinate in the grid.
	GridBlockIdx() Vec
	// BlockThreadIdx is the thread's coordinate in its block.
	BlockThreadIdx() Vec
	// ThreadElemIdx is the element's coordinate within the thread's elements.
	ThreadElemIdx() Vec
	// GlobalThreadIdx is the thread's coordinate in the grid of all threads.
	GlobalThreadIdx() Vec
	// GlobalIdx is the element coordinate this invocation is responsible for:
	// (block*blockExtent + thread)*threadElems + elem per dimension.
	GlobalIdx() Vec
}

// Kernel is user code run once per element coordinate of a work division.
// Execute may be called concurrently and must only touch in-bounds elements;
// guarding coordinates past the problem size is up to the kernel.
type Kernel interface {
	Execute(acc Acc, args ...any)
}

// KernelFunc adapts a function to the Kernel interface.
type KernelFunc func(acc Acc, args ...any)

func (fn KernelFunc) Execute(acc Acc, args ...any) {
	fn(acc, args...)
}

// deviceResident is implemented by every Buffer.
type deviceResident interface {
	Device() *Device
}

// KernelTask is the immutable binding of a kernel, a work division and its
// arguments, ready to be enqueued once on its queue.
type KernelTask struct {
	kernel Kernel
	wd     WorkDiv
	args   []any
	dev    *Device
	name   string
}

// NewKernelTask binds kernel to wd and args for execution on q's device.
// Every buffer argument must reside on that device.
func NewKernelTask(q *Queue, wd WorkDiv, kernel Kernel, args ...any) (*KernelTask, error) {
	const op = "NewKernelTask"
	if err := wd.Validate(); err != nil {
		return nil, err
	}
	for i, arg := range args {
		r, ok := arg.(deviceResident)
		if !ok {
			continue
		}
		if r.Device() != q.dev {
			return nil, newError(KindDeviceMismatch, op,
				fmt.Sprintf("argument %d is on %s, queue is on %s", i, r.Device(), q.dev), nil)
		}
	}
	bound := make([]any, len(args))
	copy(bound, args)
	return &KernelTask{
		kernel: kernel,
		wd: WorkDiv{
			GridBlockExtent:   wd.GridBlockExtent.Clone(),
			BlockThreadExtent: wd.BlockThreadExtent.Clone(),
			ThreadElemExtent:  wd.ThreadElemExtent.Clone(),
		},
		args: bound,
		dev:  q.dev,
		name: fmt.Sprintf("%T %s on %s", kernel, wd, q.dev),
	}, nil
}

// Exec binds kernel and enqueues it on q.
func Exec(q *Queue, wd WorkDiv, kernel Kernel, args ...any) error {
	task, err := NewKernelTask(q, wd, kernel, args...)
	if err != nil {
		return err
	}
	return q.Enqueue(task)
}

func (t *KernelTask) Kind() TaskKind {
	return TaskKernel
}

func (t *KernelTask) String() string {
	return t.name
}

func (t *KernelTask) WorkDiv() WorkDiv {
	return t.wd
}

// Run launches the kernel on the device's backend and invokes it for every
// element coordinate of the coverage.
func (t *KernelTask) Run(ctx context.Context) error {
	backend := t.dev.platform.backend
	wd := t.wd
	elemCount := wd.ThreadElemExtent.Prod()

	err := backend.Launch(ctx, wd, func(block, thread int) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = errors.Errorf("kernel panicked in block %d thread %d: %v", block, thread, r)
			}
		}()
		blockIdx := wd.GridBlockExtent.Delinearize(block)
		threadIdx := wd.BlockThreadExtent.Delinearize(thread)
		globalThread := make(Vec, len(blockIdx))
		for i := range globalThread {
			globalThread[i] = blockIdx[i]*wd.BlockThreadExtent[i] + threadIdx[i]
		}
		for e := 0; e < elemCount; e++ {
			elemIdx := wd.ThreadElemExtent.Delinearize(e)
			global := make(Vec, len(elemIdx))
			for i := range global {
				global[i] = globalThread[i]*wd.ThreadElemExtent[i] + elemIdx[i]
			}
			t.kernel.Execute(&accCtx{
				kind:         backend.Kind(),
				wd:           wd,
				blockIdx:     blockIdx,
				threadIdx:    threadIdx,
				elemIdx:      elemIdx,
				globalThread: globalThread,
				global:       global,
			}, t.args...)
		}
		return nil
	})
	if err != nil {
		return err
	}
	metrics.KernelThreads.WithLabelValues(backend.Name()).Add(float64(wd.Coverage().Prod()))
	return nil
}

type accCtx struct {
	kind         Kind
	wd           WorkDiv
	blockIdx     Vec
	threadIdx    Vec
	elemIdx      Vec
	globalThread Vec
	global       Vec
}

func (a *accCtx) Kind() Kind {
	return a.kind
}

func (a *accCtx) WorkDiv() WorkDiv {
	return a.wd
}

func (a *accCtx) GridBlockIdx() Vec {
	return a.blockIdx
}

func (a *accCtx) BlockThreadIdx() Vec {
	return a.threadIdx
}

func (a *accCtx) ThreadElemIdx() Vec {
	return a.elemIdx
}

func (a *accCtx) GlobalThreadIdx() Vec {
	return a.globalThread
}

func (a *accCtx) GlobalIdx() Vec {
	return a.global
}
