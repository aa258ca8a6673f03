package accel

import (
	"context"
	"fmt"
	"runtime"

	"go.uber.org/zap"
)

// ThreadFunc runs every element of one logical thread, identified by the
// linear index of its block in the grid and its linear index in the block.
type ThreadFunc func(block, thread int) error

// Backend defines the interface for accelerator execution backends.
// This interface allows for multiple parallel execution models (serial CPU,
// block-parallel CPU, GPU-like) behind a consistent device and launch API,
// so that one kernel runs unmodified on any of them.
//
// Implementation notes:
// - Backends describe their devices; memory accounting is done by the Platform
// - Automatic fallback to the serial backend is handled by the Manager, not the backend
// - Launch must be safe to call concurrently from several queues
type Backend interface {
	// Kind identifies the accelerator type.
	Kind() Kind

	// Name is a human-readable backend name, used in logs and metrics.
	Name() string

	// IsAvailable checks if the backend is available for use.
	// This should perform a quick check without heavy initialization.
	// Used by the Manager to select an appropriate backend.
	IsAvailable() bool

	// Initialize prepares the backend for use.
	// Should be called once before first use; repeated calls are no-ops.
	Initialize() error

	// Cleanup releases any resources held by the backend.
	Cleanup() error

	// Devices returns the capabilities of every device, in a stable order.
	Devices() []DeviceProps

	// Launch executes fn once for every (block, thread) pair of wd.
	//
	// The order and concurrency of invocations is the backend's execution
	// model; the caller only observes that Launch returns after every
	// invocation finished, or after the first failure stopped further
	// invocations from starting.
	Launch(ctx context.Context, wd WorkDiv, fn ThreadFunc) error
}

// Options configures the backends built by NewBackend.
type Options struct {
	// HostMemory is the capacity of host devices in bytes.
	HostMemory uint64
	// Workers bounds the goroutines of the block-parallel CPU backend.
	// Zero means runtime.NumCPU().
	Workers int
	GPUSim  GPUSimOptions
}

// NewBackend creates the backend of the given kind.
func NewBackend(kind Kind, opts Options, log *zap.Logger) (Backend, error) {
	if log == nil {
		log = zap.NewNop()
	}
	switch kind {
	case KindCPUSerial:
		return NewSerialBackend(opts.HostMemory, log), nil
	case KindCPUBlocks:
		return NewBlocksBackend(opts.Workers, opts.HostMemory, log), nil
	case KindGPUSim:
		return NewGPUSimBackend(opts.GPUSim, log), nil
	}
	return nil, fmt.Errorf("unsupported accelerator kind %d", kind)
}

func hostDeviceName() string {
	return fmt.Sprintf("CPU (%s)", runtime.GOARCH)
}

func errNotInitialized(name string) error {
	return fmt.Errorf("%s backend not initialized", name)
}
