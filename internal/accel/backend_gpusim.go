package accel

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// Thread limits of the simulated devices follow common CUDA hardware.
	gpuSimBlockThreadCountMax  = 1024
	gpuSimBlockThreadExtentMax = 1024

	maxThreadElemExtent = 1 << 16
)

// GPUSimOptions describes the simulated GPUs.
type GPUSimOptions struct {
	Devices         int
	Memory          uint64 // per device, in bytes
	MultiProcessors int    // blocks resident at once per launch
}

// GPUSimBackend emulates a GPU on the CPU. Its devices have their own memory
// space, so host data must be copied in and out explicitly; up to
// MultiProcessors blocks run at a time and every thread of a block runs on
// its own goroutine.
type GPUSimBackend struct {
	logger      *zap.Logger
	opts        GPUSimOptions
	initialized bool
}

func NewGPUSimBackend(opts GPUSimOptions, logger *zap.Logger) *GPUSimBackend {
	if opts.MultiProcessors <= 0 {
		opts.MultiProcessors = 1
	}
	return &GPUSimBackend{
		logger: logger.Named("gpusim"),
		opts:   opts,
	}
}

func (g *GPUSimBackend) Kind() Kind {
	return KindGPUSim
}

func (g *GPUSimBackend) Name() string {
	return KindGPUSim.String()
}

// IsAvailable reports whether at least one simulated device is configured.
func (g *GPUSimBackend) IsAvailable() bool {
	return g.opts.Devices > 0
}

func (g *GPUSimBackend) Initialize() error {
	if g.initialized {
		return nil
	}
	g.initialized = true
	g.logger.Debug("Simulated GPU backend initialized",
		zap.Int("devices", g.opts.Devices),
		zap.Uint64("memory", g.opts.Memory),
		zap.Int("multiProcessors", g.opts.MultiProcessors))
	return nil
}

func (g *GPUSimBackend) Cleanup() error {
	g.initialized = false
	return nil
}

func (g *GPUSimBackend) Devices() []DeviceProps {
	props := make([]DeviceProps, 0, g.opts.Devices)
	for i := 0; i < g.opts.Devices; i++ {
		props = append(props, DeviceProps{
			Name:                 fmt.Sprintf("Simulated GPU %d", i),
			MultiProcessorCount:  g.opts.MultiProcessors,
			BlockThreadExtentMax: gpuSimBlockThreadExtentMax,
			BlockThreadCountMax:  gpuSimBlockThreadCountMax,
			ThreadElemExtentMax:  maxThreadElemExtent,
			GlobalMemSizeBytes:   g.opts.Memory,
			MemorySpace:          MemoryDevice,
		})
	}
	return props
}

func (g *GPUSimBackend) Launch(ctx context.Context, wd WorkDiv, fn ThreadFunc) error {
	if !g.initialized {
		return errNotInitialized(g.Name())
	}
	blocks, threads := wd.GridBlockCount(), wd.BlockThreadCount()

	grid, gctx := errgroup.WithContext(ctx)
	grid.SetLimit(g.opts.MultiProcessors)
	for b := 0; b < blocks; b++ {
		if gctx.Err() != nil {
			break
		}
		grid.Go(func() error {
			var block errgroup.Group
			for t := 0; t < threads; t++ {
				block.Go(func() error {
					return fn(b, t)
				})
			}
			return block.Wait()
		})
	}
	if err := grid.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
