package accel

import (
	"context"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BlocksBackend runs the blocks of a grid concurrently on a bounded set of
// goroutines. Each worker owns a contiguous range of blocks to keep the
// elements it touches close together; there is one thread per block.
type BlocksBackend struct {
	logger      *zap.Logger
	memory      uint64
	workers     int
	initialized bool
}

// NewBlocksBackend creates a block-parallel CPU backend. workers <= 0 means
// one worker per CPU.
func NewBlocksBackend(workers int, memory uint64, logger *zap.Logger) *BlocksBackend {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &BlocksBackend{
		logger:  logger.Named("threads"),
		memory:  memory,
		workers: workers,
	}
}

func (c *BlocksBackend) Kind() Kind {
	return KindCPUBlocks
}

func (c *BlocksBackend) Name() string {
	return KindCPUBlocks.String()
}

func (c *BlocksBackend) IsAvailable() bool {
	return true
}

func (c *BlocksBackend) Initialize() error {
	if c.initialized {
		return nil
	}
	c.initialized = true
	c.logger.Debug("Block-parallel CPU backend initialized", zap.Int("workers", c.workers))
	return nil
}

func (c *BlocksBackend) Cleanup() error {
	c.initialized = false
	return nil
}

func (c *BlocksBackend) Devices() []DeviceProps {
	return []DeviceProps{{
		Name:                 hostDeviceName(),
		MultiProcessorCount:  c.workers,
		BlockThreadExtentMax: 1,
		BlockThreadCountMax:  1,
		ThreadElemExtentMax:  maxThreadElemExtent,
		GlobalMemSizeBytes:   c.memory,
		MemorySpace:          MemoryHost,
	}}
}

func (c *BlocksBackend) Launch(ctx context.Context, wd WorkDiv, fn ThreadFunc) error {
	if !c.initialized {
		return errNotInitialized(c.Name())
	}
	blocks, threads := wd.GridBlockCount(), wd.BlockThreadCount()
	if blocks == 0 {
		return nil
	}

	workers := c.workers
	if blocks < workers {
		workers = blocks
	}
	blocksPerWorker := (blocks + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		start := w * blocksPerWorker
		end := min(start+blocksPerWorker, blocks)
		if start >= end {
			break
		}
		g.Go(func() error {
			for b := start; b < end; b++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				for t := 0; t < threads; t++ {
					if err := fn(b, t); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}
	return g.Wait()
}
