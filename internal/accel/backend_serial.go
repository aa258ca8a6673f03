package accel

import (
	"context"

	"go.uber.org/zap"
)

// SerialBackend runs kernels on the calling goroutine, one block and one
// thread at a time. It exposes a single host device with one thread per block.
type SerialBackend struct {
	logger      *zap.Logger
	memory      uint64
	initialized bool
}

// NewSerialBackend creates a serial CPU backend whose device holds memory bytes.
func NewSerialBackend(memory uint64, logger *zap.Logger) *SerialBackend {
	return &SerialBackend{
		logger: logger.Named("serial"),
		memory: memory,
	}
}

func (s *SerialBackend) Kind() Kind {
	return KindCPUSerial
}

func (s *SerialBackend) Name() string {
	return KindCPUSerial.String()
}

// IsAvailable checks if the backend is available (always true for CPU)
func (s *SerialBackend) IsAvailable() bool {
	return true
}

func (s *SerialBackend) Initialize() error {
	if s.initialized {
		return nil
	}
	s.initialized = true
	s.logger.Debug("Serial backend initialized")
	return nil
}

// Cleanup releases any resources (none for the serial backend)
func (s *SerialBackend) Cleanup() error {
	s.initialized = false
	return nil
}

func (s *SerialBackend) Devices() []DeviceProps {
	return []DeviceProps{{
		Name:                 hostDeviceName(),
		MultiProcessorCount:  1,
		BlockThreadExtentMax: 1,
		BlockThreadCountMax:  1,
		ThreadElemExtentMax:  maxThreadElemExtent,
		GlobalMemSizeBytes:   s.memory,
		MemorySpace:          MemoryHost,
	}}
}

func (s *SerialBackend) Launch(ctx context.Context, wd WorkDiv, fn ThreadFunc) error {
	if !s.initialized {
		return errNotInitialized(s.Name())
	}
	blocks, threads := wd.GridBlockCount(), wd.BlockThreadCount()
	for b := 0; b < blocks; b++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for t := 0; t < threads; t++ {
			if err := fn(b, t); err != nil {
				return err
			}
		}
	}
	return nil
}
