package accel

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testMemory = 1 << 20

func newTestPlatform(t *testing.T, kind Kind) *Platform {
	t.Helper()
	log := zaptest.NewLogger(t)
	backend, err := NewBackend(kind, Options{
		HostMemory: testMemory,
		Workers:    4,
		GPUSim:     GPUSimOptions{Devices: 2, Memory: testMemory, MultiProcessors: 4},
	}, log)
	require.NoError(t, err)
	p, err := NewPlatform(backend, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func newTestDevice(t *testing.T, kind Kind) *Device {
	t.Helper()
	dev, err := newTestPlatform(t, kind).Device(0)
	require.NoError(t, err)
	return dev
}

func allKinds() []Kind {
	return []Kind{KindCPUSerial, KindCPUBlocks, KindGPUSim}
}
