package accel

import (
	"fmt"

	"github.com/fxnlabs/mxm/internal/metrics"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Platform enumerates the devices of one backend. It is created once, as an
// explicit initialization step, and its immutable Device handles are passed
// around from there; there is no process-wide device registry.
type Platform struct {
	backend Backend
	devices []*Device
	ledgers []*memoryLedger
	log     *zap.Logger
}

// NewPlatform initializes backend and enumerates its devices.
func NewPlatform(backend Backend, log *zap.Logger) (*Platform, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := backend.Initialize(); err != nil {
		return nil, errors.Wrapf(err, "initializing %s backend", backend.Name())
	}

	p := &Platform{
		backend: backend,
		log:     log.Named("platform").With(zap.String("backend", backend.Name())),
	}
	for i, props := range backend.Devices() {
		p.devices = append(p.devices, &Device{platform: p, index: i, props: props})
		p.ledgers = append(p.ledgers, newMemoryLedger(props.GlobalMemSizeBytes))
	}
	p.log.Debug("Platform initialized", zap.Int("devices", len(p.devices)))
	return p, nil
}

// NewHostPlatform returns the serial CPU platform whose single device holds
// host-side buffers.
func NewHostPlatform(capacity uint64, log *zap.Logger) (*Platform, error) {
	return NewPlatform(NewSerialBackend(capacity, log), log)
}

func (p *Platform) Name() string {
	return p.backend.Name()
}

func (p *Platform) Kind() Kind {
	return p.backend.Kind()
}

func (p *Platform) Backend() Backend {
	return p.backend
}

// Devices returns the enumerated devices in a stable order.
func (p *Platform) Devices() ([]*Device, error) {
	if len(p.devices) == 0 {
		return nil, newError(KindNoDeviceAvailable, "Devices", fmt.Sprintf("platform %s has no devices", p.Name()), nil)
	}
	out := make([]*Device, len(p.devices))
	copy(out, p.devices)
	return out, nil
}

// Device selects the device at index.
func (p *Platform) Device(index int) (*Device, error) {
	if len(p.devices) == 0 {
		return nil, newError(KindNoDeviceAvailable, "Device", fmt.Sprintf("platform %s has no devices", p.Name()), nil)
	}
	if index < 0 || index >= len(p.devices) {
		return nil, newError(KindDeviceIndex, "Device",
			fmt.Sprintf("index %d out of range, platform %s has %d device(s)", index, p.Name(), len(p.devices)), nil)
	}
	return p.devices[index], nil
}

// MemoryUsage reports reserved and total bytes of dev.
func (p *Platform) MemoryUsage(dev *Device) (used, total uint64) {
	used, total, _ = p.ledger(dev).usage()
	return used, total
}

// PeakMemory reports the high-water mark of reserved bytes on dev.
func (p *Platform) PeakMemory(dev *Device) uint64 {
	_, _, peak := p.ledger(dev).usage()
	return peak
}

// Close releases the backend. Devices must not be used afterwards.
func (p *Platform) Close() error {
	return p.backend.Cleanup()
}

func (p *Platform) ledger(dev *Device) *memoryLedger {
	return p.ledgers[dev.index]
}

func (p *Platform) reserve(dev *Device, size uint64) error {
	if err := p.ledger(dev).reserve(dev, size); err != nil {
		metrics.BufferAllocations.WithLabelValues(dev.String(), "failed").Inc()
		p.log.Warn("allocation failed", zap.Stringer("device", dev), zap.Uint64("bytes", size), zap.Error(err))
		return err
	}
	metrics.BufferAllocations.WithLabelValues(dev.String(), "ok").Inc()
	metrics.DeviceMemoryUsedBytes.WithLabelValues(dev.String()).Add(float64(size))
	return nil
}

func (p *Platform) release(dev *Device, size uint64) {
	p.ledger(dev).release(size)
	metrics.DeviceMemoryUsedBytes.WithLabelValues(dev.String()).Sub(float64(size))
}
