package accel

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Manager handles accelerator backend selection and lifecycle. It owns the
// platform of the selected backend and the host platform that holds
// host-side buffers.
type Manager struct {
	mu        sync.RWMutex
	platform  *Platform
	host      *Platform
	requested Kind
	logger    *zap.Logger
}

// NewManager creates the host platform and selects the requested backend,
// falling back to the serial CPU backend when it is unavailable or fails to
// initialize.
func NewManager(kind Kind, opts Options, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Manager{
		requested: kind,
		logger:    logger.Named("manager"),
	}

	host, err := NewHostPlatform(opts.HostMemory, logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize host platform")
	}
	m.host = host

	if err := m.detectAndInitialize(kind, opts, logger); err != nil {
		_ = host.Close()
		return nil, err
	}
	return m, nil
}

// detectAndInitialize creates the requested backend, or the serial fallback
func (m *Manager) detectAndInitialize(kind Kind, opts Options, logger *zap.Logger) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if kind != KindCPUSerial {
		backend, err := NewBackend(kind, opts, logger)
		if err != nil {
			return err
		}
		if backend.IsAvailable() {
			platform, err := NewPlatform(backend, logger)
			if err == nil {
				m.platform = platform
				m.logger.Info("Using accelerator backend", zap.String("backend", backend.Name()))
				return nil
			}
			m.logger.Warn("Backend initialization failed, falling back to serial",
				zap.String("backend", backend.Name()), zap.Error(err))
			// If initialization failed, try cleanup
			_ = backend.Cleanup()
		} else {
			m.logger.Warn("Backend unavailable, falling back to serial", zap.String("backend", backend.Name()))
		}
	}

	// Fall back to serial CPU
	platform, err := NewPlatform(NewSerialBackend(opts.HostMemory, logger), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize serial backend: %w", err)
	}
	m.platform = platform
	m.logger.Info("Using accelerator backend", zap.String("backend", platform.Name()))
	return nil
}

// Platform returns the platform of the selected backend.
func (m *Manager) Platform() *Platform {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.platform
}

// Host returns the host platform.
func (m *Manager) Host() *Platform {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.host
}

// HostDevice returns the single device of the host platform.
func (m *Manager) HostDevice() *Device {
	dev, _ := m.Host().Device(0)
	return dev
}

// IsAccelerated reports whether the requested backend is the one in use.
func (m *Manager) IsAccelerated() bool {
	p := m.Platform()
	return p != nil && p.Kind() == m.requested
}

// BackendType returns a string describing the current backend type
func (m *Manager) BackendType() string {
	p := m.Platform()
	if p == nil {
		return "none"
	}
	return p.Name()
}

// Cleanup releases resources held by both platforms
func (m *Manager) Cleanup() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	if m.platform != nil {
		err = multierr.Append(err, m.platform.Close())
		m.platform = nil
	}
	if m.host != nil {
		err = multierr.Append(err, m.host.Close())
		m.host = nil
	}
	return err
}
