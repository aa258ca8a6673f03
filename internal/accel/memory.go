package accel

import (
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
)

// memoryLedger accounts for the bytes reserved on one device. Reservations
// are all-or-nothing: a request that does not fit leaves the ledger untouched.
type memoryLedger struct {
	mu       sync.Mutex
	capacity uint64
	inUse    uint64
	peak     uint64
}

func newMemoryLedger(capacity uint64) *memoryLedger {
	return &memoryLedger{capacity: capacity}
}

func (m *memoryLedger) reserve(dev *Device, size uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	free := m.capacity - m.inUse
	if size > free {
		return newError(KindAllocation, "Alloc", fmt.Sprintf("%s requested on %s, %s free of %s",
			humanize.IBytes(size), dev, humanize.IBytes(free), humanize.IBytes(m.capacity)), nil)
	}
	m.inUse += size
	if m.inUse > m.peak {
		m.peak = m.inUse
	}
	return nil
}

func (m *memoryLedger) release(size uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if size > m.inUse {
		size = m.inUse
	}
	m.inUse -= size
}

func (m *memoryLedger) usage() (used, total, peak uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inUse, m.capacity, m.peak
}
