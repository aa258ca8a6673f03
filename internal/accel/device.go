package accel

import (
	"fmt"
	"strings"
)

// Kind identifies an accelerator type, i.e. a parallel execution model.
type Kind int

const (
	// KindCPUSerial runs every block and thread one after the other.
	KindCPUSerial Kind = iota
	// KindCPUBlocks runs blocks concurrently on a goroutine pool, one thread per block.
	KindCPUBlocks
	// KindGPUSim emulates a GPU: separate memory space, concurrent blocks and threads.
	KindGPUSim
)

func (k Kind) String() string {
	switch k {
	case KindCPUSerial:
		return "serial"
	case KindCPUBlocks:
		return "threads"
	case KindGPUSim:
		return "gpusim"
	default:
		return "unknown"
	}
}

// ParseKind maps a backend name from configuration to its Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "serial", "cpu":
		return KindCPUSerial, nil
	case "threads", "blocks":
		return KindCPUBlocks, nil
	case "gpusim", "gpu":
		return KindGPUSim, nil
	}
	return 0, fmt.Errorf("unknown accelerator backend %q", s)
}

// MemorySpace tells whether a device's buffers live in host memory or in a
// memory space of their own.
type MemorySpace int

const (
	MemoryHost MemorySpace = iota
	MemoryDevice
)

func (m MemorySpace) String() string {
	if m == MemoryDevice {
		return "device"
	}
	return "host"
}

// DeviceProps holds the capability metadata reported by a backend for one device.
type DeviceProps struct {
	Name                 string      `json:"name"`
	MultiProcessorCount  int         `json:"multiProcessorCount"`
	BlockThreadExtentMax int         `json:"blockThreadExtentMax"` // per dimension
	BlockThreadCountMax  int         `json:"blockThreadCountMax"`  // total per block
	ThreadElemExtentMax  int         `json:"threadElemExtentMax"`  // per dimension
	GlobalMemSizeBytes   uint64      `json:"globalMemSizeBytes"`
	MemorySpace          MemorySpace `json:"memorySpace"`
}

// Device is a read-only handle on an execution target. It carries no mutable
// state: buffers, queues and the memory ledger are owned elsewhere and only
// tagged with the Device they belong to.
type Device struct {
	platform *Platform
	index    int
	props    DeviceProps
}

func (d *Device) Index() int {
	return d.index
}

func (d *Device) Name() string {
	return d.props.Name
}

func (d *Device) Kind() Kind {
	return d.platform.backend.Kind()
}

// Props returns a copy of the device capabilities.
func (d *Device) Props() DeviceProps {
	return d.props
}

func (d *Device) Platform() *Platform {
	return d.platform
}

// String returns "<kind>:<index>", used as the device label in logs and metrics.
func (d *Device) String() string {
	return fmt.Sprintf("%s:%d", d.Kind(), d.index)
}
