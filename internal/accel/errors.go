package accel

import (
	"fmt"
)

// ErrorKind classifies failures of the accelerator layer.
type ErrorKind int

const (
	// KindAllocation means a device could not satisfy an allocation.
	KindAllocation ErrorKind = iota + 1
	// KindNoDeviceAvailable means a platform enumerated zero devices.
	KindNoDeviceAvailable
	// KindDeviceIndex means a device was requested past the enumerated count.
	KindDeviceIndex
	// KindShapeMismatch means two extents disagree, or an extent is malformed.
	KindShapeMismatch
	// KindDeviceMismatch means a buffer is not on the queue's device.
	KindDeviceMismatch
	// KindQueue means one or more enqueued tasks failed.
	KindQueue
	// KindIndexOutOfRange means a coordinate falls outside a buffer.
	KindIndexOutOfRange
	// KindBufferReleased means a buffer was used after Free.
	KindBufferReleased
)

func (k ErrorKind) String() string {
	switch k {
	case KindAllocation:
		return "AllocationError"
	case KindNoDeviceAvailable:
		return "NoDeviceAvailableError"
	case KindDeviceIndex:
		return "DeviceIndexError"
	case KindShapeMismatch:
		return "ShapeMismatchError"
	case KindDeviceMismatch:
		return "DeviceMismatchError"
	case KindQueue:
		return "QueueError"
	case KindIndexOutOfRange:
		return "IndexOutOfRange"
	case KindBufferReleased:
		return "BufferReleased"
	default:
		return "Unknown"
	}
}

// Error is the structured error returned by every operation of this package.
// Use errors.Is against the Err* sentinels to test the kind.
type Error struct {
	Kind ErrorKind
	Op   string // operation that failed
	Msg  string
	Err  error // underlying cause, if any
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Kind.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s in %s: %s: %v", e.Kind, e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s in %s: %s", e.Kind, e.Op, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinels by kind, so errors.Is(err, ErrShapeMismatch) holds for
// any shape error regardless of operation or message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Kind == e.Kind
}

func newError(kind ErrorKind, op, msg string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: cause}
}

var (
	ErrAllocation        = &Error{Kind: KindAllocation}
	ErrNoDeviceAvailable = &Error{Kind: KindNoDeviceAvailable}
	ErrDeviceIndex       = &Error{Kind: KindDeviceIndex}
	ErrShapeMismatch     = &Error{Kind: KindShapeMismatch}
	ErrDeviceMismatch    = &Error{Kind: KindDeviceMismatch}
	ErrQueue             = &Error{Kind: KindQueue}
	ErrIndexOutOfRange   = &Error{Kind: KindIndexOutOfRange}
	ErrBufferReleased    = &Error{Kind: KindBufferReleased}
)
