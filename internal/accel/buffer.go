package accel

import (
	"fmt"
	"math"
	"sync"
	"unsafe"

	"golang.org/x/exp/constraints"
)

// Elem is the set of element types a Buffer can hold.
type Elem interface {
	constraints.Integer | constraints.Float
}

// Buffer is a rectangular N-dimensional allocation of T on one device,
// linearized row-major. A buffer belongs to exactly one device for its whole
// life; moving data between devices always goes through Copy on a queue.
type Buffer[T Elem] struct {
	dev    *Device
	extent Vec
	bytes  uint64

	mu       sync.RWMutex
	data     []T
	released bool
}

// Alloc reserves and zeroes a buffer of the given extent on dev.
func Alloc[T Elem](dev *Device, extent Vec) (*Buffer[T], error) {
	const op = "Alloc"
	if err := extent.Validate(); err != nil {
		return nil, err
	}
	var zero T
	elemSize := uint64(unsafe.Sizeof(zero))
	count := uint64(1)
	for _, c := range extent {
		if c != 0 && count > math.MaxInt/uint64(c) {
			return nil, newError(KindAllocation, op, fmt.Sprintf("extent %s overflows", extent), nil)
		}
		count *= uint64(c)
	}
	if count > math.MaxUint64/elemSize {
		return nil, newError(KindAllocation, op, fmt.Sprintf("extent %s overflows", extent), nil)
	}
	size := count * elemSize

	if err := dev.platform.reserve(dev, size); err != nil {
		return nil, err
	}
	return &Buffer[T]{
		dev:    dev,
		extent: extent.Clone(),
		bytes:  size,
		data:   make([]T, count),
	}, nil
}

func (b *Buffer[T]) Device() *Device {
	return b.dev
}

// Extent returns a copy of the buffer's extent.
func (b *Buffer[T]) Extent() Vec {
	return b.extent.Clone()
}

// Len returns the number of elements.
func (b *Buffer[T]) Len() int {
	return b.extent.Prod()
}

// Bytes returns the reserved size in bytes.
func (b *Buffer[T]) Bytes() uint64 {
	return b.bytes
}

// At reads the element at c.
func (b *Buffer[T]) At(c Vec) (T, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var zero T
	if err := b.check("Buffer.At", c); err != nil {
		return zero, err
	}
	return b.data[b.extent.Linearize(c)], nil
}

// Set writes v at c.
func (b *Buffer[T]) Set(c Vec, v T) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.check("Buffer.Set", c); err != nil {
		return err
	}
	b.data[b.extent.Linearize(c)] = v
	return nil
}

// Data returns the native linear view of the buffer, for kernels and bulk
// host access. It is nil once the buffer has been freed. Index bounds are
// the caller's responsibility.
func (b *Buffer[T]) Data() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.data
}

// Free releases the buffer's reservation on its device. Calling Free more
// than once is a no-op.
func (b *Buffer[T]) Free() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return nil
	}
	b.released = true
	b.data = nil
	b.dev.platform.release(b.dev, b.bytes)
	return nil
}

func (b *Buffer[T]) check(op string, c Vec) error {
	if b.released {
		return newError(KindBufferReleased, op, "buffer was freed", nil)
	}
	if !b.extent.Contains(c) {
		return newError(KindIndexOutOfRange, op, fmt.Sprintf("coordinate %s outside extent %s", c, b.extent), nil)
	}
	return nil
}

func (b *Buffer[T]) isReleased() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.released
}

// Copy enqueues a transfer of src into dst. Both buffers must have the same
// extent and one of them must live on the queue's device. dst reflects src
// once the task has completed: on return for a blocking queue, after Wait
// otherwise. src must not be modified before then.
func Copy[T Elem](q *Queue, dst, src *Buffer[T]) error {
	const op = "Copy"
	if !dst.extent.Equal(src.extent) {
		return newError(KindShapeMismatch, op, fmt.Sprintf("destination %s, source %s", dst.extent, src.extent), nil)
	}
	if dst.dev != q.dev && src.dev != q.dev {
		return newError(KindDeviceMismatch, op,
			fmt.Sprintf("queue on %s, source on %s, destination on %s", q.dev, src.dev, dst.dev), nil)
	}
	if src.isReleased() || dst.isReleased() {
		return newError(KindBufferReleased, op, "copy involves a freed buffer", nil)
	}
	name := fmt.Sprintf("copy %s->%s %s", src.dev, dst.dev, src.extent)
	return q.Enqueue(newTask(TaskCopy, name, func() error {
		d, s := dst.Data(), src.Data()
		if d == nil || s == nil {
			return newError(KindBufferReleased, op, "buffer freed before the copy ran", nil)
		}
		copy(d, s)
		return nil
	}))
}

// Memset enqueues a task setting every element of buf to v. buf must live on
// the queue's device.
func Memset[T Elem](q *Queue, buf *Buffer[T], v T) error {
	const op = "Memset"
	if buf.dev != q.dev {
		return newError(KindDeviceMismatch, op, fmt.Sprintf("queue on %s, buffer on %s", q.dev, buf.dev), nil)
	}
	if buf.isReleased() {
		return newError(KindBufferReleased, op, "buffer was freed", nil)
	}
	return q.Enqueue(newTask(TaskMemset, fmt.Sprintf("memset %s %s", buf.dev, buf.extent), func() error {
		data := buf.Data()
		if data == nil {
			return newError(KindBufferReleased, op, "buffer freed before the memset ran", nil)
		}
		for i := range data {
			data[i] = v
		}
		return nil
	}))
}
