package accel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fxnlabs/mxm/internal/metrics"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const tracerName = "github.com/fxnlabs/mxm/internal/accel"

// DefaultQueueDepth is the number of tasks a non-blocking queue buffers
// before Enqueue starts to block.
const DefaultQueueDepth = 64

// Behavior selects whether Enqueue waits for the task to complete.
type Behavior int

const (
	// Blocking queues run each task before Enqueue returns.
	Blocking Behavior = iota
	// NonBlocking queues return from Enqueue at once; completion is only
	// observable after Wait.
	NonBlocking
)

func (b Behavior) String() string {
	if b == NonBlocking {
		return "non-blocking"
	}
	return "blocking"
}

// TaskKind labels tasks in logs, metrics and traces.
type TaskKind string

const (
	TaskCopy   TaskKind = "copy"
	TaskMemset TaskKind = "memset"
	TaskKernel TaskKind = "kernel"
	TaskHost   TaskKind = "host"
)

// Task is a unit of work executed by a Queue.
type Task interface {
	Kind() TaskKind
	String() string
	Run(ctx context.Context) error
}

type funcTask struct {
	kind TaskKind
	name string
	fn   func() error
}

func newTask(kind TaskKind, name string, fn func() error) *funcTask {
	return &funcTask{kind: kind, name: name, fn: fn}
}

// HostTask wraps fn as a task running on the host in queue order.
func HostTask(name string, fn func() error) Task {
	return newTask(TaskHost, name, fn)
}

func (t *funcTask) Kind() TaskKind {
	return t.kind
}

func (t *funcTask) String() string {
	return t.name
}

func (t *funcTask) Run(ctx context.Context) error {
	return t.fn()
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithDepth sets the buffered task capacity of a non-blocking queue.
func WithDepth(depth int) QueueOption {
	return func(q *Queue) {
		if depth > 0 {
			q.depth = depth
		}
	}
}

// Queue is an ordered submission channel to one device. Tasks run strictly in
// submission order. A failing task does not stop the ones after it; its error
// is kept and reported by the next Wait.
type Queue struct {
	id       string
	dev      *Device
	behavior Behavior
	depth    int
	log      *zap.Logger
	tracer   trace.Tracer

	// sendMu serializes submissions and guards closed and tasks.
	sendMu sync.Mutex
	closed bool
	tasks  chan Task
	done   chan struct{}

	errMu  sync.Mutex
	errs   error
	failed int
}

// NewQueue creates a queue bound to dev. The behavior cannot change later.
func NewQueue(dev *Device, behavior Behavior, log *zap.Logger, opts ...QueueOption) *Queue {
	if log == nil {
		log = zap.NewNop()
	}
	q := &Queue{
		id:       uuid.NewString(),
		dev:      dev,
		behavior: behavior,
		depth:    DefaultQueueDepth,
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.log = log.Named("queue").With(
		zap.String("queue", q.id),
		zap.Stringer("device", dev),
		zap.Stringer("behavior", behavior))

	if behavior == NonBlocking {
		q.tasks = make(chan Task, q.depth)
		q.done = make(chan struct{})
		go q.worker()
	}
	q.log.Debug("Queue created")
	return q
}

func (q *Queue) ID() string {
	return q.id
}

func (q *Queue) Device() *Device {
	return q.dev
}

func (q *Queue) Behavior() Behavior {
	return q.behavior
}

// Enqueue appends t to the queue. On a blocking queue t has completed, and
// its effects are visible, when Enqueue returns. Task failures are not
// returned here; they surface at the next Wait.
func (q *Queue) Enqueue(t Task) error {
	q.sendMu.Lock()
	defer q.sendMu.Unlock()
	if q.closed {
		return newError(KindQueue, "Enqueue", fmt.Sprintf("queue %s is closed", q.id), nil)
	}
	q.log.Debug("Task enqueued", zap.String("kind", string(t.Kind())), zap.Stringer("task", t))
	if q.behavior == Blocking {
		q.execute(t)
		return nil
	}
	q.tasks <- t
	return nil
}

// Wait blocks until every task enqueued before the call has completed, then
// returns a QueueError holding all failures recorded since the previous Wait.
// ctx only bounds the waiting; tasks are never cancelled.
func (q *Queue) Wait(ctx context.Context) error {
	if q.behavior == NonBlocking {
		barrier := make(chan struct{})
		if err := q.sendBarrier(ctx, barrier); err != nil {
			return err
		}

		select {
		case <-barrier:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return q.takeErrors()
}

// sendBarrier queues a task closing barrier. A full task channel is waited
// on only until ctx is done. On a closed queue barrier is closed at once.
func (q *Queue) sendBarrier(ctx context.Context, barrier chan struct{}) error {
	q.sendMu.Lock()
	defer q.sendMu.Unlock()
	if q.closed {
		close(barrier)
		return nil
	}
	task := newTask(TaskHost, "barrier", func() error {
		close(barrier)
		return nil
	})
	select {
	case q.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close waits for pending tasks and stops the queue. Further Enqueue calls
// fail. Failures not yet collected by Wait are returned.
func (q *Queue) Close() error {
	q.sendMu.Lock()
	if q.closed {
		q.sendMu.Unlock()
		return nil
	}
	q.closed = true
	if q.tasks != nil {
		close(q.tasks)
	}
	q.sendMu.Unlock()

	if q.done != nil {
		<-q.done
	}
	q.log.Debug("Queue closed")
	return q.takeErrors()
}

func (q *Queue) worker() {
	defer close(q.done)
	for t := range q.tasks {
		q.execute(t)
	}
}

func (q *Queue) execute(t Task) {
	kind := string(t.Kind())
	ctx, span := q.tracer.Start(context.Background(), kind, trace.WithAttributes(
		attribute.String("accel.queue", q.id),
		attribute.String("accel.device", q.dev.String()),
		attribute.String("accel.task", t.String()),
	))
	defer span.End()

	start := time.Now()
	err := runTask(ctx, t)
	elapsed := time.Since(start)

	metrics.QueueTaskDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	if err != nil {
		metrics.QueueTasks.WithLabelValues(kind, "failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		q.log.Warn("Task failed", zap.String("kind", kind), zap.Stringer("task", t), zap.Error(err))
		q.record(errors.Wrapf(err, "task %q", t.String()))
		return
	}
	metrics.QueueTasks.WithLabelValues(kind, "ok").Inc()
	q.log.Debug("Task completed", zap.String("kind", kind), zap.Stringer("task", t), zap.Duration("elapsed", elapsed))
}

func runTask(ctx context.Context, t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
		}
	}()
	return t.Run(ctx)
}

func (q *Queue) record(err error) {
	q.errMu.Lock()
	defer q.errMu.Unlock()
	q.errs = multierr.Append(q.errs, err)
	q.failed++
}

func (q *Queue) takeErrors() error {
	q.errMu.Lock()
	defer q.errMu.Unlock()
	if q.errs == nil {
		return nil
	}
	err := newError(KindQueue, "Wait", fmt.Sprintf("%d task(s) failed on queue %s", q.failed, q.id), q.errs)
	q.errs, q.failed = nil, 0
	return err
}
