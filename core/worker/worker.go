// Package worker provides a long-lived background execution context: one
// goroutine, locked to one OS thread by default, that runs submitted tasks
// one at a time in submission order until it is stopped.
//
// A Worker is created with New, fed with Submit and shut down with Stop.
// Submit never waits for the task to run. Tasks submitted by one goroutine
// run in the order they were submitted; tasks from different goroutines run
// in the order their Submit calls acquired the queue. No two tasks of the
// same Worker ever run at the same time.
//
// Once Stop has been called, Submit returns errors.ErrStopped and the task is
// never run. Whether tasks already queued at that moment still run depends on
// the StopPolicy: DrainPending (the default) runs them, DiscardPending drops
// them. The task in progress always runs to completion.
//
// A panic in a task is recovered and handed to the error handler; the worker
// keeps serving later tasks.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"spindle/core/errors"
	"spindle/core/events"
	"spindle/core/logger"
	"spindle/core/metrics"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Task is a unit of work run on the worker goroutine.
type Task func()

// State is the lifecycle state of a Worker.
type State int32

const (
	// StateRunning accepts and runs tasks. Entered by New.
	StateRunning State = iota
	// StateStopping rejects new tasks; entered by the first Stop call.
	StateStopping
	// StateTerminated is final: the loop has exited and the thread is gone.
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Stats is a snapshot of a worker's counters.
type Stats struct {
	Submitted uint64 // tasks accepted into the queue
	Executed  uint64 // tasks that ran, including ones that panicked
	Faulted   uint64 // tasks that panicked
	Rejected  uint64 // Submit calls refused (nil task or stopped worker)
	Discarded uint64 // queued tasks dropped at shutdown
	Pending   int    // tasks currently queued
}

// Worker owns a single goroutine and a FIFO queue of tasks.
// The zero value is not usable; create workers with New.
type Worker struct {
	name         string
	id           string
	log          *zap.Logger
	errorHandler func(error)
	lockOSThread bool
	policy       StopPolicy
	bus          events.Bus
	tracer       trace.Tracer
	metrics      bool
	warnDepth    int

	mu      sync.Mutex
	cond    *sync.Cond
	queue   fifo
	state   State
	stats   Stats
	seq     uint64
	exitErr error
	warned  bool // queue at or above warnDepth since the last warning

	done chan struct{}
}

// New creates a worker and starts its loop. The loop is ready to run tasks
// when New returns. The returned error wraps errors.ErrConstruction.
func New(opts ...Option) (*Worker, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrConstruction, err)
	}

	w := &Worker{
		name:         o.name,
		id:           uuid.NewString(),
		lockOSThread: o.lockOSThread,
		policy:       o.policy,
		bus:          o.bus,
		tracer:       o.tracer,
		metrics:      o.metrics,
		warnDepth:    o.warnDepth,
		state:        StateRunning,
		done:         make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.mu)

	l := o.logger
	if l == nil {
		l = logger.Logger.Named("worker")
	}
	w.log = l.With(zap.String("worker", w.name), zap.String("worker_id", w.id))

	w.errorHandler = o.errorHandler
	if w.errorHandler == nil {
		w.errorHandler = w.logError
	}
	if w.tracer == nil {
		w.tracer = defaultTracer()
	}

	ready := make(chan struct{})
	go w.loop(ready)
	<-ready

	if w.metrics {
		metrics.WorkerStarts.WithLabelValues(w.name).Inc()
	}
	w.log.Info("Worker started",
		zap.Bool("lock_os_thread", w.lockOSThread),
		zap.Stringer("stop_policy", w.policy),
	)
	w.publish(events.WorkerStartedTopic, events.WorkerStartedEvent{WorkerEvent: w.event()})
	return w, nil
}

// Name returns the worker name.
func (w *Worker) Name() string { return w.name }

// ID returns the unique identifier assigned at creation.
func (w *Worker) ID() string { return w.id }

// Done returns a channel closed once the worker has terminated.
func (w *Worker) Done() <-chan struct{} { return w.done }

// State returns the current lifecycle state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Len returns the number of tasks waiting to run.
func (w *Worker) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.queue.Len()
}

// Stats returns a snapshot of the worker counters.
func (w *Worker) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.stats
	s.Pending = w.queue.Len()
	return s
}

// Err returns the reason the loop ended abnormally, or nil.
func (w *Worker) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.exitErr
}

// Submit appends task to the queue and returns without waiting for it.
// A nil task yields errors.ErrInvalidTask; a task submitted after Stop was
// called yields errors.ErrStopped. In both cases the task never runs.
// Submit is safe for concurrent use.
func (w *Worker) Submit(task Task) error {
	if task == nil {
		w.reject(metrics.ReasonInvalid)
		return errors.ErrInvalidTask
	}

	w.mu.Lock()
	if w.state != StateRunning {
		state := w.state
		w.mu.Unlock()
		w.reject(metrics.ReasonStopped)
		w.log.Debug("Task rejected, worker not running", zap.Stringer("state", state))
		return errors.ErrStopped
	}
	w.queue.Push(task)
	w.stats.Submitted++
	depth := w.queue.Len()
	warn := w.warnDepth > 0 && depth >= w.warnDepth && !w.warned
	if warn {
		w.warned = true
	}
	w.cond.Signal()
	w.mu.Unlock()

	if warn {
		w.log.Warn("Task queue is backing up", zap.Int("depth", depth), zap.Int("warn_depth", w.warnDepth))
	}

	if w.metrics {
		metrics.TasksSubmitted.WithLabelValues(w.name).Inc()
		metrics.SetQueueDepth(w.name, depth)
	}
	return nil
}

func (w *Worker) reject(reason string) {
	w.mu.Lock()
	w.stats.Rejected++
	w.mu.Unlock()
	if w.metrics {
		metrics.TasksRejected.WithLabelValues(w.name, reason).Inc()
	}
}

// Stop asks the loop to exit and waits until it has, or until ctx is done.
// The task in progress always completes; queued tasks are run or dropped
// according to the StopPolicy. Stop is idempotent and safe for concurrent
// use: every call waits for the same termination.
//
// If ctx ends first, Stop returns ctx.Err() and termination continues in the
// background; Done reports when it finishes. A task must not call Stop on its
// own worker with a context that never ends, since the loop cannot exit while
// that task is still running.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	first := w.state == StateRunning
	var pending int
	if first {
		w.state = StateStopping
		pending = w.queue.Len()
		w.cond.Broadcast()
	}
	w.mu.Unlock()

	if first {
		w.log.Info("Worker stopping", zap.Int("pending", pending))
		w.publish(events.WorkerStoppingTopic, events.WorkerStoppingEvent{WorkerEvent: w.event(), Pending: pending})
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush waits until every task submitted before the call has run. It returns
// errors.ErrStopped if the worker is not running or terminates first.
// Like Stop, a task must not call Flush on its own worker with a context that
// never ends: the marker cannot run until that task returns.
func (w *Worker) Flush(ctx context.Context) error {
	marker := make(chan struct{})
	if err := w.Submit(func() { close(marker) }); err != nil {
		return err
	}
	select {
	case <-marker:
		return nil
	case <-w.done:
		select {
		case <-marker:
			return nil
		default:
			return errors.ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop(ready chan<- struct{}) {
	if w.lockOSThread {
		// Never unlocked: the runtime destroys the thread when this goroutine exits.
		runtime.LockOSThread()
	}

	clean := false
	defer func() { w.terminate(clean) }()

	close(ready)
	for {
		task, seq, ok := w.next()
		if !ok {
			clean = true
			return
		}
		w.run(task, seq)
	}
}

// next blocks until a task is available or the loop should exit.
func (w *Worker) next() (Task, uint64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.queue.Len() == 0 && w.state == StateRunning {
		w.cond.Wait()
	}
	if w.state != StateRunning && (w.policy == DiscardPending || w.queue.Len() == 0) {
		return nil, 0, false
	}
	task := w.queue.Pop()
	w.seq++
	if w.warned && w.queue.Len() < w.warnDepth {
		w.warned = false
	}
	if w.metrics {
		metrics.SetQueueDepth(w.name, w.queue.Len())
	}
	return task, w.seq, true
}

// run executes one task, converting a panic into a TaskPanicError.
// A runtime.Goexit from the task is not recoverable and ends the loop.
func (w *Worker) run(task Task, seq uint64) {
	_, span := w.tracer.Start(context.Background(), "Worker.Task",
		trace.WithAttributes(
			attribute.String("worker.name", w.name),
			attribute.Int64("task.seq", int64(seq)),
		))
	start := time.Now()
	finished := false

	defer func() {
		elapsed := time.Since(start)
		if finished {
			w.account(metrics.StatusOK, elapsed)
			span.End()
			return
		}
		r := recover()
		if r == nil {
			// runtime.Goexit; terminate reports it.
			span.SetStatus(codes.Error, errors.ErrTaskExited.Error())
			span.End()
			return
		}
		err := &errors.TaskPanicError{Worker: w.name, Seq: seq, Value: r, Stack: debug.Stack()}
		w.account(metrics.StatusPanic, elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		w.publish(events.TaskFaultedTopic, events.TaskFaultedEvent{WorkerEvent: w.event(), Seq: seq, Err: err})
		w.report(err)
	}()

	task()
	finished = true
}

func (w *Worker) account(status string, elapsed time.Duration) {
	w.mu.Lock()
	w.stats.Executed++
	if status == metrics.StatusPanic {
		w.stats.Faulted++
	}
	w.mu.Unlock()
	if w.metrics {
		metrics.ObserveTask(w.name, status, elapsed)
	}
}

// report hands err to the error handler. A panicking handler is logged and
// swallowed so that it cannot take the loop down.
func (w *Worker) report(err error) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Error handler panicked", zap.Any("panic", r), zap.NamedError("reported", err))
		}
	}()
	w.errorHandler(err)
}

func (w *Worker) terminate(clean bool) {
	w.mu.Lock()
	discarded := w.queue.Reset()
	w.stats.Discarded += uint64(discarded)
	w.state = StateTerminated
	if !clean {
		w.exitErr = errors.ErrTaskExited
	}
	stats := w.stats
	exitErr := w.exitErr
	w.mu.Unlock()

	status := "success"
	if !clean {
		status = "failed"
		w.report(fmt.Errorf("worker %q: %w", w.name, errors.ErrTaskExited))
	}
	if w.metrics {
		if discarded > 0 {
			metrics.TasksDiscarded.WithLabelValues(w.name).Add(float64(discarded))
		}
		metrics.SetQueueDepth(w.name, 0)
		metrics.WorkerStops.WithLabelValues(w.name, status).Inc()
	}
	w.log.Info("Worker terminated",
		zap.Uint64("executed", stats.Executed),
		zap.Uint64("faulted", stats.Faulted),
		zap.Uint64("discarded", stats.Discarded),
		zap.String("status", status),
	)
	w.publish(events.WorkerTerminatedTopic, events.WorkerTerminatedEvent{
		WorkerEvent: w.event(),
		Executed:    stats.Executed,
		Discarded:   stats.Discarded,
		Err:         exitErr,
	})
	close(w.done)
}

func (w *Worker) logError(err error) {
	var pe *errors.TaskPanicError
	if errors.As(err, &pe) {
		w.log.Error("Task panicked",
			zap.Uint64("seq", pe.Seq),
			zap.Any("panic", pe.Value),
			zap.ByteString("stack", pe.Stack),
		)
		return
	}
	w.log.Error("Worker error", zap.Error(err))
}

func (w *Worker) event() events.WorkerEvent {
	return events.WorkerEvent{WorkerName: w.name, WorkerID: w.id}
}

func (w *Worker) publish(topic string, ev events.TypedEvent) {
	if w.bus == nil {
		return
	}
	w.bus.Publish(context.Background(), topic, ev)
}
