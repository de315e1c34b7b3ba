package events

// Worker event topics. The topic doubles as the event type.
const (
	WorkerStartedTopic    = "worker.started"
	WorkerStoppingTopic   = "worker.stopping"
	WorkerTerminatedTopic = "worker.terminated"
	TaskFaultedTopic      = "task.faulted"
)

// WorkerEvent identifies the worker an event is about.
type WorkerEvent struct {
	WorkerName string
	WorkerID   string
}

// WorkerStartedEvent is published once the worker loop is ready for tasks.
type WorkerStartedEvent struct {
	WorkerEvent
}

func (e WorkerStartedEvent) EventType() string { return WorkerStartedTopic }

// WorkerStoppingEvent is published by the first Stop call.
type WorkerStoppingEvent struct {
	WorkerEvent
	Pending int // tasks queued when the stop was requested
}

func (e WorkerStoppingEvent) EventType() string { return WorkerStoppingTopic }

// WorkerTerminatedEvent is published after the loop has exited.
type WorkerTerminatedEvent struct {
	WorkerEvent
	Executed  uint64
	Discarded uint64
	Err       error // non-nil when the loop was torn down by a task
}

func (e WorkerTerminatedEvent) EventType() string { return WorkerTerminatedTopic }

// TaskFaultedEvent is published when a task body panics.
type TaskFaultedEvent struct {
	WorkerEvent
	Seq uint64
	Err error
}

func (e TaskFaultedEvent) EventType() string { return TaskFaultedTopic }
