package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Task execution outcomes used as the "status" label.
const (
	StatusOK    = "ok"
	StatusPanic = "panic"
)

// Rejection reasons used as the "reason" label.
const (
	ReasonStopped = "stopped"
	ReasonInvalid = "invalid"
)

var (
	// TasksSubmitted counts tasks accepted into a worker queue.
	TasksSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spindle_tasks_submitted_total",
		Help: "Total number of tasks accepted by a worker.",
	}, []string{"worker"})

	// TasksExecuted counts tasks that ran, by outcome.
	TasksExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spindle_tasks_executed_total",
		Help: "Total number of tasks executed by a worker.",
	}, []string{"worker", "status"})

	// TasksRejected counts submissions refused at the call site.
	TasksRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spindle_tasks_rejected_total",
		Help: "Total number of task submissions rejected by a worker.",
	}, []string{"worker", "reason"})

	// TasksDiscarded counts queued tasks dropped during shutdown.
	TasksDiscarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spindle_tasks_discarded_total",
		Help: "Total number of queued tasks dropped when a worker stopped.",
	}, []string{"worker"})

	// TaskDuration measures how long task bodies run.
	TaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "spindle_task_duration_seconds",
		Help:    "Duration of task execution in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"worker"})

	// QueueDepth is the number of tasks waiting in a worker queue.
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "spindle_queue_depth",
		Help: "Number of tasks waiting to run on a worker.",
	}, []string{"worker"})

	// WorkerStarts counts worker loops started.
	WorkerStarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spindle_worker_starts_total",
		Help: "Total number of worker loops started.",
	}, []string{"worker"})

	// WorkerStops counts worker loops terminated, by how they ended.
	WorkerStops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spindle_worker_stops_total",
		Help: "Total number of worker loops terminated.",
	}, []string{"worker", "status"})
)

// ObserveTask records one executed task.
func ObserveTask(worker, status string, d time.Duration) {
	TasksExecuted.WithLabelValues(worker, status).Inc()
	TaskDuration.WithLabelValues(worker).Observe(d.Seconds())
}

// SetQueueDepth publishes the current queue length of a worker.
func SetQueueDepth(worker string, n int) {
	QueueDepth.WithLabelValues(worker).Set(float64(n))
}
