package worker

import (
	"fmt"
	"strings"

	"spindle/core/events"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultName is used when no WithName option is given.
const DefaultName = "worker"

// StopPolicy decides what happens to queued tasks when a worker is stopped.
type StopPolicy int

const (
	// DrainPending runs every task accepted before Stop, then exits.
	DrainPending StopPolicy = iota
	// DiscardPending finishes the in-flight task and drops the rest.
	DiscardPending
)

func (p StopPolicy) String() string {
	switch p {
	case DrainPending:
		return "drain"
	case DiscardPending:
		return "discard"
	default:
		return fmt.Sprintf("StopPolicy(%d)", int(p))
	}
}

// ParseStopPolicy accepts "drain" or "discard" (case-insensitive).
func ParseStopPolicy(s string) (StopPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "drain":
		return DrainPending, nil
	case "discard":
		return DiscardPending, nil
	default:
		return 0, fmt.Errorf("unknown stop policy %q", s)
	}
}

// Option configures a Worker.
type Option func(*options)

type options struct {
	name         string
	logger       *zap.Logger
	errorHandler func(error)
	lockOSThread bool
	policy       StopPolicy
	bus          events.Bus
	tracer       trace.Tracer
	metrics      bool
	warnDepth    int

	// invalid records options that were passed explicit nil values.
	invalid []string
}

func defaultOptions() options {
	return options{
		name:         DefaultName,
		lockOSThread: true,
		policy:       DrainPending,
		metrics:      true,
	}
}

func (o *options) validate() error {
	if strings.TrimSpace(o.name) == "" {
		return fmt.Errorf("worker name is empty")
	}
	if len(o.invalid) > 0 {
		return fmt.Errorf("nil value for %s", strings.Join(o.invalid, ", "))
	}
	if o.warnDepth < 0 {
		return fmt.Errorf("queue warn depth must not be negative, got %d", o.warnDepth)
	}
	if o.policy != DrainPending && o.policy != DiscardPending {
		return fmt.Errorf("unknown stop policy %v", o.policy)
	}
	return nil
}

// WithName sets the worker name used in logs, metrics and events.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithLogger sets the logger. The default is the application logger named "worker".
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l == nil {
			o.invalid = append(o.invalid, "logger")
			return
		}
		o.logger = l
	}
}

// WithErrorHandler sets the sink for task faults. It is called on the worker
// goroutine and must not block for long. The default logs the error.
func WithErrorHandler(f func(error)) Option {
	return func(o *options) {
		if f == nil {
			o.invalid = append(o.invalid, "error handler")
			return
		}
		o.errorHandler = f
	}
}

// WithLockOSThread controls whether the worker goroutine is wired to a single
// OS thread for its whole life. Enabled by default.
func WithLockOSThread(lock bool) Option {
	return func(o *options) { o.lockOSThread = lock }
}

// WithStopPolicy sets how queued tasks are treated on Stop.
func WithStopPolicy(p StopPolicy) Option {
	return func(o *options) { o.policy = p }
}

// WithEventBus makes the worker publish lifecycle and fault events to bus.
func WithEventBus(bus events.Bus) Option {
	return func(o *options) { o.bus = bus }
}

// WithTracer sets the tracer used for per-task spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		if t == nil {
			o.invalid = append(o.invalid, "tracer")
			return
		}
		o.tracer = t
	}
}

// WithMetrics toggles prometheus instrumentation. Enabled by default.
func WithMetrics(enabled bool) Option {
	return func(o *options) { o.metrics = enabled }
}

// WithQueueWarnDepth logs a warning when the queue grows to depth tasks.
// The warning fires again only after the queue has dropped below depth.
// Zero, the default, disables it.
func WithQueueWarnDepth(depth int) Option {
	return func(o *options) { o.warnDepth = depth }
}

func defaultTracer() trace.Tracer {
	return otel.Tracer("spindle/worker")
}
