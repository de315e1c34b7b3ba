package jobs

import (
	"context"
	"fmt"

	"spindle/core/errors"
	"spindle/core/logger"
	"spindle/core/worker"

	"go.uber.org/zap"
)

// Enqueuer is an interface for enqueuing jobs.
type Enqueuer interface {
	// Enqueue schedules job for execution. It does not wait for the handler.
	Enqueue(ctx context.Context, job Job) error
}

// Submitter is the part of worker.Worker an Enqueuer needs.
type Submitter interface {
	Submit(task worker.Task) error
	Name() string
}

// WorkerEnqueuer runs jobs on a single worker, in enqueue order.
type WorkerEnqueuer struct {
	worker   Submitter
	handlers HandlerRegistry
	onError  func(Job, error)
}

// NewWorkerEnqueuer returns an Enqueuer dispatching to w through handlers.
// onError receives handler errors; nil logs them.
func NewWorkerEnqueuer(w Submitter, handlers HandlerRegistry, onError func(Job, error)) *WorkerEnqueuer {
	e := &WorkerEnqueuer{worker: w, handlers: handlers, onError: onError}
	if e.onError == nil {
		e.onError = e.logError
	}
	return e
}

// Enqueue looks up the handler for job's type and submits it to the worker.
// An unknown type returns errors.ErrNotFound; a stopped worker returns
// errors.ErrStopped. The job's context is checked again just before the
// handler runs, and a cancelled job is skipped.
func (e *WorkerEnqueuer) Enqueue(ctx context.Context, job Job) error {
	if job == nil {
		return fmt.Errorf("enqueue nil job: %w", errors.ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	h := e.handlers.GetHandler(job.Type())
	if h == nil {
		return fmt.Errorf("handler for %q: %w", job.Type(), errors.ErrNotFound)
	}
	return e.worker.Submit(func() {
		jobCtx := job.Context()
		if err := jobCtx.Err(); err != nil {
			e.onError(job, err)
			return
		}
		if err := h.Handle(jobCtx, job); err != nil {
			e.onError(job, err)
		}
	})
}

func (e *WorkerEnqueuer) logError(job Job, err error) {
	ctx := logger.WithComponentName(job.Context(), "jobs")
	logger.Error(ctx, "Job failed",
		zap.String("worker", e.worker.Name()),
		zap.String("job_id", job.ID()),
		zap.String("job_type", job.Type()),
		zap.Error(err),
	)
}
