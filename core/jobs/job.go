package jobs

import (
	"context"

	"github.com/google/uuid"
)

// Job represents a typed unit of work dispatched to a Handler on a worker.
type Job interface {
	// ID returns a unique identifier for this job instance.
	ID() string

	// Type returns a string identifier for the job type.
	Type() string

	// Payload returns the job's data. The concrete type depends on the job.
	Payload() any

	// Context returns the context the handler runs with.
	Context() context.Context
}

// BaseJob provides a basic implementation of Job.
// It can be embedded in concrete job structs to reduce boilerplate.
type BaseJob struct {
	JobID   string          `json:"id"`
	JobType string          `json:"job_type"`
	Data    any             `json:"data"`
	Ctx     context.Context `json:"-"` // Context is not serialized
}

// NewJob returns a BaseJob with a fresh ID.
func NewJob(ctx context.Context, jobType string, payload any) *BaseJob {
	return &BaseJob{
		JobID:   uuid.NewString(),
		JobType: jobType,
		Data:    payload,
		Ctx:     ctx,
	}
}

// ID returns the job ID.
func (b *BaseJob) ID() string {
	return b.JobID
}

// Type returns the job type.
func (b *BaseJob) Type() string {
	return b.JobType
}

// Payload returns the job's data.
func (b *BaseJob) Payload() any {
	return b.Data
}

// Context returns the context associated with the job.
func (b *BaseJob) Context() context.Context {
	if b.Ctx == nil {
		return context.Background()
	}
	return b.Ctx
}
