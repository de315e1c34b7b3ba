package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"spindle/core/errors"
)

// Handler is an interface for processing a specific type of job.
// Handlers run on the worker goroutine, one job at a time.
type Handler interface {
	Handle(ctx context.Context, job Job) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, job Job) error

// Handle calls f(ctx, job).
func (f HandlerFunc) Handle(ctx context.Context, job Job) error {
	return f(ctx, job)
}

// HandlerRegistry maps job types to handlers.
type HandlerRegistry interface {
	// RegisterHandler registers a handler for a job type.
	// Registering a type twice returns an error.
	RegisterHandler(jobType string, handler Handler) error

	// GetHandler retrieves the handler for a job type, or nil.
	GetHandler(jobType string) Handler

	// Types returns the registered job types in sorted order.
	Types() []string
}

type handlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewHandlerRegistry returns an empty, concurrency-safe HandlerRegistry.
func NewHandlerRegistry() HandlerRegistry {
	return &handlerRegistry{handlers: make(map[string]Handler)}
}

func (r *handlerRegistry) RegisterHandler(jobType string, handler Handler) error {
	if jobType == "" || handler == nil {
		return fmt.Errorf("register handler %q: %w", jobType, errors.ErrInvalidInput)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[jobType]; exists {
		return fmt.Errorf("handler for %q: %w", jobType, errors.ErrAlreadyExists)
	}
	r.handlers[jobType] = handler
	return nil
}

func (r *handlerRegistry) GetHandler(jobType string) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[jobType]
}

func (r *handlerRegistry) Types() []string {
	r.mu.RLock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	r.mu.RUnlock()
	sort.Strings(types)
	return types
}
