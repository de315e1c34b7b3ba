package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"spindle/core/errors"
	"spindle/core/logger"
	"spindle/core/worker"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Registry is a set of named workers owned by one component.
// It is an explicit object; there is no process-wide instance.
type Registry interface {
	// Spawn creates a worker named name and registers it.
	Spawn(name string, opts ...worker.Option) (*worker.Worker, error)
	// Register adds an existing worker under its own name.
	Register(w *worker.Worker) error
	// Get retrieves a worker by name.
	Get(name string) (*worker.Worker, bool)
	// Names returns the sorted names of all registered workers.
	Names() []string
	// Submit hands task to the named worker.
	Submit(name string, task worker.Task) error
	// Remove stops the named worker and forgets it.
	Remove(ctx context.Context, name string) error
	// StopAll stops every worker concurrently and empties the registry.
	StopAll(ctx context.Context) error
}

// DefaultRegistry is a concrete implementation of the Registry interface.
type DefaultRegistry struct {
	mu      sync.RWMutex
	workers map[string]*worker.Worker
	opts    []worker.Option
}

// NewDefaultRegistry creates an empty registry. opts are applied to every
// worker created by Spawn, before the per-call options.
func NewDefaultRegistry(opts ...worker.Option) *DefaultRegistry {
	return &DefaultRegistry{
		workers: make(map[string]*worker.Worker),
		opts:    opts,
	}
}

// Spawn creates a worker named name and registers it. If the name is taken,
// no worker is created.
func (r *DefaultRegistry) Spawn(name string, opts ...worker.Option) (*worker.Worker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workers[name]; exists {
		return nil, fmt.Errorf("worker '%s': %w", name, errors.ErrAlreadyExists)
	}

	all := make([]worker.Option, 0, len(r.opts)+len(opts)+1)
	all = append(all, r.opts...)
	all = append(all, opts...)
	all = append(all, worker.WithName(name))
	w, err := worker.New(all...)
	if err != nil {
		return nil, fmt.Errorf("spawn worker '%s': %w", name, err)
	}
	r.workers[name] = w
	return w, nil
}

// Register adds an existing worker under its own name.
func (r *DefaultRegistry) Register(w *worker.Worker) error {
	if w == nil {
		return fmt.Errorf("worker is nil: %w", errors.ErrInvalidInput)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workers[w.Name()]; exists {
		return fmt.Errorf("worker '%s': %w", w.Name(), errors.ErrAlreadyExists)
	}
	r.workers[w.Name()] = w
	return nil
}

// Get retrieves a worker by name.
func (r *DefaultRegistry) Get(name string) (*worker.Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workers[name]
	return w, ok
}

// Names returns the sorted names of all registered workers.
func (r *DefaultRegistry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.workers))
	for name := range r.workers {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Submit hands task to the named worker.
func (r *DefaultRegistry) Submit(name string, task worker.Task) error {
	w, ok := r.Get(name)
	if !ok {
		return fmt.Errorf("worker '%s': %w", name, errors.ErrNotFound)
	}
	return w.Submit(task)
}

// Remove stops the named worker and forgets it. The worker is forgotten even
// if ctx ends before it has terminated.
func (r *DefaultRegistry) Remove(ctx context.Context, name string) error {
	r.mu.Lock()
	w, ok := r.workers[name]
	delete(r.workers, name)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("worker '%s': %w", name, errors.ErrNotFound)
	}
	return errors.Wrap(w.Stop(ctx), fmt.Sprintf("stop worker '%s'", name))
}

// StopAll stops every worker concurrently and empties the registry. All
// workers are asked to stop even if some fail to finish in time.
func (r *DefaultRegistry) StopAll(ctx context.Context) error {
	r.mu.Lock()
	workers := r.workers
	r.workers = make(map[string]*worker.Worker)
	r.mu.Unlock()

	ctx = logger.WithComponentName(ctx, "registry")
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for name, w := range workers {
		g.Go(func() error {
			if err := w.Stop(ctx); err != nil {
				logger.Warn(ctx, "Worker did not stop in time", zap.String("worker", name), zap.Error(err))
				mu.Lock()
				errs = append(errs, errors.Wrap(err, fmt.Sprintf("stop worker '%s'", name)))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	if len(errs) > 0 {
		logger.Error(ctx, "Some workers failed to stop", zap.Int("failed", len(errs)), zap.Int("total", len(workers)))
	} else if len(workers) > 0 {
		logger.Info(ctx, "All workers stopped", zap.Int("total", len(workers)))
	}
	return errors.Join(errs...)
}
