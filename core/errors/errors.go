package errors

import (
	"errors"
	"fmt"
)

// Common application-wide errors.
var (
	ErrNotFound      = errors.New("resource not found")
	ErrInvalidInput  = errors.New("invalid input provided")
	ErrAlreadyExists = errors.New("resource already exists")
)

// Worker errors.
var (
	// ErrConstruction is returned by worker.New when no worker could be built.
	ErrConstruction = errors.New("worker construction failed")
	// ErrInvalidTask is returned when a nil task is submitted.
	ErrInvalidTask = errors.New("invalid task")
	// ErrStopped is returned when a task is submitted after Stop was invoked.
	ErrStopped = errors.New("worker stopped")
	// ErrTaskExited is reported when a task calls runtime.Goexit and takes
	// the worker goroutine down with it.
	ErrTaskExited = errors.New("task exited the worker goroutine")
)

// Wrap adds context to an existing error. A nil err stays nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return errors.Join(errors.New(message), err)
}

// Join returns an error wrapping errs, or nil if all are nil.
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// TaskPanicError describes a panic recovered from a task body.
type TaskPanicError struct {
	Worker string
	Seq    uint64
	Value  any
	Stack  []byte
}

func (e *TaskPanicError) Error() string {
	return fmt.Sprintf("task %d on worker %q panicked: %v", e.Seq, e.Worker, e.Value)
}

// Unwrap exposes the panic value when it is itself an error.
func (e *TaskPanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
