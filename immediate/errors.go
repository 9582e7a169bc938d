// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package immediate

import (
	"errors"
	"fmt"
)

// Standard errors.
var (
	// ErrInvalidArgument is matched by errors returned when Schedule (or New)
	// is called with an argument it cannot use. Not retryable.
	ErrInvalidArgument = errors.New("immediate: invalid argument")

	// ErrClosed is returned by Schedule after the Scheduler has been closed.
	ErrClosed = errors.New("immediate: scheduler closed")

	// ErrHostClosed is returned by GoroutineHost.Post after Close.
	ErrHostClosed = errors.New("immediate: host closed")
)

// ArgumentError describes an invalid argument. It matches
// [ErrInvalidArgument] via [errors.Is].
type ArgumentError struct {
	// Arg is the name of the offending argument, e.g. "fn" or "args".
	Arg     string
	Message string
}

// Error implements the error interface.
func (e *ArgumentError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("immediate: invalid argument %q", e.Arg)
	}
	return fmt.Sprintf("immediate: invalid argument %q: %s", e.Arg, e.Message)
}

// Is reports true for [ErrInvalidArgument].
func (e *ArgumentError) Is(target error) bool {
	return target == ErrInvalidArgument
}

// TaskError wraps a failure raised by a task's callback during a drain.
// It is only ever reported out of band, never returned to a caller.
type TaskError struct {
	Err error
	ID  TaskID
}

// Error implements the error interface.
func (e *TaskError) Error() string {
	return fmt.Sprintf("immediate: task %d failed: %v", e.ID, e.Err)
}

// Unwrap returns the underlying failure for use with [errors.Is] and [errors.As].
func (e *TaskError) Unwrap() error {
	return e.Err
}

// PanicError wraps a value recovered from a panicking callback.
type PanicError struct {
	Value any
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("immediate: callback panicked: %v", e.Value)
}

// Unwrap returns the panic value if it is an error, otherwise nil.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
