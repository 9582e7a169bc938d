// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package immediate

import (
	"fmt"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/joeycumines/logiface"
)

type (
	// TaskID identifies a scheduled task. IDs start at 1, are strictly
	// increasing per Scheduler, and are never reused. The zero value is never
	// issued.
	TaskID uint64

	// Func is a task callback. It receives the arguments given to
	// [Scheduler.Schedule]. A non-nil error (or a panic) is reported as a
	// [TaskError], and does not affect other tasks.
	Func func(args ...any) error

	// Stats is a point-in-time snapshot of a Scheduler's counters.
	Stats struct {
		// Scheduled counts tasks accepted by Schedule.
		Scheduled uint64
		// Executed counts callbacks invoked, including failed ones.
		Executed uint64
		// Canceled counts tasks that will never run.
		Canceled uint64
		// Failed counts callbacks that returned an error or panicked.
		Failed uint64
		// Wakes counts notifications posted to the Host.
		Wakes uint64
		// Drains counts completed and in-progress drain cycles.
		Drains uint64
	}

	// Scheduler queues callbacks to run on the next turn of its [Host],
	// coalescing wake requests, with support for cancellation.
	//
	// Schedule, Cancel, and the other methods are safe to call from any
	// goroutine, including from within a running callback. Callbacks always
	// run on the goroutine the Host uses for its posted functions.
	//
	// Instances must be initialized using [New].
	Scheduler struct {
		// Prevent copying
		_ [0]func()

		host    Host
		logger  *logiface.Logger[logiface.Event]
		onError func(err *TaskError)

		// guarded by mu
		reg         *registry
		nextID      TaskID
		wakePending bool
		closed      bool

		scheduled atomic.Uint64
		executed  atomic.Uint64
		canceled  atomic.Uint64
		failed    atomic.Uint64
		wakes     atomic.Uint64
		drains    atomic.Uint64

		mu sync.Mutex
	}
)

// New creates a [Scheduler] that requests wakes from host.
//
// Example:
//
//	host := immediate.NewGoroutineHost()
//	defer host.Close()
//
//	sched, err := immediate.New(host,
//	    immediate.WithErrorHandler(func(err *immediate.TaskError) {
//	        metrics.TaskFailures.Inc()
//	    }),
//	)
//	if err != nil {
//	    return err
//	}
func New(host Host, opts ...Option) (*Scheduler, error) {
	if host == nil {
		return nil, &ArgumentError{Arg: `host`, Message: `nil host`}
	}

	options, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	return &Scheduler{
		host:    host,
		logger:  options.logger,
		onError: options.onError,
		reg:     newRegistry(),
	}, nil
}

// Schedule queues fn to be called with args on the next turn of the Host,
// and returns an ID that may be passed to [Scheduler.Cancel].
//
// It never blocks, and never calls fn synchronously. The args slice is copied.
//
// Returns:
//   - an error matching [ErrInvalidArgument] if fn is nil
//   - [ErrClosed] if the Scheduler has been closed
//   - the Host's error, wrapped, if a wake could not be requested (the task
//     is discarded)
func (x *Scheduler) Schedule(fn Func, args ...any) (TaskID, error) {
	if fn == nil {
		return 0, &ArgumentError{Arg: `fn`, Message: `callback must be a non-nil function`}
	}

	t := &task{
		fn:   fn,
		args: slices.Clone(args),
	}
	t.state.v.Store(uint32(TaskStateScheduled))

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return 0, ErrClosed
	}

	x.nextID++
	t.id = x.nextID
	x.reg.add(t)
	x.scheduled.Add(1)

	// Hosts never run fn within Post, so posting under the lock can't
	// deadlock, and a failed post can't strand a concurrently added task.
	if !x.wakePending {
		x.wakePending = true
		x.wakes.Add(1)
		if err := x.host.Post(x.drain); err != nil {
			x.wakePending = false
			x.reg.forget(t.id)
			t.state.tryTransition(TaskStateScheduled, TaskStateCanceled)
			x.canceled.Add(1)
			return 0, fmt.Errorf("immediate: failed to request wake: %w", err)
		}
	}

	return t.id, nil
}

// ScheduleValue is the dynamically typed form of [Scheduler.Schedule], for use
// by bindings to other runtimes.
//
// The fn parameter must be one of [Func], func(...any) error, func(...any),
// func() error, or func(). The args parameter must be nil, or a slice or
// array, the elements of which are passed to fn, in order. Anything else
// fails with an error matching [ErrInvalidArgument].
func (x *Scheduler) ScheduleValue(fn any, args any) (TaskID, error) {
	f, err := toFunc(fn)
	if err != nil {
		return 0, err
	}
	a, err := toArgs(args)
	if err != nil {
		return 0, err
	}
	return x.Schedule(f, a...)
}

// Cancel prevents the task from running, if it has not run yet. It never
// fails: unknown, already executed, and already canceled IDs are ignored.
//
// Cancel takes effect even if the task's drain has already started, e.g. if
// called by an earlier task in the same drain.
func (x *Scheduler) Cancel(id TaskID) {
	x.mu.Lock()
	defer x.mu.Unlock()

	t := x.reg.lookup(id)
	if t == nil {
		return
	}
	if t.state.tryTransition(TaskStateScheduled, TaskStateCanceled) {
		x.canceled.Add(1)
	}
	x.reg.forget(id)
}

// Pending returns the number of tasks waiting for a drain to start.
func (x *Scheduler) Pending() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.reg.len()
}

// State returns the state of a task that has not yet been consumed. Tasks
// that were never issued, have run, or were canceled and forgotten report
// [TaskStateUnknown].
func (x *Scheduler) State(id TaskID) TaskState {
	x.mu.Lock()
	defer x.mu.Unlock()
	if t := x.reg.lookup(id); t != nil {
		return t.state.load()
	}
	return TaskStateUnknown
}

// Stats returns a snapshot of the Scheduler's counters.
func (x *Scheduler) Stats() Stats {
	return Stats{
		Scheduled: x.scheduled.Load(),
		Executed:  x.executed.Load(),
		Canceled:  x.canceled.Load(),
		Failed:    x.failed.Load(),
		Wakes:     x.wakes.Load(),
		Drains:    x.drains.Load(),
	}
}

// Close cancels every task that has not yet run, and causes further calls to
// Schedule to fail with [ErrClosed]. It is idempotent. It does not close the
// Host, which the caller owns.
func (x *Scheduler) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return nil
	}
	x.closed = true

	for _, t := range x.reg.clear() {
		if t.state.tryTransition(TaskStateScheduled, TaskStateCanceled) {
			x.canceled.Add(1)
		}
	}

	return nil
}

// drain is the function posted to the Host, once per wake.
func (x *Scheduler) drain() {
	// Nothing escapes a drain, including failures of the failure reporting.
	defer func() {
		_ = recover()
	}()

	// The snapshot is taken, and the registry cleared, before any callback
	// runs: tasks scheduled from here on belong to the next cycle.
	x.mu.Lock()
	tasks := x.reg.snapshot()
	x.wakePending = false
	x.mu.Unlock()

	cycle := x.drains.Add(1)
	guard(func() { logDrain(x.logger, cycle, len(tasks)) })

	for _, t := range tasks {
		x.mu.Lock()
		x.reg.visited(t.id)
		run := t.state.tryTransition(TaskStateScheduled, TaskStateExecuted)
		x.mu.Unlock()

		if !run {
			continue
		}

		x.executed.Add(1)
		if err := execute(t); err != nil {
			x.failed.Add(1)
			x.report(&TaskError{ID: t.id, Err: err})
		}
	}
}

// execute calls the task's callback, converting a panic into a PanicError.
func execute(t *task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return t.fn(t.args...)
}

// report sends a failure to the logger, then to the error handler. Either
// may panic without affecting the other, or the drain.
func (x *Scheduler) report(err *TaskError) {
	guard(func() { logTaskFailure(x.logger, err) })
	if x.onError != nil {
		guard(func() { x.onError(err) })
	}
}

func toFunc(fn any) (Func, error) {
	switch f := fn.(type) {
	case Func:
		if f != nil {
			return f, nil
		}
	case func(...any) error:
		if f != nil {
			return f, nil
		}
	case func(...any):
		if f != nil {
			return func(args ...any) error {
				f(args...)
				return nil
			}, nil
		}
	case func() error:
		if f != nil {
			return func(...any) error { return f() }, nil
		}
	case func():
		if f != nil {
			return func(...any) error {
				f()
				return nil
			}, nil
		}
	}
	return nil, &ArgumentError{Arg: `fn`, Message: fmt.Sprintf(`callback must be a non-nil function, got %T`, fn)}
}

func toArgs(args any) ([]any, error) {
	switch a := args.(type) {
	case nil:
		return nil, nil
	case []any:
		return a, nil
	}
	v := reflect.ValueOf(args)
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, v.Len())
		for i := range out {
			out[i] = v.Index(i).Interface()
		}
		return out, nil
	default:
		return nil, &ArgumentError{Arg: `args`, Message: fmt.Sprintf(`arguments must be a slice or array, got %T`, args)}
	}
}
