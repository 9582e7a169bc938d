// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package immediate implements an out-of-band "next turn" task scheduler,
// with setImmediate / clearImmediate semantics.
//
// # Architecture
//
// A [Scheduler] is made of three parts:
//   - a task registry, mapping strictly increasing [TaskID] values to pending
//     task records, in insertion order
//   - a wake channel, which asks the [Host] for exactly one asynchronous
//     callback per "dirty" period, no matter how many tasks were scheduled
//   - a drain loop, run by that callback, which snapshots and clears the
//     registry before running each non-canceled task, in order
//
// The Host decides where "next turn" is. [LoopHost] posts to a
// [github.com/joeycumines/go-eventloop] Loop, so drains run on the loop
// goroutine after the current task (and its microtasks) unwind, ahead of timers
// that are not yet due. [GoroutineHost] is for programs without an event loop,
// and runs drains one at a time on a phony actor's worker goroutine, which
// exists only while work is queued. [HostFunc] adapts anything else,
// including fakes in tests.
//
// # Ordering
//
//  1. Tasks run in the order they were scheduled.
//  2. Tasks scheduled from within a drain run in a later drain, never the
//     current one.
//  3. A task canceled before it runs never runs, including when it is canceled
//     by an earlier task in the same drain.
//
// # Failures
//
// [Scheduler.Schedule] fails synchronously with an error matching
// [ErrInvalidArgument] if the callback is nil. Errors returned by (or panics
// raised within) a callback are wrapped as a [TaskError], logged via logiface,
// passed to any [WithErrorHandler] hook, and never stop the remaining tasks in
// the drain.
//
// # Usage
//
//	loop, err := eventloop.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer loop.Close()
//
//	sched, err := immediate.New(immediate.NewLoopHost(loop))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sched.Close()
//
//	id, _ := sched.Schedule(func(args ...any) error {
//	    fmt.Println("hello", args[0])
//	    return nil
//	}, "world")
//	sched.Cancel(id) // changed our mind
package immediate
