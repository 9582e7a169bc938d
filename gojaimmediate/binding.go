// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package gojaimmediate exposes an [immediate.Scheduler] to the goja
// JavaScript runtime, as setImmediate and clearImmediate.
//
// # Available JavaScript Functions
//
//   - setImmediate(callback, args?) → number : Queue callback for the next
//     turn, calling it with the elements of the args array
//   - clearImmediate(id) → null : Cancel a pending callback, ignoring unknown
//     or already consumed IDs
//
// # Thread Safety
//
// A goja.Runtime is not safe for concurrent use. Callbacks execute on the
// goroutine that runs the scheduler's drains, so that must be the goroutine
// which owns the runtime, e.g. by using an [immediate.LoopHost] and only
// touching the runtime from within loop tasks.
//
// # Usage
//
//	loop, _ := eventloop.New()
//	sched, _ := immediate.New(immediate.NewLoopHost(loop))
//	rt := goja.New()
//
//	binding, _ := gojaimmediate.New(rt, sched)
//	_ = binding.Bind()
//
//	loop.Submit(func() {
//	    rt.RunString(`setImmediate((a, b) => console.log(a + b), [1, 2])`)
//	})
package gojaimmediate

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/NullPointerInclusion/broadutils/immediate"
	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
)

// maxSafeInteger is `2^53 - 1`, the maximum safe integer in JavaScript
const maxSafeInteger = 9007199254740991

// Binding bridges a goja runtime to an [immediate.Scheduler].
type Binding struct {
	runtime   *goja.Runtime
	scheduler *immediate.Scheduler
}

// New creates a new Binding for the given runtime and scheduler.
func New(runtime *goja.Runtime, scheduler *immediate.Scheduler) (*Binding, error) {
	if runtime == nil {
		return nil, fmt.Errorf("runtime cannot be nil")
	}
	if scheduler == nil {
		return nil, fmt.Errorf("scheduler cannot be nil")
	}
	return &Binding{
		runtime:   runtime,
		scheduler: scheduler,
	}, nil
}

// Runtime returns the goja runtime.
func (b *Binding) Runtime() *goja.Runtime {
	return b.runtime
}

// Scheduler returns the scheduler.
func (b *Binding) Scheduler() *immediate.Scheduler {
	return b.scheduler
}

// Bind sets the setImmediate and clearImmediate globals.
func (b *Binding) Bind() error {
	if err := b.runtime.Set("setImmediate", b.setImmediate); err != nil {
		return err
	}
	return b.runtime.Set("clearImmediate", b.clearImmediate)
}

// Require returns a [require.ModuleLoader] exporting setImmediate and
// clearImmediate, backed by scheduler:
//
//	registry := require.NewRegistry()
//	registry.RegisterNativeModule("immediate", gojaimmediate.Require(sched))
//	registry.Enable(runtime)
//
// After which:
//
//	const { setImmediate, clearImmediate } = require('immediate');
func Require(scheduler *immediate.Scheduler) require.ModuleLoader {
	return func(runtime *goja.Runtime, module *goja.Object) {
		b, err := New(runtime, scheduler)
		if err != nil {
			panic(runtime.NewGoError(err))
		}
		exports := module.Get("exports").(*goja.Object)
		if err := exports.Set("setImmediate", b.setImmediate); err != nil {
			panic(runtime.NewGoError(err))
		}
		if err := exports.Set("clearImmediate", b.clearImmediate); err != nil {
			panic(runtime.NewGoError(err))
		}
	}
}

// setImmediate binding for goja
func (b *Binding) setImmediate(call goja.FunctionCall) goja.Value {
	fnCallable, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(b.runtime.NewTypeError("setImmediate requires a function as first argument"))
	}

	args, ok := b.arrayArgs(call.Argument(1))
	if !ok {
		panic(b.runtime.NewTypeError("setImmediate arguments must be an array"))
	}

	id, err := b.scheduler.Schedule(func(args ...any) error {
		values := make([]goja.Value, len(args))
		for i, arg := range args {
			values[i] = arg.(goja.Value)
		}
		_, err := fnCallable(goja.Undefined(), values...)
		return err
	}, args...)
	if err != nil {
		if errors.Is(err, immediate.ErrInvalidArgument) {
			panic(b.runtime.NewTypeError(err.Error()))
		}
		panic(b.runtime.NewGoError(err))
	}

	// Safety check for JS integer limits
	if uint64(id) > maxSafeInteger {
		b.scheduler.Cancel(id)
		panic("gojaimmediate: immediate ID exceeded MAX_SAFE_INTEGER")
	}

	return b.runtime.ToValue(uint64(id))
}

// clearImmediate binding for goja
func (b *Binding) clearImmediate(call goja.FunctionCall) goja.Value {
	if id := call.Argument(0).ToInteger(); id > 0 {
		b.scheduler.Cancel(immediate.TaskID(id))
	}
	return goja.Null()
}

// arrayArgs unpacks the optional args parameter. Undefined and null mean no
// arguments; anything other than an array is rejected.
func (b *Binding) arrayArgs(v goja.Value) ([]any, bool) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, true
	}
	obj, ok := v.(*goja.Object)
	if !ok || obj.ClassName() != "Array" {
		return nil, false
	}
	n := obj.Get("length").ToInteger()
	args := make([]any, n)
	for i := range args {
		v := obj.Get(strconv.Itoa(i))
		if v == nil {
			// hole in a sparse array
			v = goja.Undefined()
		}
		args[i] = v
	}
	return args, true
}
