// Command immediate-run executes a JavaScript file on an event loop, with
// setImmediate and clearImmediate available, exiting once no immediates
// remain pending.
//
// Usage:
//
//	immediate-run [-timeout 30s] [-log-level err] [-quiet] script.js
//
// The script may use the globals, or require('immediate'). Exits with status
// 1 if the script throws, any callback fails, or the timeout elapses.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/NullPointerInclusion/broadutils/gojaimmediate"
	"github.com/NullPointerInclusion/broadutils/immediate"
	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"
	eventloop "github.com/joeycumines/go-eventloop"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

const shutdownTimeout = 5 * time.Second

var (
	errTimeout        = errors.New("timed out")
	errCallbackFailed = errors.New("one or more callbacks failed")
)

func main() {
	os.Exit(realMain(os.Args[1:], os.Stdout, os.Stderr))
}

func realMain(args []string, stdout, stderr io.Writer) int {
	cfg, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if err := run(context.Background(), cfg, stdout, stderr); err != nil {
		_, _ = fmt.Fprintf(stderr, "immediate-run: %v\n", err)
		return 1
	}
	return 0
}

// printer routes console output, implementing console.Printer.
type printer struct {
	stdout io.Writer
	stderr io.Writer
}

func (p printer) Log(s string)   { _, _ = fmt.Fprintln(p.stdout, s) }
func (p printer) Warn(s string)  { _, _ = fmt.Fprintln(p.stderr, s) }
func (p printer) Error(s string) { _, _ = fmt.Fprintln(p.stderr, s) }

func newLogger(w io.Writer, level logiface.Level) *logiface.Logger[logiface.Event] {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(level),
		stumpy.L.WithCategoryRateLimits(map[time.Duration]int{
			time.Second: 10,
			time.Minute: 100,
		}),
	).Logger()
}

func run(ctx context.Context, cfg *config, stdout, stderr io.Writer) error {
	src, err := os.ReadFile(cfg.script)
	if err != nil {
		return err
	}

	logger := newLogger(stderr, cfg.logLevel)

	loop, err := eventloop.New()
	if err != nil {
		return err
	}

	var failures atomic.Uint64
	sched, err := immediate.New(
		immediate.NewLoopHost(loop),
		immediate.WithLogger(logger),
		immediate.WithErrorHandler(func(*immediate.TaskError) {
			failures.Add(1)
		}),
	)
	if err != nil {
		_ = loop.Close()
		return err
	}

	rt := goja.New()
	registry := require.NewRegistry()
	registry.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(printer{stdout: stdout, stderr: stderr}))
	registry.RegisterNativeModule("immediate", gojaimmediate.Require(sched))
	registry.Enable(rt)
	console.Enable(rt)

	binding, err := gojaimmediate.New(rt, sched)
	if err != nil {
		_ = loop.Close()
		return err
	}
	if err := binding.Bind(); err != nil {
		_ = loop.Close()
		return err
	}

	loopDone := make(chan error, 1)
	go func() {
		loopDone <- loop.Run(context.Background())
	}()

	// exactly one send, from the loop goroutine
	finished := make(chan error, 1)

	// idle re-queues itself behind everything scheduled in the same cycle,
	// so it only observes zero pending once the program has gone quiet
	var idle immediate.Func
	idle = func(...any) error {
		if sched.Pending() == 0 {
			finished <- nil
			return nil
		}
		if _, err := sched.Schedule(idle); err != nil {
			finished <- err
		}
		return nil
	}

	if err := loop.Submit(func() {
		if _, err := rt.RunScript(cfg.script, string(src)); err != nil {
			finished <- err
			return
		}
		if _, err := sched.Schedule(idle); err != nil {
			finished <- err
		}
	}); err != nil {
		_ = loop.Close()
		return err
	}

	var timeout <-chan time.Time
	if cfg.timeout > 0 {
		timer := time.NewTimer(cfg.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	var result error
	select {
	case result = <-finished:
	case <-timeout:
		result = errTimeout
		rt.Interrupt(errTimeout)
	case <-ctx.Done():
		result = ctx.Err()
		rt.Interrupt(result)
	case err := <-loopDone:
		loopDone <- err
		result = fmt.Errorf("event loop stopped: %w", err)
	}

	_ = sched.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := loop.Shutdown(shutdownCtx); err != nil {
		logger.Warning().
			Err(err).
			Log(`immediate-run: event loop shutdown failed`)
	}
	select {
	case <-loopDone:
	case <-shutdownCtx.Done():
	}

	stats := sched.Stats()
	if !cfg.quiet {
		logger.Info().
			Uint64(`scheduled`, stats.Scheduled).
			Uint64(`executed`, stats.Executed).
			Uint64(`canceled`, stats.Canceled).
			Uint64(`failed`, stats.Failed).
			Uint64(`drains`, stats.Drains).
			Log(`immediate-run: done`)
	}

	if result == nil && failures.Load() != 0 {
		result = fmt.Errorf("%w: %d", errCallbackFailed, failures.Load())
	}
	return result
}
