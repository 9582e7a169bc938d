// logging.go - structured logging for the immediate scheduler
//
// Schedulers log through logiface. The package-level default (used when
// WithLogger is not given) writes JSON to stderr via stumpy, with caller
// category rate limits so a persistently failing task cannot flood the sink.
//
// Usage:
//   // Route every scheduler created afterwards to a custom logger
//   immediate.SetDefaultLogger(myLogger)

package immediate

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// failureRateLimits bounds failure reports per call site.
var failureRateLimits = map[time.Duration]int{
	time.Second: 10,
	time.Minute: 100,
}

var (
	// Global default logger, see SetDefaultLogger
	defaultLogger struct {
		sync.RWMutex
		logger *logiface.Logger[logiface.Event]
		set    bool
	}
)

// SetDefaultLogger replaces the logger used by schedulers created without
// [WithLogger]. A nil logger disables logging for those schedulers.
func SetDefaultLogger(logger *logiface.Logger[logiface.Event]) {
	defaultLogger.Lock()
	defer defaultLogger.Unlock()
	defaultLogger.logger = logger
	defaultLogger.set = true
}

// DefaultLogger returns the logger used by schedulers created without
// [WithLogger]: the one given to [SetDefaultLogger], or else a stumpy JSON
// logger writing to os.Stderr.
func DefaultLogger() *logiface.Logger[logiface.Event] {
	defaultLogger.RLock()
	if defaultLogger.set {
		defer defaultLogger.RUnlock()
		return defaultLogger.logger
	}
	defaultLogger.RUnlock()

	defaultLogger.Lock()
	defer defaultLogger.Unlock()
	if !defaultLogger.set {
		defaultLogger.logger = NewLogger(os.Stderr)
		defaultLogger.set = true
	}
	return defaultLogger.logger
}

// NewLogger builds the standard scheduler logger, writing JSON lines to w.
// Any options are passed through to stumpy.
func NewLogger(w io.Writer, options ...stumpy.Option) *logiface.Logger[logiface.Event] {
	return stumpy.L.New(
		stumpy.L.WithStumpy(append([]stumpy.Option{stumpy.WithWriter(w)}, options...)...),
		stumpy.L.WithCategoryRateLimits(failureRateLimits),
	).Logger()
}

// guard runs fn, discarding any panic, e.g. from a failing log sink.
func guard(fn func()) {
	defer func() { _ = recover() }()
	fn()
}

// logTaskFailure writes a single failure report.
func logTaskFailure(logger *logiface.Logger[logiface.Event], err *TaskError) {
	if logger == nil {
		return
	}
	logger.Err().
		Limit().
		Uint64(`id`, uint64(err.ID)).
		Err(err.Err).
		Log(`immediate: task failed`)
}

// logDrain traces a drain cycle.
func logDrain(logger *logiface.Logger[logiface.Event], cycle uint64, tasks int) {
	if logger == nil {
		return
	}
	logger.Debug().
		Uint64(`cycle`, cycle).
		Int(`tasks`, tasks).
		Log(`immediate: drain`)
}

// logPanic reports a panic recovered outside of any task, e.g. from a
// function posted directly to a GoroutineHost.
func logPanic(logger *logiface.Logger[logiface.Event], value any) {
	if logger == nil {
		return
	}
	logger.Err().
		Limit().
		Err(&PanicError{Value: value}).
		Log(`immediate: recovered panic`)
}
