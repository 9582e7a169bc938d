package immediate

import (
	"sync"

	"github.com/Arceliar/phony"
	eventloop "github.com/joeycumines/go-eventloop"
	"github.com/joeycumines/logiface"
)

// Host delivers the scheduler's wake notifications.
//
// Post must arrange for fn to be called exactly once, asynchronously, on the
// host's next turn. It must never call fn before returning. The Scheduler
// posts at most one notification per dirty period, so a Host need not
// deduplicate.
type Host interface {
	Post(fn func()) error
}

// HostFunc adapts a plain function to [Host].
type HostFunc func(fn func()) error

// Post implements Host.
func (f HostFunc) Post(fn func()) error {
	return f(fn)
}

// LoopHost posts wake notifications to an event loop, via [eventloop.Loop.Submit].
//
// Drains run on the loop goroutine, after the currently executing task (and
// any microtasks it queued) unwinds, and before timers that are not yet due.
type LoopHost struct {
	loop *eventloop.Loop
}

// NewLoopHost creates a [LoopHost] bound to loop.
func NewLoopHost(loop *eventloop.Loop) *LoopHost {
	if loop == nil {
		panic(`immediate: nil loop`)
	}
	return &LoopHost{loop: loop}
}

// Loop returns the underlying event loop.
func (h *LoopHost) Loop() *eventloop.Loop {
	return h.loop
}

// Post implements Host.
func (h *LoopHost) Post(fn func()) error {
	return h.loop.Submit(fn)
}

// GoroutineHost runs posted functions in FIFO order, one at a time, on a
// worker goroutine that exists only while there is queued work. It is
// intended for programs that have no event loop of their own. Instances must
// be initialized using [NewGoroutineHost], and should be closed when no longer
// needed.
type GoroutineHost struct { //nolint:govet // betteralign:ignore
	inbox  phony.Inbox
	logger *logiface.Logger[logiface.Event]
	done   chan struct{}
	mu     sync.Mutex
	once   sync.Once
	closed bool
}

// NewGoroutineHost creates a [GoroutineHost].
func NewGoroutineHost(opts ...HostOption) *GoroutineHost {
	options := resolveHostOptions(opts)
	return &GoroutineHost{
		logger: options.logger,
		done:   make(chan struct{}),
	}
}

// Post implements Host. It returns [ErrHostClosed] after Close.
func (h *GoroutineHost) Post(fn func()) error {
	if fn == nil {
		return &ArgumentError{Arg: `fn`, Message: `nil function`}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHostClosed
	}
	h.inbox.Act(nil, func() {
		h.safeExecute(fn)
	})

	return nil
}

// Close stops accepting posts, then waits for everything already posted to
// run. It is idempotent, and must not be called from a function running on
// the host.
func (h *GoroutineHost) Close() error {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		h.mu.Unlock()
		phony.Block(&h.inbox, func() {})
		close(h.done)
	})
	<-h.done
	return nil
}

// Done is closed once Close has drained every posted function.
func (h *GoroutineHost) Done() <-chan struct{} {
	return h.done
}

func (h *GoroutineHost) safeExecute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			guard(func() { logPanic(h.logger, r) })
		}
	}()
	fn()
}
