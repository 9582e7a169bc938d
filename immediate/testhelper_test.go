package immediate

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// manualHost is a controllable Host: posted functions only run when the test
// says so.
type manualHost struct {
	err    error
	posted []func()
	mu     sync.Mutex
}

func (h *manualHost) Post(fn func()) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.posted = append(h.posted, fn)
	return nil
}

// Len returns the number of posted functions not yet run.
func (h *manualHost) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.posted)
}

// Turn runs everything posted before the call, and returns how many ran.
// Anything posted while running waits for the next Turn.
func (h *manualHost) Turn() int {
	h.mu.Lock()
	fns := h.posted
	h.posted = nil
	h.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

// newTestScheduler returns a Scheduler on a manualHost, with logging disabled.
func newTestScheduler(t *testing.T, opts ...Option) (*Scheduler, *manualHost) {
	t.Helper()
	host := new(manualHost)
	sched, err := New(host, append([]Option{WithLogger(nil)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sched.Close() })
	return sched, host
}

// recorder collects callback invocations, in order.
type recorder struct {
	calls []string
	mu    sync.Mutex
}

func (r *recorder) fn(name string) Func {
	return func(...any) error {
		r.mu.Lock()
		r.calls = append(r.calls, name)
		r.mu.Unlock()
		return nil
	}
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}
