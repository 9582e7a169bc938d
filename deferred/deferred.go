// Package deferred provides Deferred, a value which may be settled exactly
// once, by either resolving or rejecting it, and waited on by any number of
// goroutines.
//
// It pairs naturally with the immediate package, e.g. to await the outcome of
// a scheduled callback:
//
//	d := deferred.New[int]()
//	_, _ = sched.Schedule(func(...any) error {
//		d.Resolve(42)
//		return nil
//	})
//	v, err := d.Wait(ctx)
package deferred

import (
	"context"
	"errors"
	"sync"
)

// ErrNilReason is the rejection reason used when Reject is called with a nil
// error.
var ErrNilReason = errors.New("deferred: rejected with nil reason")

// Deferred is a settle-once value. The zero value is not usable, use New.
type Deferred[T any] struct {
	value T
	err   error
	done  chan struct{}
	once  sync.Once
}

// New returns a new, unsettled, Deferred.
func New[T any]() *Deferred[T] {
	return &Deferred[T]{done: make(chan struct{})}
}

// Resolve settles the Deferred with value, returning false if it was already
// settled.
func (x *Deferred[T]) Resolve(value T) bool {
	return x.settle(value, nil)
}

// Reject settles the Deferred with err, returning false if it was already
// settled. A nil err is replaced with ErrNilReason.
func (x *Deferred[T]) Reject(err error) bool {
	if err == nil {
		err = ErrNilReason
	}
	var zero T
	return x.settle(zero, err)
}

func (x *Deferred[T]) settle(value T, err error) (ok bool) {
	x.once.Do(func() {
		x.value, x.err = value, err
		close(x.done)
		ok = true
	})
	return
}

// Done returns a channel which is closed once the Deferred is settled.
func (x *Deferred[T]) Done() <-chan struct{} {
	return x.done
}

// Wait blocks until the Deferred is settled, or ctx is done, in which case
// the context error is returned.
func (x *Deferred[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()

	case <-x.done:
		return x.value, x.err
	}
}

// Result returns the settled value and error, without blocking. The final
// return value is false if the Deferred is not yet settled.
func (x *Deferred[T]) Result() (T, error, bool) {
	select {
	case <-x.done:
		return x.value, x.err, true
	default:
		var zero T
		return zero, nil, false
	}
}
