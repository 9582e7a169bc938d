package immediate

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_NilHost(t *testing.T) {
	sched, err := New(nil)
	assert.Nil(t, sched)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestNew_NilOptionSkipped(t *testing.T) {
	sched, err := New(new(manualHost), nil, WithLogger(nil))
	require.NoError(t, err)
	require.NotNil(t, sched)
}

func TestNew_NilErrorHandler(t *testing.T) {
	_, err := New(new(manualHost), WithErrorHandler(nil))
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestScheduler_FIFO(t *testing.T) {
	sched, host := newTestScheduler(t)
	var rec recorder

	for _, name := range []string{`A`, `B`, `C`} {
		_, err := sched.Schedule(rec.fn(name))
		require.NoError(t, err)
	}

	assert.Empty(t, rec.get(), `callbacks must not run synchronously`)
	assert.Equal(t, 1, host.Turn())
	assert.Equal(t, []string{`A`, `B`, `C`}, rec.get())
}

func TestScheduler_PassesArguments(t *testing.T) {
	sched, host := newTestScheduler(t)

	args := []any{1, `two`, 3.0}
	var got []any
	_, err := sched.Schedule(func(a ...any) error {
		got = a
		return nil
	}, args...)
	require.NoError(t, err)

	// fixed at schedule time
	args[0] = `mutated`

	host.Turn()
	assert.Equal(t, []any{1, `two`, 3.0}, got)
}

func TestScheduler_Coalescing(t *testing.T) {
	sched, host := newTestScheduler(t)
	var rec recorder

	for i := range 5 {
		_, err := sched.Schedule(rec.fn(fmt.Sprint(i)))
		require.NoError(t, err)
	}

	assert.Equal(t, 1, host.Len(), `expected a single wake`)
	assert.Equal(t, 5, sched.Pending())

	assert.Equal(t, 1, host.Turn())
	assert.Equal(t, []string{`0`, `1`, `2`, `3`, `4`}, rec.get())
	assert.Equal(t, 0, host.Len())

	stats := sched.Stats()
	assert.Equal(t, uint64(1), stats.Wakes)
	assert.Equal(t, uint64(1), stats.Drains)
	assert.Equal(t, uint64(5), stats.Scheduled)
	assert.Equal(t, uint64(5), stats.Executed)
}

func TestScheduler_WakeAfterDrain(t *testing.T) {
	sched, host := newTestScheduler(t)
	var rec recorder

	_, err := sched.Schedule(rec.fn(`A`))
	require.NoError(t, err)
	host.Turn()

	_, err = sched.Schedule(rec.fn(`B`))
	require.NoError(t, err)
	assert.Equal(t, 1, host.Len(), `a new dirty period must request a new wake`)
	host.Turn()

	assert.Equal(t, []string{`A`, `B`}, rec.get())
	assert.Equal(t, uint64(2), sched.Stats().Wakes)
}

func TestScheduler_CancelBeforeDrain(t *testing.T) {
	sched, host := newTestScheduler(t)
	var rec recorder

	a, err := sched.Schedule(rec.fn(`A`))
	require.NoError(t, err)
	_, err = sched.Schedule(rec.fn(`B`))
	require.NoError(t, err)

	sched.Cancel(a)
	assert.Equal(t, TaskStateUnknown, sched.State(a))
	assert.Equal(t, 1, sched.Pending())

	host.Turn()
	assert.Equal(t, []string{`B`}, rec.get())

	stats := sched.Stats()
	assert.Equal(t, uint64(1), stats.Canceled)
	assert.Equal(t, uint64(1), stats.Executed)
}

func TestScheduler_CancelDuringDrain(t *testing.T) {
	sched, host := newTestScheduler(t)
	var rec recorder

	var b TaskID
	_, err := sched.Schedule(func(...any) error {
		rec.fn(`A`)()
		assert.Equal(t, TaskStateScheduled, sched.State(b))
		sched.Cancel(b)
		return nil
	})
	require.NoError(t, err)
	b, err = sched.Schedule(rec.fn(`B`))
	require.NoError(t, err)
	_, err = sched.Schedule(rec.fn(`C`))
	require.NoError(t, err)

	host.Turn()
	assert.Equal(t, []string{`A`, `C`}, rec.get())
	assert.Equal(t, uint64(1), sched.Stats().Canceled)
}

func TestScheduler_NextCycleDeferral(t *testing.T) {
	sched, host := newTestScheduler(t)
	var rec recorder

	_, err := sched.Schedule(func(...any) error {
		rec.fn(`A`)()
		_, err := sched.Schedule(rec.fn(`D`))
		return err
	})
	require.NoError(t, err)
	_, err = sched.Schedule(rec.fn(`B`))
	require.NoError(t, err)

	assert.Equal(t, 1, host.Turn())
	assert.Equal(t, []string{`A`, `B`}, rec.get(), `D must not run in the cycle that scheduled it`)
	assert.Equal(t, 1, host.Len())
	assert.Equal(t, 1, sched.Pending())

	assert.Equal(t, 1, host.Turn())
	assert.Equal(t, []string{`A`, `B`, `D`}, rec.get())
	assert.Equal(t, uint64(2), sched.Stats().Drains)
}

func TestScheduler_FailureIsolation(t *testing.T) {
	var reported []*TaskError
	sched, host := newTestScheduler(t, WithErrorHandler(func(err *TaskError) {
		reported = append(reported, err)
	}))
	var rec recorder

	boom := errors.New(`boom`)
	_, err := sched.Schedule(rec.fn(`A`))
	require.NoError(t, err)
	b, err := sched.Schedule(func(...any) error {
		rec.fn(`B`)()
		return boom
	})
	require.NoError(t, err)
	_, err = sched.Schedule(rec.fn(`C`))
	require.NoError(t, err)

	host.Turn()

	assert.Equal(t, []string{`A`, `B`, `C`}, rec.get())
	require.Len(t, reported, 1)
	assert.Equal(t, b, reported[0].ID)
	assert.ErrorIs(t, reported[0], boom)
	assert.Equal(t, uint64(1), sched.Stats().Failed)
}

func TestScheduler_PanicIsolation(t *testing.T) {
	var reported []*TaskError
	sched, host := newTestScheduler(t, WithErrorHandler(func(err *TaskError) {
		reported = append(reported, err)
	}))
	var rec recorder

	_, err := sched.Schedule(func(...any) error { panic(io.EOF) })
	require.NoError(t, err)
	_, err = sched.Schedule(func(...any) error { panic(`a string`) })
	require.NoError(t, err)
	_, err = sched.Schedule(rec.fn(`C`))
	require.NoError(t, err)

	host.Turn()

	assert.Equal(t, []string{`C`}, rec.get())
	require.Len(t, reported, 2)

	var panicErr *PanicError
	require.ErrorAs(t, reported[0], &panicErr)
	assert.ErrorIs(t, reported[0], io.EOF)

	require.ErrorAs(t, reported[1], &panicErr)
	assert.Equal(t, `a string`, panicErr.Value)
	assert.Nil(t, panicErr.Unwrap())
}

func TestScheduler_ReporterPanicSwallowed(t *testing.T) {
	calls := 0
	sched, host := newTestScheduler(t, WithErrorHandler(func(err *TaskError) {
		calls++
		panic(`reporter exploded`)
	}))
	var rec recorder

	_, err := sched.Schedule(func(...any) error { return errors.New(`first`) })
	require.NoError(t, err)
	_, err = sched.Schedule(func(...any) error { return errors.New(`second`) })
	require.NoError(t, err)
	_, err = sched.Schedule(rec.fn(`C`))
	require.NoError(t, err)

	assert.NotPanics(t, func() { host.Turn() })
	assert.Equal(t, 2, calls)
	assert.Equal(t, []string{`C`}, rec.get())
}

func TestScheduler_CancelUnknown(t *testing.T) {
	sched, host := newTestScheduler(t)
	var rec recorder

	assert.NotPanics(t, func() {
		sched.Cancel(0)
		sched.Cancel(12345)
	})

	id, err := sched.Schedule(rec.fn(`A`))
	require.NoError(t, err)
	host.Turn()

	// already consumed
	sched.Cancel(id)
	assert.Equal(t, []string{`A`}, rec.get())
	assert.Equal(t, uint64(0), sched.Stats().Canceled)
	assert.Equal(t, 0, host.Len())
}

func TestScheduler_CancelIdempotent(t *testing.T) {
	sched, host := newTestScheduler(t)
	var rec recorder

	a, err := sched.Schedule(rec.fn(`A`))
	require.NoError(t, err)
	_, err = sched.Schedule(rec.fn(`B`))
	require.NoError(t, err)

	sched.Cancel(a)
	sched.Cancel(a)

	host.Turn()
	assert.Equal(t, []string{`B`}, rec.get())
	assert.Equal(t, uint64(1), sched.Stats().Canceled)
}

func TestScheduler_IDsNeverReused(t *testing.T) {
	sched, host := newTestScheduler(t)
	var rec recorder

	seen := make(map[TaskID]bool)
	var last TaskID
	for i := range 10 {
		id, err := sched.Schedule(rec.fn(fmt.Sprint(i)))
		require.NoError(t, err)
		assert.Greater(t, id, last)
		assert.False(t, seen[id])
		seen[id] = true
		last = id
		if i%2 == 0 {
			sched.Cancel(id)
		}
		if i%3 == 0 {
			host.Turn()
		}
	}
	assert.True(t, seen[1], `the first ID issued is 1`)
}

func TestScheduler_InvalidArgument(t *testing.T) {
	sched, host := newTestScheduler(t)

	id, err := sched.Schedule(nil)
	assert.Zero(t, id)
	require.ErrorIs(t, err, ErrInvalidArgument)

	var argErr *ArgumentError
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, `fn`, argErr.Arg)

	assert.Equal(t, 0, host.Len(), `a rejected call must not request a wake`)
	assert.Equal(t, uint64(0), sched.Stats().Scheduled)
}

func TestScheduler_ScheduleValue(t *testing.T) {
	sched, host := newTestScheduler(t)

	var got [][]any
	record := func(args ...any) {
		got = append(got, args)
	}

	_, err := sched.ScheduleValue(record, []int{1, 2})
	require.NoError(t, err)
	_, err = sched.ScheduleValue(func(args ...any) error {
		record(args...)
		return nil
	}, [1]string{`x`})
	require.NoError(t, err)
	_, err = sched.ScheduleValue(func() { record(`no args`) }, nil)
	require.NoError(t, err)
	_, err = sched.ScheduleValue(Func(func(args ...any) error {
		record(args...)
		return nil
	}), []any{true})
	require.NoError(t, err)

	host.Turn()
	assert.Equal(t, [][]any{{1, 2}, {`x`}, {`no args`}, {true}}, got)

	for _, tc := range []struct {
		fn   any
		args any
		arg  string
	}{
		{nil, nil, `fn`},
		{`not a function`, nil, `fn`},
		{(func())(nil), nil, `fn`},
		{func(int) {}, nil, `fn`},
		{func() {}, 42, `args`},
		{func() {}, map[string]any{}, `args`},
	} {
		_, err := sched.ScheduleValue(tc.fn, tc.args)
		require.ErrorIs(t, err, ErrInvalidArgument, `fn=%T args=%T`, tc.fn, tc.args)
		var argErr *ArgumentError
		require.ErrorAs(t, err, &argErr)
		assert.Equal(t, tc.arg, argErr.Arg)
	}
}

func TestScheduler_PostFailure(t *testing.T) {
	sched, host := newTestScheduler(t)
	var rec recorder

	hostErr := errors.New(`host unavailable`)
	host.err = hostErr

	id, err := sched.Schedule(rec.fn(`A`))
	assert.Zero(t, id)
	require.ErrorIs(t, err, hostErr)
	assert.Equal(t, 0, sched.Pending())

	host.err = nil
	b, err := sched.Schedule(rec.fn(`B`))
	require.NoError(t, err)
	assert.Equal(t, TaskID(2), b, `the failed ID is not reissued`)
	assert.Equal(t, 1, host.Len(), `the pending flag must be reset after a failed post`)

	host.Turn()
	assert.Equal(t, []string{`B`}, rec.get())
}

func TestScheduler_Close(t *testing.T) {
	sched, host := newTestScheduler(t)
	var rec recorder

	_, err := sched.Schedule(rec.fn(`A`))
	require.NoError(t, err)
	_, err = sched.Schedule(rec.fn(`B`))
	require.NoError(t, err)

	require.NoError(t, sched.Close())
	require.NoError(t, sched.Close())

	_, err = sched.Schedule(rec.fn(`C`))
	require.ErrorIs(t, err, ErrClosed)

	// the wake posted before Close still arrives, and finds nothing
	assert.Equal(t, 1, host.Turn())
	assert.Empty(t, rec.get())
	assert.Equal(t, uint64(2), sched.Stats().Canceled)
	assert.Equal(t, 0, sched.Pending())
}

func TestScheduler_CloseDuringDrain(t *testing.T) {
	sched, host := newTestScheduler(t)
	var rec recorder

	_, err := sched.Schedule(func(...any) error {
		rec.fn(`A`)()
		return sched.Close()
	})
	require.NoError(t, err)
	_, err = sched.Schedule(rec.fn(`B`))
	require.NoError(t, err)

	host.Turn()
	assert.Equal(t, []string{`A`}, rec.get())
}

func TestScheduler_State(t *testing.T) {
	sched, host := newTestScheduler(t)

	id, err := sched.Schedule(func(...any) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, TaskStateScheduled, sched.State(id))

	host.Turn()
	assert.Equal(t, TaskStateUnknown, sched.State(id))
	assert.Equal(t, TaskStateUnknown, sched.State(id+100))
}

func TestTaskState_String(t *testing.T) {
	for state, want := range map[TaskState]string{
		TaskStateUnknown:   `Unknown`,
		TaskStateScheduled: `Scheduled`,
		TaskStateCanceled:  `Canceled`,
		TaskStateExecuted:  `Executed`,
		TaskState(99):      `Unknown`,
	} {
		assert.Equal(t, want, state.String())
	}
}

func TestTaskState_Transitions(t *testing.T) {
	var s taskState
	s.v.Store(uint32(TaskStateScheduled))

	require.True(t, s.tryTransition(TaskStateScheduled, TaskStateCanceled))
	assert.False(t, s.tryTransition(TaskStateScheduled, TaskStateExecuted), `canceled is terminal`)
	assert.False(t, s.tryTransition(TaskStateScheduled, TaskStateCanceled), `cancel is not repeatable`)
	assert.Equal(t, TaskStateCanceled, s.load())
}
