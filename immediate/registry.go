package immediate

import (
	"github.com/eapache/queue"
)

// task is a single scheduled callback, owned by the registry from Schedule
// until it is executed or canceled.
type task struct {
	fn    Func
	args  []any
	state taskState
	id    TaskID
}

// registry maps task IDs to pending tasks, preserving insertion order.
//
// All methods must be called with Scheduler.mu held.
type registry struct {
	// order holds *task in insertion order, including tasks canceled since
	// the last snapshot (they are skipped at drain time)
	order *queue.Queue

	// pending indexes every task that is still TaskStateScheduled and has not
	// yet been snapshotted
	pending map[TaskID]*task

	// draining indexes tasks that have been snapshotted but not yet visited,
	// so Cancel still reaches them after the registry was cleared
	draining map[TaskID]*task
}

func newRegistry() *registry {
	return &registry{
		order:    queue.New(),
		pending:  make(map[TaskID]*task),
		draining: make(map[TaskID]*task),
	}
}

func (r *registry) add(t *task) {
	r.order.Add(t)
	r.pending[t.id] = t
}

// lookup finds a task that has not yet been visited by a drain.
func (r *registry) lookup(id TaskID) *task {
	if t, ok := r.pending[id]; ok {
		return t
	}
	return r.draining[id]
}

// forget drops the task from both indexes, e.g. after it was canceled.
func (r *registry) forget(id TaskID) {
	delete(r.pending, id)
	delete(r.draining, id)
}

// snapshot moves every queued task, in order, out of the registry.
// The returned tasks remain reachable via lookup until visited.
func (r *registry) snapshot() []*task {
	n := r.order.Length()
	if n == 0 {
		return nil
	}
	tasks := make([]*task, 0, n)
	for r.order.Length() > 0 {
		t := r.order.Remove().(*task)
		if _, ok := r.pending[t.id]; !ok {
			// canceled before the drain started
			continue
		}
		delete(r.pending, t.id)
		r.draining[t.id] = t
		tasks = append(tasks, t)
	}
	return tasks
}

// visited marks a snapshotted task as consumed.
func (r *registry) visited(id TaskID) {
	delete(r.draining, id)
}

// clear drops everything, returning the tasks that were still live.
func (r *registry) clear() []*task {
	live := make([]*task, 0, len(r.pending)+len(r.draining))
	for _, t := range r.pending {
		live = append(live, t)
	}
	for _, t := range r.draining {
		live = append(live, t)
	}
	r.order = queue.New()
	r.pending = make(map[TaskID]*task)
	r.draining = make(map[TaskID]*task)
	return live
}

// len returns the number of tasks awaiting a drain.
func (r *registry) len() int {
	return len(r.pending)
}
