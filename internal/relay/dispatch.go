package relay

import "sync"

// dispatcher runs fire-and-forget tasks with per-user FIFO ordering. Each
// user with pending work has exactly one goroutine draining that user's
// queue, so two messages from the same user can never produce reordered
// replies; tasks for different users run concurrently. There is no
// cancellation — a dispatched task runs to completion or fails into the log.
type dispatcher struct {
	mu     sync.Mutex
	queues map[string][]func()
	wg     sync.WaitGroup
}

func newDispatcher() *dispatcher {
	return &dispatcher{queues: make(map[string][]func())}
}

// dispatch enqueues fn for user, starting a drain goroutine if none is
// running for that user.
func (d *dispatcher) dispatch(user string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	pending, running := d.queues[user]
	d.queues[user] = append(pending, fn)
	if !running {
		d.wg.Add(1)
		go d.drain(user)
	}
}

// drain runs the user's queued tasks in order until the queue empties.
// The map entry existing (even empty) marks the worker as running.
func (d *dispatcher) drain(user string) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		q := d.queues[user]
		if len(q) == 0 {
			delete(d.queues, user)
			d.mu.Unlock()
			return
		}
		fn := q[0]
		d.queues[user] = q[1:]
		d.mu.Unlock()

		fn()
	}
}

// wait blocks until every queued task has finished. Used for graceful
// shutdown and by tests.
func (d *dispatcher) wait() {
	d.wg.Wait()
}
