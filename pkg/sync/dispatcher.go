package sync

import "context"

// Dispatcher broadcasts tasks to a fixed set of queues.
type Dispatcher struct {
	queues []*Queue
}

// NewDispatcher returns a Dispatcher for `queues`.
func NewDispatcher(queues []*Queue) *Dispatcher {
	return &Dispatcher{queues: queues}
}

// Start starts the worker of every queue. It's safe to call more than once.
func (d *Dispatcher) Start(ctx context.Context) {
	for _, q := range d.queues {
		q.Start(ctx)
	}
}

// Dispatch enqueues `task` on every queue.
func (d *Dispatcher) Dispatch(task Task) {
	for _, q := range d.queues {
		q.Enqueue(task)
	}
}

// Queues returns the dispatcher's queues.
func (d *Dispatcher) Queues() []*Queue {
	return d.queues
}

// Idle returns whether every queue is idle.
func (d *Dispatcher) Idle() bool {
	for _, q := range d.queues {
		if !q.Idle() {
			return false
		}
	}
	return true
}
