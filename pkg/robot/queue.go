package robot

import (
	"sync"
	"time"

	"github.com/teslashibe/go-linefollower/pkg/steering"
)

// envelope is one queue slot. A sentinel envelope ends the worker.
type envelope struct {
	cmd      steering.Command
	queuedAt time.Time
	sentinel bool
}

// Queue is an unbounded FIFO with a blocking Pop.
// Push never blocks; once the sentinel is pushed further pushes fail.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []envelope
	closed bool
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends a command.
func (q *Queue) Push(cmd steering.Command) error {
	return q.push(envelope{cmd: cmd, queuedAt: time.Now()})
}

// PushSentinel appends the termination marker.
func (q *Queue) PushSentinel() error {
	return q.push(envelope{sentinel: true, queuedAt: time.Now()})
}

func (q *Queue) push(e envelope) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrDispatcherClosed
	}
	if e.sentinel {
		q.closed = true
	}
	q.items = append(q.items, e)
	q.cond.Signal()
	return nil
}

// Pop removes the oldest slot, waiting while the queue is empty.
func (q *Queue) Pop() envelope {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 {
		q.cond.Wait()
	}
	e := q.items[0]
	q.items[0] = envelope{}
	q.items = q.items[1:]
	return e
}

// Len returns the number of waiting slots, sentinel included.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Closed reports whether the sentinel has been pushed.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
