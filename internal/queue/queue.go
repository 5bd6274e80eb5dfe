// Package queue provides the FIFO job backlog shared by all workers.
//
// Semantics: fresh jobs and requeued jobs both append to the tail, so a
// backlog of retries never monopolizes the head ahead of fresh work, and
// retries are never starved either (the queue is never reordered). A popped
// job is invisible to other workers until it is requeued; Done retires it.
package queue

import (
	"context"
	"sync"

	"github.com/floodgate-io/floodgate/internal/job"
)

// Queue is an ordered backlog of pending jobs with drain detection.
//
// A run's outstanding count is pending + in-flight. It increases only via
// Push (seeding), stays flat across Requeue, and decreases via Done. When it
// reaches zero the Drained channel closes and every blocked Pop returns
// ok=false, which is the workers' natural stop signal.
type Queue struct {
	mu       sync.Mutex
	pending  []*job.Job
	inFlight int

	notify  chan struct{} // signalled (cap 1) on every push/requeue
	drained chan struct{} // closed once pending==0 && inFlight==0
	sealed  bool          // drained already closed; further pushes rejected
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{
		notify:  make(chan struct{}, 1),
		drained: make(chan struct{}),
	}
}

// Push appends a fresh job to the tail. Returns false if the queue has
// already drained (the run is over).
func (q *Queue) Push(j *job.Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.sealed {
		return false
	}
	q.pending = append(q.pending, j)
	q.signal()
	return true
}

// Pop removes and returns the head of the backlog, blocking until a job is
// available, the queue drains, or ctx is cancelled. The returned job is
// claimed by exactly one caller; it must be followed by Done or Requeue.
func (q *Queue) Pop(ctx context.Context) (*job.Job, bool) {
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			j := q.pending[0]
			q.pending = q.pending[1:]
			q.inFlight++
			if len(q.pending) > 0 {
				// Chain the wakeup: the cap-1 notify channel coalesces
				// signals, so a claimer re-signals while work remains.
				q.signal()
			}
			q.mu.Unlock()
			return j, true
		}
		if q.sealed {
			q.mu.Unlock()
			return nil, false
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, false
		case <-q.drained:
			return nil, false
		case <-q.notify:
			// Re-check the backlog; another worker may have won the claim.
		}
	}
}

// Requeue returns a claimed job to the tail of the backlog for a later
// retry. The outstanding count is unchanged.
func (q *Queue) Requeue(j *job.Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.inFlight--
	q.pending = append(q.pending, j)
	q.signal()
}

// Done retires a claimed job after it reached a terminal outcome. Closing
// the last claim on an empty backlog seals the queue.
func (q *Queue) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.inFlight--
	q.maybeSeal()
}

// IsDrained reports whether the backlog is empty AND no job is claimed.
func (q *Queue) IsDrained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sealed
}

// Drained returns a channel closed once the queue has fully drained.
func (q *Queue) Drained() <-chan struct{} {
	return q.drained
}

// Len returns the number of pending (unclaimed) jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// InFlight returns the number of currently claimed jobs.
func (q *Queue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.inFlight
}

// signal wakes one blocked Pop. Callers hold q.mu.
func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// maybeSeal closes the drained channel when the run is complete.
// Callers hold q.mu.
func (q *Queue) maybeSeal() {
	if !q.sealed && len(q.pending) == 0 && q.inFlight == 0 {
		q.sealed = true
		close(q.drained)
	}
}
