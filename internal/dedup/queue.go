// Package dedup provides a FIFO chain of asynchronous operations with
// optional key-based duplicate suppression. Seen keys are remembered for
// the queue's whole lifetime; this grows without bound, which is an
// accepted trade-off for processes bounded by one release cycle or one
// signing session.
package dedup

import "sync"

// Queue runs submitted operations strictly one at a time in submission
// order. An operation keyed the same as any earlier submission is dropped.
type Queue struct {
	mu   sync.Mutex
	seen map[string]struct{}
	tail chan struct{}
}

// New returns an empty queue ready to accept submissions.
func New() *Queue {
	closed := make(chan struct{})
	close(closed)
	return &Queue{
		seen: make(map[string]struct{}),
		tail: closed,
	}
}

// Submit appends op to the execution chain. When key is non-empty and was
// submitted before, op is silently discarded. The operation starts only
// after every previously accepted operation has finished; its outcome does
// not affect subsequent operations. Completion is observed only through
// the operation's own side effects.
func (q *Queue) Submit(op func(), key string) {
	if op == nil {
		return
	}

	q.mu.Lock()
	if key != "" {
		if _, dup := q.seen[key]; dup {
			q.mu.Unlock()
			return
		}
		q.seen[key] = struct{}{}
	}
	prev := q.tail
	done := make(chan struct{})
	q.tail = done
	q.mu.Unlock()

	go func() {
		defer close(done)
		<-prev
		op()
	}()
}

// Wait blocks until every operation accepted so far has completed.
// Operations submitted after Wait is called are not waited for.
func (q *Queue) Wait() {
	q.mu.Lock()
	tail := q.tail
	q.mu.Unlock()
	<-tail
}
