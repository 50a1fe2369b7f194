// Package writequeue implements the outbound write serialization discipline:
// the transport never sees two overlapping writes, no matter how many
// producers concurrently enqueue. The lock only ever guards the pending
// deque itself; the async submission happens after the lock is released,
// so a slow transport write never blocks a concurrent Enqueue.
package writequeue

import (
	"sync"

	"duplexrpc/transport"
)

// Queue serializes outbound frames onto a transport.Transport.
type Queue struct {
	mu       sync.Mutex
	skipLock bool // set by DisableLocking, for single-threaded callers that don't need the mutex
	pending  [][]byte

	transport transport.Transport
	// onError runs when the transport reports a write failure. The queue
	// itself never drains its pending buffers on error; that is the
	// caller's responsibility.
	onError func(error)
}

// DisableLocking strips the queue's internal synchronization. Callers that
// use it take over responsibility for serializing Enqueue themselves; the
// write-complete callback still runs however the transport schedules it.
func (q *Queue) DisableLocking() {
	q.skipLock = true
}

func (q *Queue) lock() {
	if !q.skipLock {
		q.mu.Lock()
	}
}

func (q *Queue) unlock() {
	if !q.skipLock {
		q.mu.Unlock()
	}
}

// New creates a Queue that writes through t and calls onError on any write
// failure observed in the write-complete callback.
func New(t transport.Transport, onError func(error)) *Queue {
	return &Queue{transport: t, onError: onError}
}

// Enqueue appends buf. If the queue transitioned from empty to non-empty —
// buf is now the sole head — an async write of buf is submitted. Otherwise
// the write already in flight will pick up buf when it completes.
func (q *Queue) Enqueue(buf []byte) {
	q.lock()
	writeInProgress := len(q.pending) > 0
	q.pending = append(q.pending, buf)
	head := q.pending[0]
	q.unlock()

	if !writeInProgress {
		q.transport.AsyncWrite(head, q.onWriteComplete)
	}
}

func (q *Queue) onWriteComplete(err error) {
	if err != nil {
		if q.onError != nil {
			q.onError(err)
		}
		return
	}

	q.lock()
	q.pending = q.pending[1:]
	var next []byte
	hasNext := len(q.pending) > 0
	if hasNext {
		next = q.pending[0]
	}
	q.unlock()

	if hasNext {
		q.transport.AsyncWrite(next, q.onWriteComplete)
	}
}

// Len reports the number of buffers currently pending, including the one (if
// any) already submitted to the transport. Exposed for tests.
func (q *Queue) Len() int {
	q.lock()
	defer q.unlock()
	return len(q.pending)
}

// Cap reports the pending buffer's current capacity. Exposed for tests.
func (q *Queue) Cap() int {
	q.lock()
	defer q.unlock()
	return cap(q.pending)
}

// Reserve grows the pending buffer's capacity to at least n, so a
// connection with a known concurrent write fan-in doesn't pay for
// reallocation as Enqueue grows the deque. It has no effect once the
// current capacity already covers n, and must be called before the queue
// sees concurrent use.
func (q *Queue) Reserve(n int) {
	q.lock()
	defer q.unlock()
	if n <= cap(q.pending) {
		return
	}
	grown := make([][]byte, len(q.pending), n)
	copy(grown, q.pending)
	q.pending = grown
}
