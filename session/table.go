// Package session implements the per-connection session table: issuing,
// tracking, recycling, and draining the call slots behind every outstanding
// async call. Freed session ids are reused LIFO, so a long-lived connection
// never grows the slot vector past its high-water mark of concurrent calls.
package session

import (
	"sync"

	"duplexrpc/errs"
	"duplexrpc/executor"
)

// CallSlot is one outstanding async_call awaiting its reply.
type CallSlot struct {
	// ParseReply decodes the matching callee envelope's payload straight
	// into the caller's own reply value. It is a closure bound at Issue
	// time so this package never needs to know the caller's Req/Rep types.
	ParseReply func(payload []byte) error
	// Completion is the one-shot continuation; it runs exactly once, with
	// nil on success or a domain error on abort.
	Completion func(error)
	// Executor is where Completion must run. It is never invoked inline on
	// the dispatch goroutine.
	Executor executor.Executor
}

// Table is the session table. A zero Table is ready to use.
type Table struct {
	mu       sync.Mutex
	skipLock bool // set by DisableLocking, for single-threaded callers that don't need the mutex
	slots    []*CallSlot
	free     []uint32 // LIFO: last freed is first reused
}

// DisableLocking strips the table's internal synchronization, the Go
// equivalent of the source's disable_threads build toggle. Callers that use
// it take over responsibility for serializing Issue/Take/Drain themselves.
func (t *Table) DisableLocking() {
	t.skipLock = true
}

func (t *Table) lock() {
	if !t.skipLock {
		t.mu.Lock()
	}
}

func (t *Table) unlock() {
	if !t.skipLock {
		t.mu.Unlock()
	}
}

// Issue allocates a slot for parseReply, completion, and exec, reusing a
// recycled id from the free list (LIFO) before growing the slot vector. It
// returns the session id to place on the outgoing caller envelope.
func (t *Table) Issue(parseReply func([]byte) error, completion func(error), exec executor.Executor) uint32 {
	t.lock()
	defer t.unlock()

	slot := &CallSlot{ParseReply: parseReply, Completion: completion, Executor: exec}

	if n := len(t.free); n > 0 {
		id := t.free[n-1]
		t.free = t.free[:n-1]
		t.slots[id] = slot
		return id
	}

	id := uint32(len(t.slots))
	t.slots = append(t.slots, slot)
	return id
}

// Take removes and returns the slot at id, pushing id onto the free list.
// It fails with errs.ErrSessionOutOfRange if id is beyond the slot vector,
// or errs.ErrInvalidSession if the slot at id is already empty.
func (t *Table) Take(id uint32) (*CallSlot, error) {
	t.lock()
	defer t.unlock()

	if id >= uint32(len(t.slots)) {
		return nil, errs.ErrSessionOutOfRange
	}
	slot := t.slots[id]
	if slot == nil {
		return nil, errs.ErrInvalidSession
	}
	t.slots[id] = nil
	t.free = append(t.free, id)
	return slot, nil
}

// Drain removes and returns every occupied slot, leaving the table empty.
// Used by abort_rpc to fail every outstanding call in one pass.
func (t *Table) Drain() []*CallSlot {
	t.lock()
	defer t.unlock()

	out := make([]*CallSlot, 0, len(t.slots))
	for _, s := range t.slots {
		if s != nil {
			out = append(out, s)
		}
	}
	t.slots = nil
	t.free = nil
	return out
}

// Len reports the current size of the slot vector (occupied + free),
// exposed for tests asserting on table growth.
func (t *Table) Len() int {
	t.lock()
	defer t.unlock()
	return len(t.slots)
}
