package session

import (
	"errors"
	"testing"

	"duplexrpc/errs"
	"duplexrpc/executor"
)

func TestIssueGrowsAndTakeRecycles(t *testing.T) {
	var tbl Table

	id0 := tbl.Issue(nil, func(error) {}, executor.Inline{})
	id1 := tbl.Issue(nil, func(error) {}, executor.Inline{})

	if id0 != 0 || id1 != 1 {
		t.Fatalf("expect ids 0,1 got %d,%d", id0, id1)
	}
	if tbl.Len() != 2 {
		t.Fatalf("expect table len 2, got %d", tbl.Len())
	}

	if _, err := tbl.Take(id0); err != nil {
		t.Fatalf("Take(0) failed: %v", err)
	}
	// id0 is now free; the very next Issue must reuse it (LIFO).
	id2 := tbl.Issue(nil, func(error) {}, executor.Inline{})
	if id2 != id0 {
		t.Fatalf("expect recycled id %d, got %d", id0, id2)
	}
	if tbl.Len() != 2 {
		t.Fatalf("expect table len unchanged at 2, got %d", tbl.Len())
	}
}

func TestTakeOutOfRange(t *testing.T) {
	var tbl Table
	_, err := tbl.Take(999)
	if !errors.Is(err, errs.ErrSessionOutOfRange) {
		t.Fatalf("expect ErrSessionOutOfRange, got %v", err)
	}
}

func TestTakeInvalidSession(t *testing.T) {
	var tbl Table
	id := tbl.Issue(nil, func(error) {}, executor.Inline{})
	if _, err := tbl.Take(id); err != nil {
		t.Fatalf("first Take failed: %v", err)
	}
	// id is now on the free list, not occupied: a second Take must fail.
	if _, err := tbl.Take(id); !errors.Is(err, errs.ErrInvalidSession) {
		t.Fatalf("expect ErrInvalidSession, got %v", err)
	}
}

func TestDrainEmptiesTableAndFiresEveryCompletion(t *testing.T) {
	var tbl Table

	fired := make([]bool, 3)
	for i := range fired {
		i := i
		tbl.Issue(nil, func(error) { fired[i] = true }, executor.Inline{})
	}

	slots := tbl.Drain()
	if len(slots) != 3 {
		t.Fatalf("expect 3 drained slots, got %d", len(slots))
	}
	for _, s := range slots {
		s.Completion(errs.ErrParseEnvelopeFailed)
	}
	for i, f := range fired {
		if !f {
			t.Fatalf("completion %d never fired", i)
		}
	}
	if tbl.Len() != 0 {
		t.Fatalf("expect empty table after drain, got len %d", tbl.Len())
	}

	// The table is reusable after a drain: the next Issue starts at 0 again.
	id := tbl.Issue(nil, func(error) {}, executor.Inline{})
	if id != 0 {
		t.Fatalf("expect id 0 after drain, got %d", id)
	}
}

func TestSessionUniqueness(t *testing.T) {
	var tbl Table
	const n = 16
	ids := make([]uint32, n)
	for i := 0; i < n; i++ {
		ids[i] = tbl.Issue(nil, func(error) {}, executor.Inline{})
	}
	seen := make(map[uint32]bool)
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("duplicate session id %d issued", id)
		}
		seen[id] = true
	}
}
