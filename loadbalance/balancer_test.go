package loadbalance

import (
	"fmt"
	"testing"
)

type testConn struct {
	addr   string
	weight int
}

var testConns = []testConn{
	{addr: ":8001", weight: 10},
	{addr: ":8002", weight: 5},
	{addr: ":8003", weight: 10},
}

func TestRoundRobin(t *testing.T) {
	b := &RoundRobinBalancer[testConn]{}

	results := make([]string, 3)
	for i := 0; i < 3; i++ {
		conn, err := b.Pick(testConns)
		if err != nil {
			t.Fatal(err)
		}
		results[i] = conn.addr
	}

	conn, _ := b.Pick(testConns)
	if conn.addr != results[0] {
		t.Fatalf("expect wrap around to %s, got %s", results[0], conn.addr)
	}
}

func TestRoundRobinEmpty(t *testing.T) {
	b := &RoundRobinBalancer[testConn]{}
	_, err := b.Pick([]testConn{})
	if err == nil {
		t.Fatal("expect error for empty connections")
	}
}

func TestWeightedRandom(t *testing.T) {
	b := NewWeightedRandomBalancer(func(c testConn) int { return c.weight })

	counts := map[string]int{}
	n := 10000
	for i := 0; i < n; i++ {
		conn, err := b.Pick(testConns)
		if err != nil {
			t.Fatal(err)
		}
		counts[conn.addr]++
	}

	ratio := float64(counts[":8001"]) / float64(counts[":8002"])
	if ratio < 1.5 || ratio > 2.5 {
		t.Fatalf("weight ratio :8001/:8002 = %.2f, expect ~2.0", ratio)
	}
}

func TestConsistentHash(t *testing.T) {
	b := NewConsistentHashBalancer(func(c testConn) string { return c.addr })
	for _, c := range testConns {
		b.Add(c)
	}

	inst1, _ := b.PickForKey("user-123")
	inst2, _ := b.PickForKey("user-123")
	if inst1.addr != inst2.addr {
		t.Fatalf("same key mapped to different connections: %s vs %s", inst1.addr, inst2.addr)
	}

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		conn, _ := b.PickForKey(fmt.Sprintf("key-%d", i))
		seen[conn.addr] = true
	}

	if len(seen) < 2 {
		t.Fatalf("expect at least 2 different connections, got %d", len(seen))
	}
}

func TestConsistentHashEmpty(t *testing.T) {
	b := NewConsistentHashBalancer(func(c testConn) string { return c.addr })
	if _, err := b.PickForKey("anything"); err == nil {
		t.Fatal("expect error for empty ring")
	}
}
