package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"
)

// ConsistentHashBalancer maps keys to connections using a hash ring.
// The same key always maps to the same connection (until the ring changes),
// providing affinity — useful for stateful services pinned to one peer.
//
// Virtual nodes: each real connection is mapped to N virtual nodes on the
// ring. Without virtual nodes, a handful of connections might cluster
// together on the ring, causing uneven load distribution. 100 virtual nodes
// per connection ensures statistical uniformity.
type ConsistentHashBalancer[T any] struct {
	replicas int            // Virtual nodes per real connection
	ring     []uint32       // Sorted hash values on the ring
	nodes    map[uint32]T   // Hash value -> connection mapping
	key      func(T) string // Identifies a connection for hashing
}

// NewConsistentHashBalancer creates a hash ring with 100 virtual nodes per
// connection. key must return a stable, unique identifier for a connection
// (an address, an instance ID) so ring placement is deterministic.
func NewConsistentHashBalancer[T any](key func(T) string) *ConsistentHashBalancer[T] {
	return &ConsistentHashBalancer[T]{
		replicas: 100,
		nodes:    make(map[uint32]T),
		key:      key,
	}
}

// Add places a connection onto the hash ring with N virtual nodes. Each
// virtual node is hashed from "{id}#{i}" to spread evenly across the ring.
func (b *ConsistentHashBalancer[T]) Add(item T) {
	id := b.key(item)
	for i := 0; i < b.replicas; i++ {
		vnode := fmt.Sprintf("%s#%d", id, i)
		hash := crc32.ChecksumIEEE([]byte(vnode))
		b.ring = append(b.ring, hash)
		b.nodes[hash] = item
	}
	sort.Slice(b.ring, func(i, j int) bool {
		return b.ring[i] < b.ring[j]
	})
}

// PickForKey finds the connection responsible for the given key. It hashes
// the key, then binary-searches for the first node >= hash on the ring,
// wrapping around to the first node if the hash exceeds every node's.
//
// PickForKey takes a string key rather than a slice of candidates, so it
// does not implement Balancer directly — consistent hashing is inherently
// key-based, not a pick-from-a-list operation.
func (b *ConsistentHashBalancer[T]) PickForKey(key string) (T, error) {
	var zero T
	if len(b.ring) == 0 {
		return zero, fmt.Errorf("no connections available")
	}

	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i] >= hash
	})
	if idx == len(b.ring) {
		idx = 0
	}

	return b.nodes[b.ring[idx]], nil
}

func (b *ConsistentHashBalancer[T]) Name() string {
	return "ConsistentHash"
}
