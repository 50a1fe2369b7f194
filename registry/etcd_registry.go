// Package registry provides the etcd-based implementation of the Registry
// interface: a connection directory tracking which node currently holds a
// live duplex connection to a given peer.
//
// etcd is a distributed key-value store that provides strong consistency
// (Raft protocol). We use it as a "who's holding this peer" phonebook:
//
//	Key:   /duplexrpc/peers/{peerID}/{nodeAddr}
//	Value: JSON-encoded PeerConnection
package registry

import (
	"context"
	"encoding/json"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdRegistry implements the Registry interface using etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client // etcd client connection (thread-safe, shared across goroutines)
}

// NewEtcdRegistry creates a new registry connected to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints: endpoints,
	})
	if err != nil {
		return nil, err
	}
	return &EtcdRegistry{client: c}, nil
}

// Announce records that this node holds a live connection to peerID, under
// a TTL lease.
//
// Flow:
//  1. Create a lease with the given TTL (e.g., 10 seconds)
//  2. Put the key-value pair with the lease attached
//  3. Start KeepAlive to automatically renew the lease
//
// Note: leaseID is a local variable, NOT stored on the struct.
// This prevents a data race when multiple servers share one EtcdRegistry instance
// (discovered via `go test -race`).
func (r *EtcdRegistry) Announce(peerID string, conn PeerConnection, ttl int64) error {
	ctx := context.TODO()

	// Create a TTL-based lease — if KeepAlive stops, the entry auto-expires
	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	// Serialize the connection metadata
	val, err := json.Marshal(conn)
	if err != nil {
		return err
	}

	// Store in etcd: key = /duplexrpc/peers/{peerID}/{nodeAddr}, value = JSON metadata
	_, err = r.client.Put(ctx, "/duplexrpc/peers/"+peerID+"/"+conn.NodeAddr, string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		return err
	}

	// Start background lease renewal — KeepAlive sends heartbeats to etcd
	ch, err := r.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return err
	}

	// Consume KeepAlive responses to prevent the channel from filling up
	go func() {
		for range ch {
		}
	}()
	return nil
}

// Withdraw removes the connection this node announced for peerID.
// Called when the accepted connection to peerID closes.
func (r *EtcdRegistry) Withdraw(peerID string, nodeAddr string) error {
	ctx := context.TODO()
	_, err := r.client.Delete(ctx, "/duplexrpc/peers/"+peerID+"/"+nodeAddr)
	if err != nil {
		return err
	}
	return nil
}

// Watch monitors a peer's directory entries in etcd and emits the updated
// list of holding nodes whenever changes occur (new connection, withdrawal,
// lease expiration).
//
// Uses etcd's Watch API (server-push), which is more efficient than polling.
func (r *EtcdRegistry) Watch(peerID string) <-chan []PeerConnection {
	ctx := context.TODO()
	ch := make(chan []PeerConnection, 1)
	prefix := "/duplexrpc/peers/" + peerID + "/"

	go func() {
		// Watch all keys under the peer's directory prefix
		watchChan := r.client.Watch(ctx, prefix, clientv3.WithPrefix())
		for range watchChan {
			// On any change, re-fetch the full list of holding nodes
			// (simpler than parsing individual watch events)
			conns, _ := r.Lookup(peerID)
			ch <- conns
		}
	}()

	return ch
}

// Lookup returns every node currently holding a live connection to peerID.
// Queries etcd with a key prefix to find all entries under
// /duplexrpc/peers/{peerID}/.
func (r *EtcdRegistry) Lookup(peerID string) ([]PeerConnection, error) {
	ctx := context.TODO()
	prefix := "/duplexrpc/peers/" + peerID + "/"

	// Get all keys with the prefix
	resp, err := r.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	// Deserialize each value into a PeerConnection
	conns := make([]PeerConnection, 0)
	for _, kv := range resp.Kvs {
		var conn PeerConnection
		if err := json.Unmarshal(kv.Value, &conn); err != nil {
			continue // Skip malformed entries
		}
		conns = append(conns, conn)
	}

	return conns, nil
}
