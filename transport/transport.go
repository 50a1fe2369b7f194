// Package transport defines the duplex message transport the core RPC
// runtime borrows for its entire lifetime. The runtime never dials,
// accepts, or closes a transport itself; connection establishment and
// handshake (typically over a WebSocket) live above this package. This
// package only names the interface the Write Queue and Service depend on,
// plus minimal concrete adapters used by this repository's own tests and
// examples.
package transport

import "duplexrpc/executor"

// WriteCompletion is invoked exactly once per AsyncWrite call, with a
// non-nil err if and only if the write failed.
type WriteCompletion func(err error)

// Transport is the external collaborator the Write Queue serializes onto.
// Exactly one AsyncWrite is ever outstanding at a time — the Write Queue
// enforces that — so implementations need not serialize writes themselves.
type Transport interface {
	// AsyncWrite submits one frame. completion runs when the write finishes
	// or fails; it must run exactly once.
	AsyncWrite(frame []byte, completion WriteCompletion)

	// GetExecutor returns the scheduling handle operations inherit when the
	// caller supplies none of their own.
	GetExecutor() executor.Executor
}
