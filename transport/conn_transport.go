package transport

import "duplexrpc/executor"

// MessageConn is the minimal duplex message-framed connection a
// ConnTransport adapts: one Write call sends exactly one message, one Read
// call receives exactly one message. A real WebSocket connection satisfies
// a shape like this; PipeConn (pipe.go) backs this repository's own tests
// with a net.Conn plus a length-prefix framer, standing in for the real
// thing the governing spec keeps out of scope.
type MessageConn interface {
	WriteMessage(p []byte) error
	ReadMessage() ([]byte, error)
	Close() error
}

// ConnTransport adapts a MessageConn to Transport. Writes run on their own
// goroutine so AsyncWrite never blocks its caller; the Write Queue above it
// is what guarantees only one is ever outstanding.
type ConnTransport struct {
	conn MessageConn
	exec executor.Executor
}

// NewConnTransport wraps conn. exec defaults to executor.Goroutine{} when nil.
func NewConnTransport(conn MessageConn, exec executor.Executor) *ConnTransport {
	if exec == nil {
		exec = executor.Goroutine{}
	}
	return &ConnTransport{conn: conn, exec: exec}
}

func (t *ConnTransport) AsyncWrite(frame []byte, completion WriteCompletion) {
	go func() {
		completion(t.conn.WriteMessage(frame))
	}()
}

func (t *ConnTransport) GetExecutor() executor.Executor {
	return t.exec
}

// ReadMessage blocks for the next inbound frame. Callers run this in a loop
// and feed each result to Service.Dispatch — the read loop itself is also
// out of the core's scope, ConnTransport just exposes the plumbing.
func (t *ConnTransport) ReadMessage() ([]byte, error) {
	return t.conn.ReadMessage()
}

// Close releases the underlying connection.
func (t *ConnTransport) Close() error {
	return t.conn.Close()
}
