package transport

import (
	"encoding/binary"
	"io"
	"net"
	"sync"
)

// PipeConn frames messages over a net.Conn (e.g. one end of net.Pipe) with a
// 4-byte big-endian length prefix — the simplest possible stand-in for a
// real message-framed transport such as a WebSocket. It exists for tests
// and examples; a production deployment plugs in a real WebSocket
// MessageConn instead.
type PipeConn struct {
	conn net.Conn
	mu   sync.Mutex
}

// NewPipeConn wraps conn, framing every WriteMessage with a length prefix.
func NewPipeConn(conn net.Conn) *PipeConn {
	return &PipeConn{conn: conn}
}

func (p *PipeConn) WriteMessage(msg []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(msg)))
	if _, err := p.conn.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := p.conn.Write(msg)
	return err
}

func (p *PipeConn) ReadMessage() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(p.conn, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(p.conn, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (p *PipeConn) Close() error {
	return p.conn.Close()
}
