// Package envelope implements the wire envelope that wraps every frame
// exchanged by the duplex RPC runtime.
//
// It solves the "which call is this" problem the way the core protocol needs
// it solved: a fixed 9-byte header (magic, version, direction, session)
// followed by a length-prefixed message name and a length-prefixed payload.
// The codec is pure — it carries no state and makes no network calls.
//
//	0      3  4  5          9
//	┌──────┬──┬──┬──────────┬─────────┬──────────────┬─────────┬──────────────┐
//	│magic │v │dr│  session │ nameLen │  name ...    │ bodyLen │  payload ... │
//	│ dpx  │01│  │  uint32  │ uint16  │ nameLen bytes│ uint32  │ bodyLen bytes│
//	└──────┴──┴──┴──────────┴─────────┴──────────────┴─────────┴──────────────┘
package envelope

import (
	"encoding/binary"
	"fmt"

	"duplexrpc/errs"
)

// Magic number bytes identify a duplex RPC envelope and let a peer reject
// bytes that reached it from the wrong protocol on the wrong port.
const (
	MagicByte1 byte = 0x64 // 'd'
	MagicByte2 byte = 0x70 // 'p'
	MagicByte3 byte = 0x78 // 'x'
	Version    byte = 0x01

	fixedHeaderSize = 3 + 1 + 1 + 4 // magic + version + direction + session
)

// Direction distinguishes an invocation from a reply to an earlier invocation.
type Direction byte

const (
	// Caller means "I am invoking you".
	Caller Direction = 0
	// Callee means "I am replying to your earlier invocation".
	Callee Direction = 1
)

func (d Direction) String() string {
	switch d {
	case Caller:
		return "caller"
	case Callee:
		return "callee"
	default:
		return fmt.Sprintf("direction(%d)", byte(d))
	}
}

// Envelope is the only wire object the core dispatch engine understands.
type Envelope struct {
	Direction Direction
	Session   uint32
	Message   string // fully-qualified schema name of the payload
	Payload   []byte // opaque serialized form of Message's type
}

// Marshal serializes e to its wire form. It never fails: every field of
// Envelope is already wire-representable.
func Marshal(e *Envelope) []byte {
	nameBytes := []byte(e.Message)
	buf := make([]byte, fixedHeaderSize+2+len(nameBytes)+4+len(e.Payload))

	buf[0], buf[1], buf[2] = MagicByte1, MagicByte2, MagicByte3
	buf[3] = Version
	buf[4] = byte(e.Direction)
	binary.BigEndian.PutUint32(buf[5:9], e.Session)

	off := fixedHeaderSize
	binary.BigEndian.PutUint16(buf[off:off+2], uint16(len(nameBytes)))
	off += 2
	copy(buf[off:off+len(nameBytes)], nameBytes)
	off += len(nameBytes)

	binary.BigEndian.PutUint32(buf[off:off+4], uint32(len(e.Payload)))
	off += 4
	copy(buf[off:off+len(e.Payload)], e.Payload)

	return buf
}

// Unmarshal parses data into an Envelope. Any malformed input — short buffer,
// bad magic, bad version, truncated name or payload — is reported as
// errs.ErrParseEnvelopeFailed.
func Unmarshal(data []byte) (*Envelope, error) {
	if len(data) < fixedHeaderSize+2 {
		return nil, errs.Wrap(errs.ErrParseEnvelopeFailed, fmt.Errorf("short header: %d bytes", len(data)))
	}
	if data[0] != MagicByte1 || data[1] != MagicByte2 || data[2] != MagicByte3 {
		return nil, errs.Wrap(errs.ErrParseEnvelopeFailed, fmt.Errorf("bad magic: %x", data[0:3]))
	}
	if data[3] != Version {
		return nil, errs.Wrap(errs.ErrParseEnvelopeFailed, fmt.Errorf("unsupported version: %d", data[3]))
	}
	direction := Direction(data[4])
	if direction != Caller && direction != Callee {
		return nil, errs.Wrap(errs.ErrParseEnvelopeFailed, fmt.Errorf("bad direction: %d", data[4]))
	}
	session := binary.BigEndian.Uint32(data[5:9])

	off := fixedHeaderSize
	nameLen := int(binary.BigEndian.Uint16(data[off : off+2]))
	off += 2
	if off+nameLen+4 > len(data) {
		return nil, errs.Wrap(errs.ErrParseEnvelopeFailed, fmt.Errorf("truncated message name"))
	}
	name := string(data[off : off+nameLen])
	off += nameLen

	bodyLen := int(binary.BigEndian.Uint32(data[off : off+4]))
	off += 4
	if off+bodyLen > len(data) {
		return nil, errs.Wrap(errs.ErrParseEnvelopeFailed, fmt.Errorf("truncated payload"))
	}
	payload := make([]byte, bodyLen)
	copy(payload, data[off:off+bodyLen])

	return &Envelope{
		Direction: direction,
		Session:   session,
		Message:   name,
		Payload:   payload,
	}, nil
}
