// Package errs defines the stable error taxonomy shared by every layer of the
// duplex RPC runtime. Components never invent their own error strings for
// these conditions; they wrap one of the sentinels below so callers can match
// on error kind with errors.Is regardless of which layer raised it.
package errs

import "errors"

var (
	// ErrParseEnvelopeFailed means inbound bytes did not decode as an Envelope.
	ErrParseEnvelopeFailed = errors.New("parse_envelope_failed")

	// ErrParsePayloadFailed means the envelope decoded but its payload did not
	// decode under the type named by Envelope.Message.
	ErrParsePayloadFailed = errors.New("parse_payload_failed")

	// ErrUnknownProtocolDescriptor means Envelope.Message is not known to the
	// schema facility, or the registry has no handler bound at its index.
	ErrUnknownProtocolDescriptor = errors.New("unknown_protocol_descriptor")

	// ErrSessionOutOfRange means a callee envelope's session is >= the current
	// session table capacity.
	ErrSessionOutOfRange = errors.New("session_out_of_range")

	// ErrInvalidSession means a callee envelope's session refers to an empty
	// slot (already completed, or never issued).
	ErrInvalidSession = errors.New("invalid_session")
)

// Wrap attaches cause to kind so errors.Is(result, kind) still succeeds while
// %v/%s renders the underlying detail.
func Wrap(kind error, cause error) error {
	if cause == nil {
		return kind
	}
	return &wrapped{kind: kind, cause: cause}
}

type wrapped struct {
	kind  error
	cause error
}

func (w *wrapped) Error() string {
	if w.cause == nil {
		return w.kind.Error()
	}
	return w.kind.Error() + ": " + w.cause.Error()
}

func (w *wrapped) Unwrap() error {
	return w.kind
}
