// Package rpcservice implements the dispatch engine: the Service that owns
// one duplex connection, drives the caller/callee state machine for every
// inbound frame, and exposes Bind/AsyncCall/Dispatch as the runtime's public
// surface.
//
// Service wires together four cooperating parts: the envelope codec, the
// handler registry, the session table, and the write queue. It adds nothing
// of its own beyond the glue and the abort policy: any domain error observed
// while dispatching a frame is fatal for the whole connection.
package rpcservice

import (
	"fmt"

	"go.uber.org/zap"

	"duplexrpc/envelope"
	"duplexrpc/errs"
	"duplexrpc/executor"
	"duplexrpc/handler"
	"duplexrpc/schema"
	"duplexrpc/session"
	"duplexrpc/transport"
	"duplexrpc/writequeue"
)

// Service is one object per duplex connection, composed of an envelope
// codec (the envelope package, used statelessly), a handler registry, a
// session table, a dispatch engine (this type's methods), and a write
// queue.
type Service struct {
	transport transport.Transport
	facility  schema.Facility
	logger    *zap.Logger

	registry handler.Registry
	sessions session.Table
	writeq   *writequeue.Queue
}

// Option configures a Service at construction time.
type Option func(*Service)

// WithLogger attaches a structured logger. Every abort and write failure is
// logged with the triggering error kind; the default is zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithoutLocking strips synchronization from the registry, session table,
// and write queue for callers that already serialize Bind, AsyncCall, and
// Dispatch themselves and want to skip the mutex overhead.
func WithoutLocking() Option {
	return func(s *Service) {
		s.registry.DisableLocking()
		s.sessions.DisableLocking()
		s.writeq.DisableLocking()
	}
}

// WithWriteQueueCapacityHint pre-sizes the write queue's pending buffer to
// n, avoiding reallocation under this connection's typical concurrent
// write fan-in. A zero or negative n is a no-op.
func WithWriteQueueCapacityHint(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.writeq.Reserve(n)
		}
	}
}

// New creates a Service bound to t for its entire lifetime and using
// facility to name and materialize typed messages. The Service never
// dials, accepts, or closes t.
func New(t transport.Transport, facility schema.Facility, opts ...Option) *Service {
	s := &Service{
		transport: t,
		facility:  facility,
		logger:    zap.NewNop(),
	}
	s.writeq = writequeue.New(t, s.abortRPC)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Executor returns the scheduling handle operations inherit when the
// caller supplies none of their own: the transport's own executor.
func (s *Service) Executor() executor.Executor {
	return s.transport.GetExecutor()
}

// Transport returns the duplex transport this Service was constructed
// with.
func (s *Service) Transport() transport.Transport {
	return s.transport
}

// Facility returns the schema facility this Service names and
// materializes messages through.
func (s *Service) Facility() schema.Facility {
	return s.facility
}

// PendingCalls reports how many AsyncCall invocations are currently
// awaiting a reply on this connection. A load balancer can use it to
// prefer the least busy of several pooled connections.
func (s *Service) PendingCalls() int {
	return s.sessions.Len()
}

// Bind registers a callee-side handler for the (Req, Rep) pair named
// reqTypeName/repTypeName in the Service's schema facility. Binding twice
// at the same schema index overwrites the previous entry.
func Bind[Req, Rep any](s *Service, reqTypeName, repTypeName string, fn func(*Req, *Rep) error) error {
	return handler.Bind[Req, Rep](&s.registry, s.facility, reqTypeName, repTypeName, fn)
}

// BindDynamic is the non-generic counterpart to Bind, for callers that only
// learn the (Req, Rep) pair at runtime (server.Service uses it to bind
// reflection-scanned methods). See handler.BindDynamic.
func BindDynamic(s *Service, reqTypeName, repTypeName string, th *handler.TypedHandler) error {
	return handler.BindDynamic(&s.registry, s.facility, reqTypeName, repTypeName, th)
}

// AsyncCall invokes the remote handler bound to reqTypeName on the peer.
// reply is filled in place when the matching callee envelope arrives;
// completion then runs on exec (the Service's own executor if exec is nil)
// with nil on success or a domain error on abort. AsyncCall itself returns
// an error only for a local, synchronous failure — an unregistered type or
// a serialization failure — that never reaches the wire; in that case
// completion never runs.
func AsyncCall[Req, Rep any](s *Service, reqTypeName, repTypeName string, req *Req, reply *Rep, completion func(error), exec executor.Executor) error {
	reqDesc, ok := s.facility.FindMessageByName(reqTypeName)
	if !ok {
		return errs.ErrUnknownProtocolDescriptor
	}
	repDesc, ok := s.facility.FindMessageByName(repTypeName)
	if !ok {
		return errs.ErrUnknownProtocolDescriptor
	}

	payload, err := reqDesc.Wrap(req).Serialize()
	if err != nil {
		return errs.Wrap(errs.ErrParsePayloadFailed, err)
	}

	if exec == nil {
		exec = s.Executor()
	}

	parseReply := func(data []byte) error {
		return repDesc.Wrap(reply).Parse(data)
	}

	id := s.sessions.Issue(parseReply, completion, exec)

	env := &envelope.Envelope{
		Direction: envelope.Caller,
		Session:   id,
		Message:   reqTypeName,
		Payload:   payload,
	}
	s.writeq.Enqueue(envelope.Marshal(env))
	return nil
}

// Dispatch consumes one inbound frame — the bytes of exactly one envelope,
// since the transport carries no additional framing — and drives it through
// the caller or callee path. It returns the number of bytes consumed
// (always len(frame) on success, 0 on abort) and any fatal error; any
// non-nil error has already triggered abortRPC.
func (s *Service) Dispatch(frame []byte) (int, error) {
	env, err := envelope.Unmarshal(frame)
	if err != nil {
		s.abortRPC(err)
		return 0, err
	}

	switch env.Direction {
	case envelope.Caller:
		return s.dispatchCallerPath(env, len(frame))
	case envelope.Callee:
		return s.dispatchCalleePath(env, len(frame))
	default:
		err := fmt.Errorf("unreachable direction %v", env.Direction)
		s.abortRPC(err)
		return 0, err
	}
}

// dispatchCallerPath handles an inbound envelope where the peer is invoking
// one of our bound handlers.
func (s *Service) dispatchCallerPath(env *envelope.Envelope, consumed int) (int, error) {
	h, err := s.registry.Lookup(s.facility, env.Message)
	if err != nil {
		s.logger.Error("unknown protocol descriptor on caller path",
			zap.String("message", env.Message), zap.Uint32("session", env.Session))
		s.abortRPC(err)
		return 0, err
	}

	reqInst := h.NewRequest()
	if perr := reqInst.Parse(env.Payload); perr != nil {
		wrapped := errs.Wrap(errs.ErrParsePayloadFailed, perr)
		s.logger.Error("parse payload failed on caller path",
			zap.String("message", env.Message), zap.Error(perr))
		s.abortRPC(wrapped)
		return 0, wrapped
	}

	repInst := h.NewReply()
	if herr := h.Invoke(reqInst, repInst); herr != nil {
		// A handler error is a business-level result, not a protocol
		// failure: there is no in-band error channel, so log it and still
		// send back whatever the handler left in the reply.
		s.logger.Warn("bound handler returned an error",
			zap.String("message", env.Message), zap.Error(herr))
	}

	payload, serr := repInst.Serialize()
	if serr != nil {
		// Not one of the five wire-level error kinds: serialization of a
		// registered, already-parsed type failing is a schema-facility
		// bug outside this layer's taxonomy. Log and drop the reply
		// rather than tearing down every other outstanding call over it.
		s.logger.Error("serialize reply failed, dropping reply",
			zap.String("message", repInst.TypeName()), zap.Error(serr))
		return consumed, nil
	}

	reply := &envelope.Envelope{
		Direction: envelope.Callee,
		Session:   env.Session,
		Message:   repInst.TypeName(),
		Payload:   payload,
	}
	s.writeq.Enqueue(envelope.Marshal(reply))
	return consumed, nil
}

// dispatchCalleePath handles an inbound envelope where the peer is replying
// to one of our earlier AsyncCall invocations.
func (s *Service) dispatchCalleePath(env *envelope.Envelope, consumed int) (int, error) {
	slot, err := s.sessions.Take(env.Session)
	if err != nil {
		s.logger.Error("bad callee session, aborting connection",
			zap.Uint32("session", env.Session), zap.Error(err))
		s.abortRPC(err)
		return 0, err
	}

	if perr := slot.ParseReply(env.Payload); perr != nil {
		wrapped := errs.Wrap(errs.ErrParsePayloadFailed, perr)
		// The slot is already out of the table, so draining inside
		// abortRPC will never reach it: fire its own completion first.
		completeOn(slot, wrapped)
		s.abortRPC(wrapped)
		return 0, wrapped
	}

	completeOn(slot, nil)
	return consumed, nil
}

// abortRPC is the fatal teardown for the connection: every outstanding call
// slot's completion fires with ec, and the handler registry is cleared.
// Outbound writes already queued are left alone — the transport discovers
// the failure itself on its next write.
func (s *Service) abortRPC(ec error) {
	if ec != nil {
		s.logger.Error("rpc aborted", zap.Error(ec))
	}
	for _, slot := range s.sessions.Drain() {
		completeOn(slot, ec)
	}
	s.registry.Clear()
}

func completeOn(slot *session.CallSlot, err error) {
	completion, exec := slot.Completion, slot.Executor
	exec.Post(func() { completion(err) })
}
