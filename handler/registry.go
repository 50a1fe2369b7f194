// Package handler implements the callee-side handler registry: mapping a
// bound (request, reply) type pair to the schema index the wire uses to name
// it, and erasing Req/Rep behind a uniform invocation so the dispatch engine
// never needs generics of its own. Each bound entry keeps a typed factory
// closure, captured at bind time, that spawns a fresh request or reply
// instance on demand rather than cloning a shared prototype.
package handler

import (
	"sync"

	"duplexrpc/errs"
	"duplexrpc/schema"
)

// TypedHandler is one entry in the registry: the user callable for a single
// (Req, Rep) pair, erased behind Invoke, plus the factories the dispatcher
// uses to spawn fresh request/reply instances.
type TypedHandler struct {
	// NewRequest and NewReply spawn a fresh, default-valued Instance from
	// the request's or reply's schema descriptor. A dispatch never mutates
	// a shared prototype.
	NewRequest func() schema.Instance
	NewReply   func() schema.Instance

	// Invoke calls the user's typed function with the given fresh request
	// and reply instances. The request has already been parsed from the
	// wire; on return the reply is ready to serialize.
	Invoke func(req, rep schema.Instance) error
}

// Registry is the handler registry. Its backing vector is sized on first
// Bind to the declared message-type count of the request's governing file,
// and indexed by each request's schema descriptor index.
type Registry struct {
	mu       sync.Mutex
	skipLock bool // set by DisableLocking, for single-threaded callers that don't need the mutex
	handlers []*TypedHandler
}

// DisableLocking strips the registry's internal synchronization. Callers
// that use it take over responsibility for serializing Bind/Lookup/Clear
// themselves.
func (r *Registry) DisableLocking() {
	r.skipLock = true
}

func (r *Registry) lock() {
	if !r.skipLock {
		r.mu.Lock()
	}
}

func (r *Registry) unlock() {
	if !r.skipLock {
		r.mu.Unlock()
	}
}

// Bind registers fn for the (Req, Rep) pair named by reqTypeName/repTypeName
// in facility. The backing vector is (re)sized, if necessary, to the
// declared message-type count of Req's file; fn is placed at Req's schema
// index. Binding twice at the same index overwrites the previous entry:
// last writer wins.
func Bind[Req, Rep any](r *Registry, facility schema.Facility, reqTypeName, repTypeName string, fn func(*Req, *Rep) error) error {
	reqDesc, ok := facility.FindMessageByName(reqTypeName)
	if !ok {
		return errs.ErrUnknownProtocolDescriptor
	}
	repDesc, ok := facility.FindMessageByName(repTypeName)
	if !ok {
		return errs.ErrUnknownProtocolDescriptor
	}

	r.lock()
	defer r.unlock()

	count := reqDesc.File().MessageTypeCount()
	if len(r.handlers) < count {
		grown := make([]*TypedHandler, count)
		copy(grown, r.handlers)
		r.handlers = grown
	}

	r.handlers[reqDesc.Index()] = &TypedHandler{
		NewRequest: reqDesc.New,
		NewReply:   repDesc.New,
		Invoke: func(req, rep schema.Instance) error {
			reqPtr, ok := req.Value().(*Req)
			if !ok {
				return errs.ErrUnknownProtocolDescriptor
			}
			repPtr, ok := rep.Value().(*Rep)
			if !ok {
				return errs.ErrUnknownProtocolDescriptor
			}
			return fn(reqPtr, repPtr)
		},
	}
	return nil
}

// BindDynamic installs an already-constructed TypedHandler at reqTypeName's
// schema index, the non-generic counterpart to Bind for callers that only
// learn the (Req, Rep) pair at runtime — e.g. a server scanning a
// receiver's methods by reflection. Sizing and overwrite semantics match
// Bind exactly.
func BindDynamic(r *Registry, facility schema.Facility, reqTypeName, repTypeName string, th *TypedHandler) error {
	reqDesc, ok := facility.FindMessageByName(reqTypeName)
	if !ok {
		return errs.ErrUnknownProtocolDescriptor
	}
	if _, ok := facility.FindMessageByName(repTypeName); !ok {
		return errs.ErrUnknownProtocolDescriptor
	}

	r.lock()
	defer r.unlock()

	count := reqDesc.File().MessageTypeCount()
	if len(r.handlers) < count {
		grown := make([]*TypedHandler, count)
		copy(grown, r.handlers)
		r.handlers = grown
	}
	r.handlers[reqDesc.Index()] = th
	return nil
}

// Lookup resolves typeName through facility and returns the TypedHandler
// bound at its schema index. It fails with errs.ErrUnknownProtocolDescriptor
// if the facility does not know typeName, if the index falls outside the
// registry's current vector, or if no handler was ever bound there.
func (r *Registry) Lookup(facility schema.Facility, typeName string) (*TypedHandler, error) {
	desc, ok := facility.FindMessageByName(typeName)
	if !ok {
		return nil, errs.ErrUnknownProtocolDescriptor
	}

	r.lock()
	defer r.unlock()

	if desc.Index() >= len(r.handlers) {
		return nil, errs.ErrUnknownProtocolDescriptor
	}
	h := r.handlers[desc.Index()]
	if h == nil {
		return nil, errs.ErrUnknownProtocolDescriptor
	}
	return h, nil
}

// Clear drops every bound entry. Called on Service teardown or RPC abort.
func (r *Registry) Clear() {
	r.lock()
	defer r.unlock()
	r.handlers = nil
}
