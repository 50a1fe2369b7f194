// Package schema defines the schema facility the core dispatch engine and
// handler registry consume to name messages and to construct fresh typed
// instances from wire type names. The runtime at this layer never knows the
// concrete type of a request or reply; it only ever holds a Descriptor or an
// Instance and asks the facility to do the typed work.
//
// This mirrors a reflective message-description system such as protobuf's
// descriptor pool: every message type belongs to a governing File, has a
// stable Index within that file, and can be asked to spawn a fresh
// default-valued Instance of itself. The dispatch engine and handler
// registry treat this as an external collaborator; Registry below is the
// reference implementation used by this repository's own tests and examples.
package schema

// FileDescriptor groups message types the way a schema file groups the
// messages it declares. The handler registry sizes its backing vector to
// MessageTypeCount() on first bind.
type FileDescriptor interface {
	Name() string
	MessageTypeCount() int
}

// Descriptor identifies one message type: which file declares it, at which
// dense index, and how to spawn a fresh Instance of it.
type Descriptor interface {
	Index() int
	File() FileDescriptor
	New() Instance
	// Wrap adopts an already-constructed typed pointer (e.g. the reply
	// destination a caller handed to async_call) as an Instance, rather than
	// allocating a fresh one. v must be the same concrete pointer type New
	// would otherwise allocate.
	Wrap(v any) Instance
}

// Instance is a concrete, typed message value the facility knows how to
// serialize and parse. Value returns the underlying typed pointer (e.g.
// *Ping) so callers that know the concrete type at compile time can recover
// it with a type assertion; callers that don't only use TypeName/Serialize/Parse.
type Instance interface {
	TypeName() string
	Serialize() ([]byte, error)
	Parse([]byte) error
	Value() any
}

// Facility is the schema system consumed by the dispatch engine and handler
// registry: name a message, get back everything needed to materialize and
// (de)serialize it.
type Facility interface {
	FindMessageByName(typeName string) (Descriptor, bool)
}
