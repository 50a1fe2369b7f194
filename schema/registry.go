package schema

import (
	"fmt"
	"reflect"
	"sync"
)

// Registry is the reference Facility implementation. Message types are
// registered up front — typically from a package init(), the way generated
// protobuf code populates protoregistry.GlobalFiles — so that by the time the
// handler registry asks for a file's MessageTypeCount() the answer is
// already stable.
type Registry struct {
	mu    sync.RWMutex
	codec Codec
	byName map[string]*descriptor
	files  map[string]*fileDescriptor
}

// NewRegistry creates an empty Registry that serializes messages with codec.
func NewRegistry(codec Codec) *Registry {
	if codec == nil {
		codec = JSONCodec{}
	}
	return &Registry{
		codec:  codec,
		byName: make(map[string]*descriptor),
		files:  make(map[string]*fileDescriptor),
	}
}

type fileDescriptor struct {
	name  string
	count int
}

func (f *fileDescriptor) Name() string          { return f.name }
func (f *fileDescriptor) MessageTypeCount() int { return f.count }

type descriptor struct {
	index    int
	file     *fileDescriptor
	typeName string
	new      func() Instance
	wrap     func(v any) Instance
}

func (d *descriptor) Index() int           { return d.index }
func (d *descriptor) File() FileDescriptor { return d.file }
func (d *descriptor) New() Instance        { return d.new() }
func (d *descriptor) Wrap(v any) Instance  { return d.wrap(v) }

// Register adds message type T, named typeName, to file, and returns its
// Descriptor. Index is assigned densely within file in registration order,
// mirroring a generated message_type_count/index pair. Registering the same
// typeName twice is a programmer error and panics, the way re-registering a
// protobuf message name with the global pool does.
func Register[T any](r *Registry, file string, typeName string) Descriptor {
	return r.register(file, typeName, func() Instance {
		return newInstance[T](typeName, r.codec)
	}, func(v any) Instance {
		ptr, ok := v.(*T)
		if !ok {
			panic(fmt.Sprintf("schema: Wrap(%T) does not match registered type %q", v, typeName))
		}
		return &instance[T]{typeName: typeName, value: ptr, codec: r.codec}
	})
}

// RegisterType is the reflection-driven counterpart to Register, for
// callers that only learn a message's Go type at runtime — e.g. a server
// scanning a receiver's methods the way server.Service does. t must be a
// struct type (not a pointer); New/Wrap both operate on *t.
func RegisterType(r *Registry, file, typeName string, t reflect.Type) Descriptor {
	return r.register(file, typeName, func() Instance {
		return &dynInstance{typeName: typeName, value: reflect.New(t).Interface(), codec: r.codec}
	}, func(v any) Instance {
		return &dynInstance{typeName: typeName, value: v, codec: r.codec}
	})
}

func (r *Registry) register(file, typeName string, newFn func() Instance, wrapFn func(any) Instance) Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[typeName]; exists {
		panic(fmt.Sprintf("schema: message %q already registered", typeName))
	}

	f, ok := r.files[file]
	if !ok {
		f = &fileDescriptor{name: file}
		r.files[file] = f
	}

	d := &descriptor{
		index:    f.count,
		file:     f,
		typeName: typeName,
		new:      newFn,
		wrap:     wrapFn,
	}
	f.count++
	r.byName[typeName] = d
	return d
}

// FindMessageByName implements Facility.
func (r *Registry) FindMessageByName(typeName string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byName[typeName]
	return d, ok
}

type instance[T any] struct {
	typeName string
	value    *T
	codec    Codec
}

func newInstance[T any](typeName string, codec Codec) Instance {
	return &instance[T]{typeName: typeName, value: new(T), codec: codec}
}

func (i *instance[T]) TypeName() string { return i.typeName }
func (i *instance[T]) Value() any       { return i.value }

func (i *instance[T]) Serialize() ([]byte, error) {
	return i.codec.Encode(i.value)
}

func (i *instance[T]) Parse(data []byte) error {
	return i.codec.Decode(data, i.value)
}

// dynInstance is the non-generic Instance used by RegisterType: value is
// already the concrete *T the caller supplied (or that reflect.New
// produced), discovered only at runtime.
type dynInstance struct {
	typeName string
	value    any
	codec    Codec
}

func (i *dynInstance) TypeName() string { return i.typeName }
func (i *dynInstance) Value() any       { return i.value }

func (i *dynInstance) Serialize() ([]byte, error) {
	return i.codec.Encode(i.value)
}

func (i *dynInstance) Parse(data []byte) error {
	return i.codec.Decode(data, i.value)
}

// NameOf derives the fully-qualified schema name of T the way this
// repository's default Registry expects it to be registered: the Go
// package path joined with the type name, e.g. "duplexrpc/examples.Ping".
// Callers are free to register under a different name; NameOf is a
// convenience for the common case.
func NameOf[T any]() string {
	var zero T
	t := reflect.TypeOf(zero)
	return t.PkgPath() + "." + t.Name()
}
