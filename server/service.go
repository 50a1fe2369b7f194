package server

import (
	"fmt"
	"reflect"

	"duplexrpc/handler"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// methodType describes one exported receiver method suitable for remote
// invocation: func (T) Name(*Args, *Reply) error. reqName/repName are the
// schema names its argument and reply types are registered under; handler
// is the TypedHandler bound onto every accepted connection's registry.
type methodType struct {
	method    reflect.Method
	ArgType   reflect.Type
	ReplyType reflect.Type

	reqName string
	repName string
	handler *handler.TypedHandler
}

// service wraps one registered receiver and the suitable methods discovered
// on it by reflection.
type service struct {
	name    string
	rcvr    reflect.Value
	typ     reflect.Type
	methods map[string]*methodType
}

func newService(rcvr any) (*service, error) {
	s := &service{rcvr: reflect.ValueOf(rcvr)}
	s.typ = reflect.TypeOf(rcvr)
	s.name = reflect.Indirect(s.rcvr).Type().Name()
	if !isExported(s.name) {
		return nil, fmt.Errorf("server: type %q is not exported", s.name)
	}

	s.methods = suitableMethods(s.typ)
	if len(s.methods) == 0 {
		return nil, fmt.Errorf("server: type %q has no exported methods of the form func(*Args, *Reply) error", s.name)
	}
	return s, nil
}

func isExported(name string) bool {
	return name != "" && 'A' <= name[0] && name[0] <= 'Z'
}

// suitableMethods finds every exported method matching
// func (t *T) Name(args *Args, reply *Reply) error.
func suitableMethods(typ reflect.Type) map[string]*methodType {
	methods := make(map[string]*methodType)
	for i := 0; i < typ.NumMethod(); i++ {
		method := typ.Method(i)
		mtype := method.Type
		if !isExported(method.Name) {
			continue
		}
		if mtype.NumIn() != 3 || mtype.NumOut() != 1 {
			continue
		}
		argType, replyType := mtype.In(1), mtype.In(2)
		if argType.Kind() != reflect.Ptr || replyType.Kind() != reflect.Ptr {
			continue
		}
		if mtype.Out(0) != errorType {
			continue
		}
		methods[method.Name] = &methodType{
			method:    method,
			ArgType:   argType.Elem(),
			ReplyType: replyType.Elem(),
		}
	}
	return methods
}

// call invokes m on the receiver with the given, already-populated argument
// and reply reflect.Values (both pointers).
func (s *service) call(m *methodType, argv, replyv reflect.Value) error {
	returnValues := m.method.Func.Call([]reflect.Value{s.rcvr, argv, replyv})
	if errInter := returnValues[0].Interface(); errInter != nil {
		return errInter.(error)
	}
	return nil
}
