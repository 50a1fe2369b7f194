// Package server hosts reflection-registered receivers over a listener,
// binding each exported "Method(*Args, *Reply) error" as a callee handler
// on every accepted duplex connection.
//
// Request processing pipeline:
//
//	Accept conn -> handleConn (single goroutine reads frames)
//	  -> per frame: Service.Dispatch -> registry lookup -> interceptor chain -> reflect.Call -> write reply
package server

import (
	"context"
	"fmt"
	"net"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"duplexrpc/config"
	"duplexrpc/handler"
	"duplexrpc/middleware"
	"duplexrpc/registry"
	"duplexrpc/rpcservice"
	"duplexrpc/schema"
	"duplexrpc/transport"
)

// Server registers receivers and accepts duplex connections, binding a
// fresh rpcservice.Service per connection against the same schema facility
// and set of reflected methods.
type Server struct {
	facility    *schema.Registry
	serviceMap  map[string]*service
	listener    net.Listener
	wg          sync.WaitGroup
	shutdown    atomic.Bool
	interceptor middleware.Interceptor
	logger      *zap.Logger

	writeQueueCapacityHint int
	leaseTTL               time.Duration

	reg           registry.Registry
	advertiseAddr string

	conns sync.Map // net.Conn -> *rpcservice.Service, tracked for diagnostics
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithLogger attaches a structured logger, threaded through every accepted
// connection's Service.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCodec overrides the JSON default the server's schema facility
// serializes registered message types with.
func WithCodec(c schema.Codec) Option {
	return func(s *Server) { s.facility = schema.NewRegistry(c) }
}

// WithWriteQueueCapacityHint pre-sizes every accepted connection's write
// queue to n pending buffers, avoiding reallocation under typical
// concurrent write fan-in. Zero (the default) lets each queue grow on
// demand.
func WithWriteQueueCapacityHint(n int) Option {
	return func(s *Server) { s.writeQueueCapacityHint = n }
}

// WithLeaseTTL sets how long an announced connection survives in the
// registry without a renewed KeepAlive before it expires. The default is
// 10 seconds.
func WithLeaseTTL(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.leaseTTL = d
		}
	}
}

// NewServer creates a Server with an empty service map and a JSON schema
// facility.
func NewServer(opts ...Option) *Server {
	s := &Server{
		facility:   schema.NewRegistry(schema.JSONCodec{}),
		serviceMap: make(map[string]*service),
		logger:     zap.NewNop(),
		leaseTTL:   10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewServerFromConfig builds a Server whose codec, write queue sizing, and
// connection-directory lease TTL come from cfg, with any additional opts
// layered on top.
func NewServerFromConfig(cfg config.Config, opts ...Option) (*Server, error) {
	codec, err := cfg.Codec.NewCodec()
	if err != nil {
		return nil, err
	}
	all := append([]Option{
		WithCodec(codec),
		WithWriteQueueCapacityHint(cfg.WriteQueueCapacityHint),
		WithLeaseTTL(cfg.LeaseTTL),
	}, opts...)
	return NewServer(all...), nil
}

// Use installs interceptors around every bound handler invocation,
// composed in the onion order middleware.Chain describes.
func (svr *Server) Use(interceptors ...middleware.Interceptor) {
	svr.interceptor = middleware.Chain(interceptors...)
}

// Register scans rcvr's exported methods of shape func(*Args, *Reply) error
// and registers each argument/reply pair into the server's schema facility
// under "ServiceName.MethodName.Args" / ".Reply". Every future accepted
// connection binds all of them.
func (svr *Server) Register(rcvr any) error {
	svc, err := newService(rcvr)
	if err != nil {
		return err
	}

	for name, m := range svc.methods {
		fq := svc.name + "." + name
		m.reqName = fq + ".Args"
		m.repName = fq + ".Reply"

		reqDesc := schema.RegisterType(svr.facility, svc.name, m.reqName, m.ArgType)
		repDesc := schema.RegisterType(svr.facility, svc.name, m.repName, m.ReplyType)

		m.handler = &handler.TypedHandler{
			NewRequest: reqDesc.New,
			NewReply:   repDesc.New,
			Invoke:     svr.invoker(svc, m),
		}
	}

	svr.serviceMap[svc.name] = svc
	return nil
}

// invoker bridges a reflected method call into handler.TypedHandler.Invoke,
// running it through the server's interceptor chain if one is installed.
// The chain is resolved on every call, not captured at Register time, so
// Use may be called either before or after Register and still take effect.
func (svr *Server) invoker(svc *service, m *methodType) func(req, rep schema.Instance) error {
	base := func(ctx context.Context, req, rep schema.Instance) error {
		return svc.call(m, reflect.ValueOf(req.Value()), reflect.ValueOf(rep.Value()))
	}
	return func(req, rep schema.Instance) error {
		h := base
		if svr.interceptor != nil {
			h = svr.interceptor(base)
		}
		return h(context.Background(), req, rep)
	}
}

// Serve listens on address and accepts connections until Shutdown. Every
// accepted connection is announced in reg — keyed by the connecting peer's
// remote address — as a live connection this node holds, advertised under
// advertiseAddr so another node can route work to it instead of dialing
// the peer itself. Pass a nil reg to skip the connection directory
// entirely.
func (svr *Server) Serve(network, address, advertiseAddr string, reg registry.Registry) error {
	listener, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	svr.listener = listener
	svr.advertiseAddr = advertiseAddr
	svr.reg = reg

	for {
		conn, err := listener.Accept()
		if err != nil {
			if svr.shutdown.Load() {
				return nil
			}
			return err
		}
		svr.wg.Add(1)
		go svr.handleConn(conn)
	}
}

// handleConn wraps conn in the length-prefix duplex transport, binds every
// registered method onto a fresh Service, announces the connection in the
// directory for as long as it stays open, and drives its read loop until
// the connection closes or aborts.
func (svr *Server) handleConn(conn net.Conn) {
	defer svr.wg.Done()
	defer conn.Close()

	peerID := conn.RemoteAddr().String()
	if svr.reg != nil {
		ttl := int64(svr.leaseTTL.Seconds())
		if err := svr.reg.Announce(peerID, registry.PeerConnection{NodeAddr: svr.advertiseAddr}, ttl); err != nil {
			svr.logger.Error("failed to announce connection", zap.String("peer", peerID), zap.Error(err))
		}
		defer func() {
			if err := svr.reg.Withdraw(peerID, svr.advertiseAddr); err != nil {
				svr.logger.Error("failed to withdraw connection", zap.String("peer", peerID), zap.Error(err))
			}
		}()
	}

	pipe := transport.NewPipeConn(conn)
	tr := transport.NewConnTransport(pipe, nil)
	svc := rpcservice.New(tr, svr.facility,
		rpcservice.WithLogger(svr.logger),
		rpcservice.WithWriteQueueCapacityHint(svr.writeQueueCapacityHint))

	for _, s := range svr.serviceMap {
		for _, m := range s.methods {
			if err := rpcservice.BindDynamic(svc, m.reqName, m.repName, m.handler); err != nil {
				svr.logger.Error("bind failed", zap.String("message", m.reqName), zap.Error(err))
			}
		}
	}

	svr.conns.Store(conn, svc)
	defer svr.conns.Delete(conn)

	for {
		frame, err := pipe.ReadMessage()
		if err != nil {
			return
		}
		if _, derr := svc.Dispatch(frame); derr != nil {
			return
		}
	}
}

// Addr returns the listener's bound address. Only valid once Serve has
// started listening; primarily useful in tests that bind to ":0".
func (svr *Server) Addr() net.Addr {
	return svr.listener.Addr()
}

// Shutdown stops accepting new connections and waits up to timeout for
// in-flight connections to close; each one withdraws its own directory
// entry as it closes.
func (svr *Server) Shutdown(timeout time.Duration) error {
	svr.shutdown.Store(true)
	if svr.listener != nil {
		svr.listener.Close()
	}

	done := make(chan struct{})
	go func() {
		svr.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("server: timeout waiting for connections to close")
	}
}
