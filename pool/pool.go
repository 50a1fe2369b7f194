// Package pool spreads outbound calls across several equivalent Service
// connections to one peer: several duplex connections instead of one, so a
// slow in-flight call on one connection never head-of-line blocks another.
//
// This layer is additive on top of the single-connection dispatch engine;
// a Service itself remains unaware that it is one of several a Pool holds.
package pool

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"duplexrpc/config"
	"duplexrpc/loadbalance"
	"duplexrpc/rpcservice"
)

// DialFunc creates one new connection to the pool's peer.
type DialFunc func() (*rpcservice.Service, error)

// Pool owns a small set of Service connections to one peer, dialed lazily
// up to size and then spread across with a Balancer.
type Pool struct {
	mu       sync.Mutex
	dial     DialFunc
	size     int
	conns    []*rpcservice.Service
	balancer loadbalance.Balancer[*rpcservice.Service]
	logger   *zap.Logger
}

// Option configures a Pool at construction time.
type Option func(*Pool)

// WithBalancer overrides the default round-robin strategy.
func WithBalancer(b loadbalance.Balancer[*rpcservice.Service]) Option {
	return func(p *Pool) { p.balancer = b }
}

// WithLogger attaches a structured logger for dial/discard events.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a Pool that dials up to size connections via dial, balancing
// across whatever subset is currently live with a round-robin strategy
// unless WithBalancer overrides it.
func New(size int, dial DialFunc, opts ...Option) *Pool {
	p := &Pool{
		dial:     dial,
		size:     size,
		balancer: &loadbalance.RoundRobinBalancer[*rpcservice.Service]{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewFromConfig builds a Pool sized and balanced the way cfg describes. The
// consistent-hash strategy is rejected here: it picks by an explicit key,
// not from a plain list, so it doesn't implement loadbalance.Balancer and
// cannot back a Pool's list-based Get — callers wanting consistent hashing
// should drive a loadbalance.ConsistentHashBalancer directly instead of
// going through a Pool.
func NewFromConfig(cfg config.Config, dial DialFunc, opts ...Option) (*Pool, error) {
	var balancer loadbalance.Balancer[*rpcservice.Service]
	switch cfg.Balancer {
	case config.BalancerRoundRobin:
		balancer = &loadbalance.RoundRobinBalancer[*rpcservice.Service]{}
	case config.BalancerWeightedRandom:
		balancer = loadbalance.NewWeightedRandomBalancer(func(svc *rpcservice.Service) int {
			// Fewer outstanding calls means more weight: a connection with
			// zero pending calls is 1000x as likely to be picked as one
			// with 999 in flight.
			return 1000 / (1 + svc.PendingCalls())
		})
	case config.BalancerConsistentHash:
		return nil, fmt.Errorf("pool: consistent_hash balancer needs a per-call key; use loadbalance.ConsistentHashBalancer directly")
	default:
		return nil, fmt.Errorf("pool: unknown balancer strategy %q", cfg.Balancer)
	}

	all := append([]Option{WithBalancer(balancer)}, opts...)
	return New(cfg.PoolSize, dial, all...), nil
}

// Get returns a live Service: while the pool has not yet reached its
// configured size, Get dials a fresh connection; once full, it balances
// across the existing set.
func (p *Pool) Get() (*rpcservice.Service, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.conns) < p.size {
		svc, err := p.dial()
		if err != nil {
			return nil, fmt.Errorf("pool: dial failed: %w", err)
		}
		p.conns = append(p.conns, svc)
		p.logger.Debug("pool: dialed connection", zap.Int("live", len(p.conns)))
		return svc, nil
	}

	if len(p.conns) == 0 {
		return nil, fmt.Errorf("pool: no connections available and size is 0")
	}
	return p.balancer.Pick(p.conns)
}

// Discard removes svc from the pool, e.g. after its connection aborted. The
// next Get dials a fresh replacement to take its place.
func (p *Pool) Discard(svc *rpcservice.Service) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, c := range p.conns {
		if c == svc {
			p.conns = append(p.conns[:i], p.conns[i+1:]...)
			p.logger.Info("pool: discarded aborted connection", zap.Int("live", len(p.conns)))
			return
		}
	}
}

// Len reports how many connections are currently live.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}
