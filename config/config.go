// Package config holds the plain-struct runtime configuration for a duplex
// RPC deployment: which wire codec to serialize messages with, how many
// pending buffers to pre-size the write queue for, and the pool/balancer
// shape a multi-connection client uses. It is loaded from flags or
// environment variables directly, with no third-party CLI framework.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"duplexrpc/registry"
	"duplexrpc/schema"
)

// Codec names the wire serialization format a schema.Registry uses.
type Codec string

const (
	CodecJSON   Codec = "json"
	CodecBinary Codec = "binary"
)

// BalancerStrategy names a loadbalance.Balancer implementation a pool.Pool
// picks connections with.
type BalancerStrategy string

const (
	BalancerRoundRobin     BalancerStrategy = "round_robin"
	BalancerWeightedRandom BalancerStrategy = "weighted_random"
	BalancerConsistentHash BalancerStrategy = "consistent_hash"
)

// Config is the process-wide configuration a server or pooled client reads
// once at startup.
type Config struct {
	// Codec picks the schema facility's serialization format.
	Codec Codec

	// WriteQueueCapacityHint pre-sizes a Queue's pending buffer slice, to
	// avoid reallocation under a connection's typical concurrent write
	// fan-in. Zero means let the slice grow on demand.
	WriteQueueCapacityHint int

	// PoolSize is how many connections a pool.Pool dials to one peer.
	PoolSize int

	// Balancer selects the pool's load balancing strategy.
	Balancer BalancerStrategy

	// EtcdEndpoints is the connection directory's backing etcd cluster.
	EtcdEndpoints []string

	// LeaseTTL is how long a connection-directory announcement survives
	// without a renewed KeepAlive before etcd expires it.
	LeaseTTL time.Duration
}

// Default returns the configuration a bare invocation with no flags or
// environment overrides would produce.
func Default() Config {
	return Config{
		Codec:                  CodecJSON,
		WriteQueueCapacityHint: 0,
		PoolSize:               4,
		Balancer:               BalancerRoundRobin,
		EtcdEndpoints:          []string{"127.0.0.1:2379"},
		LeaseTTL:               10 * time.Second,
	}
}

// FromFlags parses args (typically os.Args[1:]) into a Config seeded from
// Default, then applies any DUPLEXRPC_* environment overrides on top of
// the parsed flags — env wins, the way a container orchestrator expects to
// override a baked-in flag default.
func FromFlags(args []string) (Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet("duplexrpc", flag.ContinueOnError)
	codec := fs.String("codec", string(cfg.Codec), "wire codec: json or binary")
	poolSize := fs.Int("pool-size", cfg.PoolSize, "number of connections a pool dials to one peer")
	balancer := fs.String("balancer", string(cfg.Balancer), "round_robin, weighted_random, or consistent_hash")
	writeQueueHint := fs.Int("write-queue-hint", cfg.WriteQueueCapacityHint, "initial write queue capacity hint")
	leaseTTL := fs.Duration("lease-ttl", cfg.LeaseTTL, "connection directory lease TTL")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.Codec = Codec(*codec)
	cfg.PoolSize = *poolSize
	cfg.Balancer = BalancerStrategy(*balancer)
	cfg.WriteQueueCapacityHint = *writeQueueHint
	cfg.LeaseTTL = *leaseTTL

	if v := os.Getenv("DUPLEXRPC_ETCD_ENDPOINTS"); v != "" {
		cfg.EtcdEndpoints = splitCSV(v)
	}
	if v := os.Getenv("DUPLEXRPC_CODEC"); v != "" {
		cfg.Codec = Codec(v)
	}

	if cfg.Codec != CodecJSON && cfg.Codec != CodecBinary {
		return Config{}, fmt.Errorf("config: unknown codec %q", cfg.Codec)
	}
	if cfg.PoolSize < 1 {
		return Config{}, fmt.Errorf("config: pool-size must be >= 1, got %d", cfg.PoolSize)
	}

	return cfg, nil
}

// NewRegistry builds the connection directory client this Config's
// EtcdEndpoints point at.
func (c Config) NewRegistry() (registry.Registry, error) {
	return registry.NewEtcdRegistry(c.EtcdEndpoints)
}

// NewCodec builds the schema.Codec named by c.
func (c Codec) NewCodec() (schema.Codec, error) {
	switch c {
	case CodecJSON:
		return schema.JSONCodec{}, nil
	case CodecBinary:
		return schema.BinaryCodec{}, nil
	default:
		return nil, fmt.Errorf("config: unknown codec %q", c)
	}
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
