// File: lapcserver/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Config plus functional ServerOption setters covering the
// registry/rendezvous/pool/session tuning the server needs.

package lapcserver

import (
	"github.com/cortexide/lapc/api"
	"github.com/cortexide/lapc/control"
	"github.com/cortexide/lapc/poolmgr"
	"github.com/cortexide/lapc/rendezvous"
	"github.com/cortexide/lapc/session"
)

// Config aggregates every tunable a Server needs: the registry's starting
// slot count, the rendezvous listener's ring-size limits, the pool
// manager's scaling/health thresholds, and the per-session defaults
// handed to every accepted connection.
type Config struct {
	RegistryCapacity int
	Rendezvous       rendezvous.Config
	Pool             poolmgr.Config
	Session          session.Config

	Log     api.LogSink
	Debug   *control.DebugProbes
	Control api.Control
}

const defaultRegistryCapacity = 256

// DefaultConfig returns the defaults ServerBind applies before ServerOption
// overrides.
func DefaultConfig() Config {
	capacity := defaultRegistryCapacity
	return Config{
		RegistryCapacity: capacity,
		Rendezvous: rendezvous.Config{
			MaxRingBytes:     64 << 20,
			DefaultRingBytes: 1 << 20,
		},
		Pool:    poolmgr.DefaultConfig(capacity),
		Session: session.DefaultConfig(),
	}
}

// ServerOption customizes a Config before ServerBind constructs a Server.
type ServerOption func(*Config)

// WithLog routes every component's logging through sink.
func WithLog(sink api.LogSink) ServerOption {
	return func(c *Config) {
		c.Log = sink
		c.Rendezvous.Log = sink
		c.Pool.Log = sink
		c.Session.Log = sink
	}
}

// WithRegistryCapacity overrides the registry's starting slot count. Also
// sets Pool.MaxConnections to n, so the pool grows the registry past n
// only if a later option (such as WithPoolConfig) raises MaxConnections.
func WithRegistryCapacity(n int) ServerOption {
	return func(c *Config) {
		c.RegistryCapacity = n
		c.Pool.MaxConnections = n
	}
}

// WithMaxRingBytes caps the ring size a client may request during its
// handshake.
func WithMaxRingBytes(n int) ServerOption {
	return func(c *Config) { c.Rendezvous.MaxRingBytes = n }
}

// WithDefaultRingBytes sets the ring size used when a client's handshake
// does not request one explicitly.
func WithDefaultRingBytes(n int) ServerOption {
	return func(c *Config) { c.Rendezvous.DefaultRingBytes = n }
}

// WithPoolConfig overrides the adaptive pool's sizing/health thresholds
// wholesale.
func WithPoolConfig(cfg poolmgr.Config) ServerOption {
	return func(c *Config) { c.Pool = cfg }
}

// WithSessionConfig overrides the per-session defaults handed to every
// accepted connection.
func WithSessionConfig(cfg session.Config) ServerOption {
	return func(c *Config) { c.Session = cfg }
}

// WithDebugProbes registers the server's slot-table and pool snapshots
// under dp, reachable via cmd/lapcd probe.
func WithDebugProbes(dp *control.DebugProbes) ServerOption {
	return func(c *Config) { c.Debug = dp }
}

// WithControl attaches the api.Control facade a host binary built over its
// own ConfigStore/MetricsRegistry/DebugProbes, making it reachable from
// Server.GetControl.
func WithControl(ctrl api.Control) ServerOption {
	return func(c *Config) { c.Control = ctrl }
}

// WithExecutor runs every accepted session's recv/heartbeat loops as
// tasks submitted to exec instead of one raw goroutine apiece. exec is
// shared across every slot the server accepts, so it needs at least two
// workers per slot the registry can hold (one per loop) to avoid one
// session's blocking recv loop starving another's heartbeat.
func WithExecutor(exec api.Executor) ServerOption {
	return func(c *Config) { c.Session.Executor = exec }
}
