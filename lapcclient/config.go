// File: lapcclient/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Same Config/Option shape as lapcserver/config.go, cut down to what a
// single client connection needs: a client name, a requested ring size,
// and per-session tuning.

package lapcclient

import (
	"github.com/cortexide/lapc/api"
	"github.com/cortexide/lapc/session"
)

// Config controls how ClientConnect dials and what Session it hands back.
type Config struct {
	ClientName         string
	RequestedRingBytes int
	Session            session.Config

	Log api.LogSink
}

// DefaultConfig returns the defaults ClientConnect applies before
// ClientOption overrides. RequestedRingBytes of zero asks the server for
// its configured default ring size.
func DefaultConfig() Config {
	return Config{
		ClientName: "lapc-client",
		Session:    session.DefaultConfig(),
	}
}

// ClientOption customizes a Config before ClientConnect dials.
type ClientOption func(*Config)

// WithClientName sets the name reported to the server during handshake,
// surfaced in its registry.Slot for diagnostics.
func WithClientName(name string) ClientOption {
	return func(c *Config) { c.ClientName = name }
}

// WithRequestedRingBytes asks the server for a specific ring size. The
// server rejects the handshake if it exceeds its configured maximum.
func WithRequestedRingBytes(n int) ClientOption {
	return func(c *Config) { c.RequestedRingBytes = n }
}

// WithSessionConfig overrides the session defaults applied to the
// resulting connection.
func WithSessionConfig(cfg session.Config) ClientOption {
	return func(c *Config) { c.Session = cfg }
}

// WithLog routes session logging through sink.
func WithLog(sink api.LogSink) ClientOption {
	return func(c *Config) {
		c.Log = sink
		c.Session.Log = sink
	}
}
