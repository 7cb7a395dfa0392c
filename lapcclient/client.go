// File: lapcclient/client.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package lapcclient is the client-side counterpart to lapcserver: it
// dials a Server's control socket, completes the handshake, and returns
// a ready-to-use session.Session.

package lapcclient

import (
	"fmt"

	"github.com/cortexide/lapc/api"
	"github.com/cortexide/lapc/rendezvous"
	"github.com/cortexide/lapc/session"
)

// ClientConnect dials the server bound at basePath, negotiates a ring and
// doorbell pair, and wraps them in a session.Session. The returned
// session's Close also tears down the dialed ring/doorbell handles.
func ClientConnect(basePath string, opts ...ClientOption) (*session.Session, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Log == nil {
		cfg.Log = api.NoopLogSink{}
	}
	if cfg.Session.Log == nil {
		cfg.Session.Log = cfg.Log
	}

	dialed, err := rendezvous.Dial(basePath, cfg.ClientName, cfg.RequestedRingBytes)
	if err != nil {
		return nil, fmt.Errorf("lapcclient: %w", err)
	}

	sess := session.New(
		dialed.ClientToRing,
		dialed.ServerToRing,
		dialed.SendBell,
		dialed.RecvBell,
		cfg.Session,
		func() { _ = dialed.Close() },
	)

	cfg.Log.Infof("lapcclient: connected as %q slot %d generation %d",
		cfg.ClientName, dialed.Slot, dialed.Generation)

	return sess, nil
}
