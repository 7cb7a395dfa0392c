//go:build !linux

// File: rendezvous/fdpass_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// On platforms other than Linux there is no SCM_RIGHTS-style descriptor
// passing and no peer-credential lookup: all three calls return
// api.ErrNotSupported. Server.handle ignores the peerPID error (the slot
// records PID 0), and its shm.Create call fails on those platforms too,
// so the handshake is rejected before sendFDs is reached; a client's Dial
// fails at recvFDs.

package rendezvous

import (
	"net"

	"github.com/cortexide/lapc/api"
)

func sendFDs(conn *net.UnixConn, fds []int) error {
	return api.ErrNotSupported
}

func recvFDs(conn *net.UnixConn, want int) ([]int, error) {
	return nil, api.ErrNotSupported
}

func peerPID(conn *net.UnixConn) (int32, error) {
	return 0, api.ErrNotSupported
}
