//go:build linux

// File: rendezvous/fdpass_unix.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Out-of-band file descriptor passing over a Unix domain socket's control
// channel (SCM_RIGHTS), used after the JSON handshake body to hand the
// client its two doorbell fds without ever writing an fd number into the
// JSON payload itself. The shared-memory segments are not passed here;
// the client opens them by the names the JSON response carries.

package rendezvous

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// sendFDs writes a single zero byte (SCM_RIGHTS requires at least one
// regular byte of payload on most platforms) plus a control message
// carrying fds, in order, over conn.
func sendFDs(conn *net.UnixConn, fds []int) error {
	rights := unix.UnixRights(fds...)
	_, _, err := conn.WriteMsgUnix([]byte{0}, rights, nil)
	if err != nil {
		return fmt.Errorf("sendmsg SCM_RIGHTS: %w", err)
	}
	return nil
}

// recvFDs reads one control message and returns up to want file
// descriptors extracted from it, in the order the sender placed them.
func recvFDs(conn *net.UnixConn, want int) ([]int, error) {
	oob := make([]byte, unix.CmsgSpace(want*4))
	buf := make([]byte, 1)
	_, oobn, _, _, err := conn.ReadMsgUnix(buf, oob)
	if err != nil {
		return nil, fmt.Errorf("recvmsg: %w", err)
	}
	msgs, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return nil, fmt.Errorf("parse control message: %w", err)
	}
	var fds []int
	for _, msg := range msgs {
		parsed, err := unix.ParseUnixRights(&msg)
		if err != nil {
			return nil, fmt.Errorf("parse unix rights: %w", err)
		}
		fds = append(fds, parsed...)
	}
	if len(fds) != want {
		for _, fd := range fds {
			unix.Close(fd)
		}
		return nil, fmt.Errorf("expected %d descriptors, received %d", want, len(fds))
	}
	return fds, nil
}

// peerPID returns the PID of the process on the other end of conn, read
// via SO_PEERCRED. The server records it in the slot's PeerPID; nothing
// checks that PID for liveness.
func peerPID(conn *net.UnixConn) (int32, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, err
	}
	var cred *unix.Ucred
	var ucErr error
	err = raw.Control(func(fd uintptr) {
		cred, ucErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil {
		return 0, err
	}
	if ucErr != nil {
		return 0, ucErr
	}
	return cred.Pid, nil
}
