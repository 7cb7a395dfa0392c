// File: rendezvous/handshake.go
// Package rendezvous implements the control-plane protocol: a Unix
// domain socket listener that a client dials once to negotiate a
// dedicated shared-memory ring pair and doorbell descriptors, then never
// touches again for the lifetime of the session.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The handshake is a single round trip: JSON request and response lines,
// with the doorbell descriptors carried in an out-of-band SCM_RIGHTS cmsg
// alongside the response.

package rendezvous

import "fmt"

// ProtocolVersion is bumped whenever HandshakeRequest or HandshakeResponse's
// wire shape changes incompatibly.
const ProtocolVersion = 1

// HandshakeRequest is sent by the client immediately after connecting to
// the rendezvous socket, JSON-encoded with a newline terminator.
type HandshakeRequest struct {
	ProtocolVersion int    `json:"protocol_version"`
	ClientName      string `json:"client_name"`
	RequestedRing   int    `json:"requested_ring_bytes"`
}

// HandshakeResponse is sent by the server in reply. On success, Accepted is
// true, Slot identifies the allocated registry slot, ServerRingName and
// ClientRingName name the two shared-memory segments the caller opens
// independently via shm.Open, and the caller then reads two file
// descriptors off the same connection via SCM_RIGHTS, in the fixed order
// [server's send doorbell, server's recv doorbell] (Linux only; see
// fdpass_unix.go). The client attaches them crossed — the peer's send
// bell is its recv bell and vice versa — so each Signal lands on the
// eventfd the opposite endpoint is waiting on.
type HandshakeResponse struct {
	ProtocolVersion int    `json:"protocol_version"`
	Accepted        bool   `json:"accepted"`
	RejectReason    string `json:"reject_reason,omitempty"`
	Slot            uint32 `json:"slot"`
	Generation      uint32 `json:"generation"`
	RingBytes       int    `json:"ring_bytes"`
	ServerRingName  string `json:"server_ring_name"`
	ClientRingName  string `json:"client_ring_name"`
}

// Validate checks a decoded HandshakeRequest for protocol compatibility and
// a sane requested ring size, without yet touching the registry.
func (r HandshakeRequest) Validate(maxRingBytes int) error {
	if r.ProtocolVersion != ProtocolVersion {
		return fmt.Errorf("handshake protocol version %d unsupported, want %d", r.ProtocolVersion, ProtocolVersion)
	}
	if r.RequestedRing <= 0 {
		return fmt.Errorf("requested_ring_bytes must be positive, got %d", r.RequestedRing)
	}
	if r.RequestedRing > maxRingBytes {
		return fmt.Errorf("requested_ring_bytes %d exceeds server maximum %d", r.RequestedRing, maxRingBytes)
	}
	return nil
}
