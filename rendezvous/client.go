// File: rendezvous/client.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package rendezvous

import (
	"encoding/json"
	"fmt"
	"net"

	"github.com/cortexide/lapc/doorbell"
	"github.com/cortexide/lapc/ring"
	"github.com/cortexide/lapc/shm"
)

// Dialed is what a successful Dial hands back to the caller: a ring pair
// opened against the server's shared-memory segments, plus the doorbell
// pair the server created for this connection.
type Dialed struct {
	Slot           uint32
	Generation     uint32
	ServerToRing   *ring.Ring        // client reads from this ring
	ClientToRing   *ring.Ring        // client writes to this ring
	SendBell       doorbell.Doorbell // signaled after a ClientToRing write; the server waits on it
	RecvBell       doorbell.Doorbell // waited on for ServerToRing data; the server signals it
	serverSegment  shm.Segment
	clientSegment  shm.Segment
}

// Close releases the client's view of the shared-memory segments and
// doorbells. It does not unlink the segments; only the server that
// created them does that, once the slot is released.
func (d *Dialed) Close() error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	record(d.SendBell.Close())
	record(d.RecvBell.Close())
	if d.serverSegment != nil {
		record(d.serverSegment.Close())
	}
	if d.clientSegment != nil {
		record(d.clientSegment.Close())
	}
	return firstErr
}

// Dial connects to a Server bound at basePath, performs the handshake,
// and attaches to the negotiated ring pair and doorbells.
func Dial(basePath string, clientName string, requestedRingBytes int) (*Dialed, error) {
	addr, err := net.ResolveUnixAddr("unix", controlPath(basePath))
	if err != nil {
		return nil, fmt.Errorf("resolve control path: %w", err)
	}
	conn, err := net.DialUnix("unix", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial control socket: %w", err)
	}
	defer conn.Close()

	req := HandshakeRequest{
		ProtocolVersion: ProtocolVersion,
		ClientName:      clientName,
		RequestedRing:   requestedRingBytes,
	}
	if err := writeHandshakeRequest(conn, req); err != nil {
		return nil, fmt.Errorf("send handshake request: %w", err)
	}

	resp, err := readHandshakeResponse(conn)
	if err != nil {
		return nil, fmt.Errorf("read handshake response: %w", err)
	}
	if !resp.Accepted {
		return nil, fmt.Errorf("handshake rejected: %s", resp.RejectReason)
	}

	fds, err := recvFDs(conn, 2)
	if err != nil {
		return nil, fmt.Errorf("receive doorbell fds: %w", err)
	}
	// The server transmits [its send bell, its recv bell], and the pair is
	// crossed here: the server signals its send bell when s2c data lands,
	// so that descriptor is what this side's recv loop must wait on, and
	// the server waits on its recv bell for c2s data, so that descriptor
	// is what this side's writes must signal. Attaching them straight
	// through would leave both endpoints signaling an eventfd nobody
	// waits on.
	recvBell, err := doorbell.Open(uintptr(fds[0]))
	if err != nil {
		return nil, fmt.Errorf("open recv doorbell: %w", err)
	}
	sendBell, err := doorbell.Open(uintptr(fds[1]))
	if err != nil {
		recvBell.Close()
		return nil, fmt.Errorf("open send doorbell: %w", err)
	}

	serverSeg, err := shm.Open(resp.ServerRingName)
	if err != nil {
		sendBell.Close()
		recvBell.Close()
		return nil, fmt.Errorf("open server ring segment: %w", err)
	}
	clientSeg, err := shm.Open(resp.ClientRingName)
	if err != nil {
		sendBell.Close()
		recvBell.Close()
		serverSeg.Close()
		return nil, fmt.Errorf("open client ring segment: %w", err)
	}

	serverToRing, err := ring.Open(serverSeg.Bytes())
	if err != nil {
		return nil, err
	}
	clientToRing, err := ring.Open(clientSeg.Bytes())
	if err != nil {
		return nil, err
	}

	return &Dialed{
		Slot:          resp.Slot,
		Generation:    resp.Generation,
		ServerToRing:  serverToRing,
		ClientToRing:  clientToRing,
		SendBell:      sendBell,
		RecvBell:      recvBell,
		serverSegment: serverSeg,
		clientSegment: clientSeg,
	}, nil
}

func writeHandshakeRequest(conn *net.UnixConn, req HandshakeRequest) error {
	line, err := json.Marshal(req)
	if err != nil {
		return err
	}
	line = append(line, '\n')
	_, err = conn.Write(line)
	return err
}

func readHandshakeResponse(conn *net.UnixConn) (HandshakeResponse, error) {
	// Read one byte at a time so nothing past the newline is consumed: the
	// byte after it carries the SCM_RIGHTS doorbell fds recvFDs reads.
	var line []byte
	var b [1]byte
	for len(line) == 0 || line[len(line)-1] != '\n' {
		n, err := conn.Read(b[:])
		if err != nil {
			return HandshakeResponse{}, err
		}
		line = append(line, b[:n]...)
	}
	var resp HandshakeResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return HandshakeResponse{}, err
	}
	return resp, nil
}
