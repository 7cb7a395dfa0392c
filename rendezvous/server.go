// File: rendezvous/server.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package rendezvous

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/cortexide/lapc/api"
	"github.com/cortexide/lapc/doorbell"
	"github.com/cortexide/lapc/registry"
	"github.com/cortexide/lapc/ring"
	"github.com/cortexide/lapc/shm"
)

// Config controls how a Server allocates rings and reports itself.
type Config struct {
	// MaxRingBytes rejects any HandshakeRequest asking for more.
	MaxRingBytes int

	// DefaultRingBytes is used when a request's RequestedRing is zero.
	DefaultRingBytes int

	Log api.LogSink
}

// Accepted is delivered to the server's owner for every successfully
// negotiated connection, carrying everything needed to drive the ring
// pair from the server side.
type Accepted struct {
	Slot         *registry.Slot
	ServerToRing *ring.Ring        // server writes, client reads
	ClientToRing *ring.Ring        // client writes, server reads
	SendBell     doorbell.Doorbell // server signals after a ServerToRing write; the client waits on it
	RecvBell     doorbell.Doorbell // server waits for ClientToRing data; the client signals it

	serverSegment shm.Creator
	clientSegment shm.Creator
}

// Server listens on a Unix domain socket at basePath+".ctl" and completes
// a handshake for each connecting client: allocate a
// registry slot, create a ring pair in shared memory, create a doorbell
// pair, and hand the client back everything it needs to attach.
type Server struct {
	basePath string
	cfg      Config
	reg      *registry.Registry
	listener *net.UnixListener

	accepted chan Accepted

	closeOnce sync.Once
}

// segmentSeq numbers shared-memory segment names process-wide, so two
// Servers in one process whose base paths share a file name never reuse
// a segment name the other still holds.
var segmentSeq uint64

// Bind creates the control socket, removing any stale file left behind by
// a crashed prior instance, and sets its permissions to 0600 so only the
// owning user's processes can connect.
func Bind(basePath string, reg *registry.Registry, cfg Config) (*Server, error) {
	if cfg.Log == nil {
		cfg.Log = api.NoopLogSink{}
	}
	path := controlPath(basePath)
	_ = os.Remove(path)

	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return nil, fmt.Errorf("resolve control path: %w", err)
	}
	listener, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, fmt.Errorf("bind control socket %s: %w", path, err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("chmod control socket: %w", err)
	}
	return &Server{
		basePath: basePath,
		cfg:      cfg,
		reg:      reg,
		listener: listener,
		accepted: make(chan Accepted, reg.Capacity()),
	}, nil
}

func controlPath(basePath string) string {
	return basePath + ".ctl"
}

// Accepted returns the channel of successfully negotiated connections.
func (s *Server) Accepted() <-chan Accepted { return s.accepted }

// Serve runs the accept loop until the listener is closed. A malformed or
// rejected handshake from one client never stops the loop from serving
// the next one.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.AcceptUnix()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.cfg.Log.Warnf("rendezvous: accept error: %v", err)
			continue
		}
		go s.handle(conn)
	}
}

func (s *Server) handle(conn *net.UnixConn) {
	defer conn.Close()

	req, err := readHandshakeRequest(conn)
	if err != nil {
		s.cfg.Log.Warnf("rendezvous: malformed handshake: %v", err)
		return
	}

	ringBytes := req.RequestedRing
	if ringBytes == 0 {
		ringBytes = s.cfg.DefaultRingBytes
	}
	req.RequestedRing = ringBytes
	if err := req.Validate(maxOrDefault(s.cfg.MaxRingBytes)); err != nil {
		s.reject(conn, err.Error())
		return
	}

	pid, _ := peerPID(conn) // best-effort; 0 on platforms without SO_PEERCRED

	accepted, resp, err := s.allocate(req.ClientName, pid, ringBytes)
	if err != nil {
		s.reject(conn, err.Error())
		return
	}

	if err := writeHandshakeResponse(conn, resp); err != nil {
		s.cfg.Log.Warnf("rendezvous: failed to write response: %v", err)
		s.reg.Release(accepted.Slot.Index)
		return
	}

	if err := sendFDs(conn, []int{int(accepted.SendBell.FD()), int(accepted.RecvBell.FD())}); err != nil {
		s.cfg.Log.Warnf("rendezvous: failed to send doorbell fds: %v", err)
		s.reg.Release(accepted.Slot.Index)
		return
	}

	s.accepted <- accepted
}

func (s *Server) allocate(clientName string, pid int32, ringBytes int) (Accepted, HandshakeResponse, error) {
	id := atomic.AddUint64(&segmentSeq, 1)
	base := filepath.Base(s.basePath)
	serverName := fmt.Sprintf("%s-%d-s2c", base, id)
	clientName2 := fmt.Sprintf("%s-%d-c2s", base, id)

	serverSeg, err := shm.Create(serverName, ring.RegionSize(uint64(ringBytes)))
	if err != nil {
		return Accepted{}, HandshakeResponse{}, fmt.Errorf("allocate server ring segment: %w", err)
	}
	clientSeg, err := shm.Create(clientName2, ring.RegionSize(uint64(ringBytes)))
	if err != nil {
		serverSeg.Unlink()
		serverSeg.Close()
		return Accepted{}, HandshakeResponse{}, fmt.Errorf("allocate client ring segment: %w", err)
	}

	serverRing, err := ring.Create(serverSeg.Bytes(), uint64(ringBytes))
	if err != nil {
		serverSeg.Unlink()
		serverSeg.Close()
		clientSeg.Unlink()
		clientSeg.Close()
		return Accepted{}, HandshakeResponse{}, err
	}
	clientRing, err := ring.Create(clientSeg.Bytes(), uint64(ringBytes))
	if err != nil {
		serverSeg.Unlink()
		serverSeg.Close()
		clientSeg.Unlink()
		clientSeg.Close()
		return Accepted{}, HandshakeResponse{}, err
	}

	sendBell, err := doorbell.New()
	if err != nil {
		serverSeg.Unlink()
		serverSeg.Close()
		clientSeg.Unlink()
		clientSeg.Close()
		return Accepted{}, HandshakeResponse{}, fmt.Errorf("allocate send doorbell: %w", err)
	}
	recvBell, err := doorbell.New()
	if err != nil {
		sendBell.Close()
		serverSeg.Unlink()
		serverSeg.Close()
		clientSeg.Unlink()
		clientSeg.Close()
		return Accepted{}, HandshakeResponse{}, fmt.Errorf("allocate recv doorbell: %w", err)
	}

	slot, err := s.reg.Acquire(clientName, pid, serverName, clientName2)
	if err != nil {
		sendBell.Close()
		recvBell.Close()
		serverSeg.Unlink()
		serverSeg.Close()
		clientSeg.Unlink()
		clientSeg.Close()
		return Accepted{}, HandshakeResponse{}, err
	}

	// The slot is now the canonical owner of these four resources; the
	// registry runs this cleanup exactly once, whenever the slot is next
	// released (normal session close or a health-check reclaim), so a
	// reused or reclaimed slot never leaks its shared-memory pair or
	// doorbell FDs.
	slot.SetCleanup(func() {
		sendBell.Close()
		recvBell.Close()
		serverSeg.Unlink()
		serverSeg.Close()
		clientSeg.Unlink()
		clientSeg.Close()
	})

	resp := HandshakeResponse{
		ProtocolVersion: ProtocolVersion,
		Accepted:        true,
		Slot:            slot.Index,
		Generation:      slot.Generation,
		RingBytes:       ringBytes,
		ServerRingName:  serverName,
		ClientRingName:  clientName2,
	}
	return Accepted{
		Slot:          slot,
		ServerToRing:  serverRing,
		ClientToRing:  clientRing,
		SendBell:      sendBell,
		RecvBell:      recvBell,
		serverSegment: serverSeg,
		clientSegment: clientSeg,
	}, resp, nil
}

func (s *Server) reject(conn *net.UnixConn, reason string) {
	_ = writeHandshakeResponse(conn, HandshakeResponse{
		ProtocolVersion: ProtocolVersion,
		Accepted:        false,
		RejectReason:    reason,
	})
}

// Close stops the accept loop and removes the control socket file.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.listener.Close()
		_ = os.Remove(controlPath(s.basePath))
	})
	return err
}

func readHandshakeRequest(conn *net.UnixConn) (HandshakeRequest, error) {
	reader := bufio.NewReader(conn)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		return HandshakeRequest{}, err
	}
	var req HandshakeRequest
	if err := json.Unmarshal(line, &req); err != nil {
		return HandshakeRequest{}, err
	}
	return req, nil
}

func writeHandshakeResponse(conn *net.UnixConn, resp HandshakeResponse) error {
	line, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	line = append(line, '\n')
	_, err = conn.Write(line)
	return err
}

func maxOrDefault(max int) int {
	if max <= 0 {
		return 1 << 30
	}
	return max
}

