//go:build linux

package rendezvous_test

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cortexide/lapc/registry"
	"github.com/cortexide/lapc/rendezvous"
)

func newTestBasePath(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, fmt.Sprintf("lapc-%d", os.Getpid()))
}

func TestHandshakeRoundTrip(t *testing.T) {
	base := newTestBasePath(t)
	reg := registry.New(4)
	server, err := rendezvous.Bind(base, reg, rendezvous.Config{DefaultRingBytes: 4096, MaxRingBytes: 1 << 20})
	if err != nil {
		t.Fatal(err)
	}
	defer server.Close()

	go server.Serve()

	dialed, err := rendezvous.Dial(base, "test-client", 4096)
	if err != nil {
		t.Fatal(err)
	}
	defer dialed.Close()

	select {
	case accepted := <-server.Accepted():
		if accepted.Slot.Index != dialed.Slot {
			t.Fatalf("slot mismatch: server %d, client %d", accepted.Slot.Index, dialed.Slot)
		}
		if accepted.Slot.Generation != dialed.Generation {
			t.Fatalf("generation mismatch: server %d, client %d", accepted.Slot.Generation, dialed.Generation)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never reported the accepted connection")
	}
}

func TestHandshakeRingTransfersData(t *testing.T) {
	base := newTestBasePath(t)
	reg := registry.New(4)
	server, err := rendezvous.Bind(base, reg, rendezvous.Config{DefaultRingBytes: 4096, MaxRingBytes: 1 << 20})
	if err != nil {
		t.Fatal(err)
	}
	defer server.Close()
	go server.Serve()

	dialed, err := rendezvous.Dial(base, "test-client", 4096)
	if err != nil {
		t.Fatal(err)
	}
	defer dialed.Close()

	var accepted rendezvous.Accepted
	select {
	case accepted = <-server.Accepted():
	case <-time.After(2 * time.Second):
		t.Fatal("server never reported the accepted connection")
	}

	ok, err := accepted.ServerToRing.TryWrite([]byte("ping"))
	if err != nil || !ok {
		t.Fatalf("server write failed: %v %v", ok, err)
	}
	got, ok, err := dialed.ServerToRing.TryRead()
	if err != nil || !ok {
		t.Fatalf("client read failed: %v %v %v", got, ok, err)
	}
	if string(got) != "ping" {
		t.Fatalf("got %q, want ping", got)
	}
}

func TestVersionMismatchIsRejected(t *testing.T) {
	req := rendezvous.HandshakeRequest{ProtocolVersion: 99, ClientName: "x", RequestedRing: 1024}
	if err := req.Validate(1 << 20); err == nil {
		t.Fatal("expected version mismatch to fail validation")
	}
}

func TestRequestedRingExceedingMaxIsRejected(t *testing.T) {
	req := rendezvous.HandshakeRequest{ProtocolVersion: rendezvous.ProtocolVersion, ClientName: "x", RequestedRing: 1 << 30}
	if err := req.Validate(4096); err == nil {
		t.Fatal("expected oversized ring request to fail validation")
	}
}

func TestAcceptLoopSurvivesBadClient(t *testing.T) {
	base := newTestBasePath(t)
	reg := registry.New(4)
	server, err := rendezvous.Bind(base, reg, rendezvous.Config{DefaultRingBytes: 4096, MaxRingBytes: 1 << 20})
	if err != nil {
		t.Fatal(err)
	}
	defer server.Close()
	go server.Serve()

	conn, err := net.DialUnix("unix", nil, &net.UnixAddr{Name: base + ".ctl", Net: "unix"})
	if err != nil {
		t.Fatal(err)
	}
	conn.Write([]byte("not json at all\n"))
	conn.Close()

	time.Sleep(50 * time.Millisecond)

	dialed, err := rendezvous.Dial(base, "good-client", 4096)
	if err != nil {
		t.Fatalf("accept loop should still serve a well-formed client: %v", err)
	}
	dialed.Close()
}
