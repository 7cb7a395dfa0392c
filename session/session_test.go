package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cortexide/lapc/api"
	"github.com/cortexide/lapc/fake"
	"github.com/cortexide/lapc/ring"
	"github.com/cortexide/lapc/session"
	"github.com/cortexide/lapc/wire"
)

// newLoopback builds two Sessions wired back to back: a's writeRing is
// b's readRing and vice versa, matching how rendezvous negotiates a ring
// pair between a real server and client. Doorbells are fakes so tests run
// without an eventfd/epoll backend.
func newLoopback(t *testing.T, cfg session.Config) (a, b *session.Session, closeBoth func()) {
	t.Helper()
	const capacity = 1 << 16
	regionA := make([]byte, ring.RegionSize(capacity))
	regionB := make([]byte, ring.RegionSize(capacity))

	ringA, err := ring.Create(regionA, capacity)
	if err != nil {
		t.Fatal(err)
	}
	ringB, err := ring.Create(regionB, capacity)
	if err != nil {
		t.Fatal(err)
	}

	bellAtoB := fake.NewDoorbell()
	bellBtoA := fake.NewDoorbell()

	a = session.New(ringA, ringB, bellAtoB, bellBtoA, cfg, nil)
	b = session.New(ringB, ringA, bellBtoA, bellAtoB, cfg, nil)
	return a, b, func() {
		a.Close()
		b.Close()
	}
}

func TestSendRequestRecvRoundTrip(t *testing.T) {
	cfg := session.DefaultConfig()
	cfg.HeartbeatInterval = 0
	cfg.RecvPollTimeout = 200 * time.Millisecond

	a, b, closeBoth := newLoopback(t, cfg)
	defer closeBoth()

	ctx := context.Background()
	id, err := a.SendRequest(ctx, []byte("ping"))
	if err != nil {
		t.Fatal(err)
	}

	frame, err := b.Recv(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if frame.Header.MessageID != id {
		t.Fatalf("message id = %d, want %d", frame.Header.MessageID, id)
	}
	if string(frame.Payload) != "ping" {
		t.Fatalf("payload = %q, want %q", frame.Payload, "ping")
	}
	if !frame.Terminal() {
		t.Fatal("expected a single SendRequest frame to carry FlagTerminal")
	}
}

func TestSendStreamPreservesOrderAndTerminalFlag(t *testing.T) {
	cfg := session.DefaultConfig()
	cfg.HeartbeatInterval = 0
	cfg.RecvPollTimeout = 200 * time.Millisecond

	a, b, closeBoth := newLoopback(t, cfg)
	defer closeBoth()

	ctx := context.Background()
	chunks := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	id, err := a.SendStream(ctx, chunks)
	if err != nil {
		t.Fatal(err)
	}

	for i, want := range chunks {
		frame, err := b.Recv(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if frame.Header.MessageID != id {
			t.Fatalf("chunk %d: message id = %d, want %d", i, frame.Header.MessageID, id)
		}
		if string(frame.Payload) != string(want) {
			t.Fatalf("chunk %d: payload = %q, want %q", i, frame.Payload, want)
		}
		isLast := i == len(chunks)-1
		if frame.Terminal() != isLast {
			t.Fatalf("chunk %d: terminal = %v, want %v", i, frame.Terminal(), isLast)
		}
	}
}

func TestRecvReturnsTimedOutOnDeadline(t *testing.T) {
	cfg := session.DefaultConfig()
	cfg.HeartbeatInterval = 0
	cfg.RecvPollTimeout = 50 * time.Millisecond

	a, _, closeBoth := newLoopback(t, cfg)
	defer closeBoth()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := a.Recv(ctx)
	if err == nil {
		t.Fatal("expected an error from Recv on an idle session with an expired deadline")
	}
	if !errors.Is(err, api.ErrTimedOut) {
		t.Fatalf("expected ErrTimedOut, got %v", err)
	}
}

func TestRecvReturnsCancelledOnExplicitCancel(t *testing.T) {
	cfg := session.DefaultConfig()
	cfg.HeartbeatInterval = 0
	cfg.RecvPollTimeout = 2 * time.Second

	a, _, closeBoth := newLoopback(t, cfg)
	defer closeBoth()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := a.Recv(ctx)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, api.ErrCancelled) {
			t.Fatalf("expected ErrCancelled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Recv did not observe explicit cancellation")
	}
}

func TestCancelDeliversControlFrame(t *testing.T) {
	cfg := session.DefaultConfig()
	cfg.HeartbeatInterval = 0
	cfg.RecvPollTimeout = 200 * time.Millisecond

	a, b, closeBoth := newLoopback(t, cfg)
	defer closeBoth()

	if err := a.Cancel(7); err != nil {
		t.Fatal(err)
	}

	frame, err := b.Recv(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if frame.Header.MsgType != wire.MsgControl {
		t.Fatalf("msg type = %v, want MsgControl", frame.Header.MsgType)
	}
	if frame.Header.MessageID != 7 {
		t.Fatalf("message id = %d, want 7", frame.Header.MessageID)
	}
}

func TestCloseIsIdempotentAndRunsOnCloseOnce(t *testing.T) {
	cfg := session.DefaultConfig()
	cfg.HeartbeatInterval = 0
	cfg.RecvPollTimeout = 200 * time.Millisecond

	const capacity = 1 << 16
	region := make([]byte, ring.RegionSize(capacity))
	r, err := ring.Create(region, capacity)
	if err != nil {
		t.Fatal(err)
	}
	bell := fake.NewDoorbell()

	var closed int
	sess := session.New(r, r, bell, bell, cfg, func() { closed++ })

	if err := sess.Close(); err != nil {
		t.Fatal(err)
	}
	if err := sess.Close(); err != nil {
		t.Fatal(err)
	}
	if closed != 1 {
		t.Fatalf("onClose ran %d times, want exactly 1", closed)
	}
}

func TestScratchBuffersAreReturnedToThePool(t *testing.T) {
	cfg := session.DefaultConfig()
	cfg.HeartbeatInterval = 0
	cfg.RecvPollTimeout = 200 * time.Millisecond
	scratch := fake.NewBufferPool()
	cfg.Scratch = scratch

	a, b, closeBoth := newLoopback(t, cfg)
	defer closeBoth()

	ctx := context.Background()
	if _, err := a.SendRequest(ctx, []byte("ping")); err != nil {
		t.Fatal(err)
	}
	if _, err := a.SendStream(ctx, [][]byte{[]byte("one"), []byte("two")}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := b.Recv(ctx); err != nil {
			t.Fatal(err)
		}
	}

	st := scratch.Stats()
	if st.InUse != 0 {
		t.Fatalf("scratch InUse = %d after all sends completed, want 0", st.InUse)
	}
	if st.TotalAlloc != st.TotalFree {
		t.Fatalf("scratch alloc %d != free %d", st.TotalAlloc, st.TotalFree)
	}
}

func TestCorruptRecordTearsDownSession(t *testing.T) {
	cfg := session.DefaultConfig()
	cfg.HeartbeatInterval = 0
	cfg.RecvPollTimeout = 100 * time.Millisecond

	const capacity = 1 << 16
	regionRead := make([]byte, ring.RegionSize(capacity))
	regionWrite := make([]byte, ring.RegionSize(capacity))
	readRing, err := ring.Create(regionRead, capacity)
	if err != nil {
		t.Fatal(err)
	}
	writeRing, err := ring.Create(regionWrite, capacity)
	if err != nil {
		t.Fatal(err)
	}

	var closed int
	sess := session.New(writeRing, readRing, fake.NewDoorbell(), fake.NewDoorbell(), cfg, func() { closed++ })
	defer sess.Close()

	// A record that is not a canonical frame at all: decode must reject it
	// and the session must stop delivering anything after it.
	if ok, err := readRing.TryWrite([]byte("garbage bytes, not a frame")); err != nil || !ok {
		t.Fatalf("raw TryWrite = %v %v", ok, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = sess.Recv(ctx)
	if err == nil {
		t.Fatal("expected Recv to surface the framing error")
	}
	var kindErr *api.Error
	if !errors.As(err, &kindErr) || kindErr.Kind != api.KindFraming {
		t.Fatalf("expected a framing-kind error, got %v", err)
	}
	if closed != 1 {
		t.Fatalf("onClose ran %d times, want 1 (teardown on framing fault)", closed)
	}
}
