package doorbell_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cortexide/lapc/doorbell"
)

func TestWaitTimesOutWithNoSignal(t *testing.T) {
	d, err := doorbell.New()
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	var seq uint64
	outcome, err := d.Wait(context.Background(), &seq, 0, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != doorbell.TimedOut {
		t.Fatalf("expected TimedOut, got %v", outcome)
	}
}

func TestWaitReturnsImmediatelyIfSeqAlreadyChanged(t *testing.T) {
	d, err := doorbell.New()
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	var seq uint64 = 5
	outcome, err := d.Wait(context.Background(), &seq, 0, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != doorbell.Woken {
		t.Fatalf("expected Woken (seq already advanced), got %v", outcome)
	}
}

func TestSignalWakesConcurrentWaiter(t *testing.T) {
	d, err := doorbell.New()
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	var seq uint64
	done := make(chan doorbell.Outcome, 1)
	go func() {
		outcome, werr := d.Wait(context.Background(), &seq, 0, 2*time.Second)
		if werr != nil {
			t.Error(werr)
		}
		done <- outcome
	}()

	time.Sleep(20 * time.Millisecond)
	atomic.StoreUint64(&seq, 1)
	if err := d.Signal(); err != nil {
		t.Fatal(err)
	}

	select {
	case outcome := <-done:
		if outcome != doorbell.Woken {
			t.Fatalf("expected Woken, got %v", outcome)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not woken within deadline")
	}
}

func TestWaitRespectsContextCancellation(t *testing.T) {
	d, err := doorbell.New()
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	ctx, cancel := context.WithCancel(context.Background())
	var seq uint64
	done := make(chan error, 1)
	go func() {
		_, werr := d.Wait(ctx, &seq, 0, 5*time.Second)
		done <- werr
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected context cancellation error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not observe context cancellation")
	}
}

func TestWaitAnyWakesOnSignalWithNoSharedSequence(t *testing.T) {
	d, err := doorbell.New()
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	done := make(chan doorbell.Outcome, 1)
	go func() {
		outcome, werr := doorbell.WaitAny(context.Background(), d, 2*time.Second)
		if werr != nil {
			t.Error(werr)
		}
		done <- outcome
	}()

	time.Sleep(20 * time.Millisecond)
	if err := d.Signal(); err != nil {
		t.Fatal(err)
	}

	select {
	case outcome := <-done:
		if outcome != doorbell.Woken {
			t.Fatalf("expected Woken, got %v", outcome)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WaitAny was not woken within deadline")
	}
}

func TestDrainConsumesPendingSignal(t *testing.T) {
	d, err := doorbell.New()
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	if err := d.Signal(); err != nil {
		t.Fatal(err)
	}
	if err := d.Drain(); err != nil {
		t.Fatal(err)
	}
}

// TestCrossInstanceSignalWakesPeer exercises the actual rendezvous shape:
// one Doorbell built via New(), a second bound to the same underlying
// descriptor via Open(fd), the way a server-created doorbell and its
// FD-passed peer relate to each other. A same-instance Signal/Wait pair
// cannot catch a regression where Signal only advances its own localSeq
// instead of one the peer's WaitAny observes.
func TestCrossInstanceSignalWakesPeer(t *testing.T) {
	owner, err := doorbell.New()
	if err != nil {
		t.Fatal(err)
	}
	defer owner.Close()

	peer, err := doorbell.Open(owner.FD())
	if err != nil {
		t.Skipf("cross-instance open unavailable on this platform: %v", err)
	}
	defer peer.Close()

	done := make(chan doorbell.Outcome, 1)
	go func() {
		outcome, werr := doorbell.WaitAny(context.Background(), peer, 2*time.Second)
		if werr != nil {
			t.Error(werr)
		}
		done <- outcome
	}()

	time.Sleep(20 * time.Millisecond)
	if err := owner.Signal(); err != nil {
		t.Fatal(err)
	}

	select {
	case outcome := <-done:
		if outcome != doorbell.Woken {
			t.Fatalf("expected Woken from peer's Signal, got %v", outcome)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("peer's WaitAny was not woken by owner's Signal within deadline")
	}
}

func TestFDIsNonZero(t *testing.T) {
	d, err := doorbell.New()
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	if d.FD() == 0 {
		t.Fatal("expected a non-zero underlying descriptor")
	}
}
