// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake doorbell.Doorbell: a test can inject a Signal/Wait/Drain/Close
// error and assert on how registry/poolmgr/session react, without an
// eventfd or kqueue handle backing it.

package fake

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cortexide/lapc/doorbell"
)

// Doorbell is an in-process stand-in for doorbell.Doorbell. Signal
// increments an atomic sequence counter directly instead of going through
// a kernel object, so Wait can be driven deterministically in unit tests.
type Doorbell struct {
	seq uint64

	mu         sync.Mutex
	signalErr  error
	waitErr    error
	waitResult doorbell.Outcome
	closed     bool
}

// NewDoorbell constructs a fake doorbell that behaves normally until a
// test overrides one of its error fields.
func NewDoorbell() *Doorbell {
	return &Doorbell{waitResult: doorbell.Woken}
}

// SetSignalError makes every future Signal call return err.
func (d *Doorbell) SetSignalError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.signalErr = err
}

// SetWaitError makes every future Wait call return err instead of waiting.
func (d *Doorbell) SetWaitError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.waitErr = err
}

// Signal advances the fake sequence counter, matching the real
// eventfd-backed behavior that Wait callers poll against.
func (d *Doorbell) Signal() error {
	d.mu.Lock()
	err := d.signalErr
	d.mu.Unlock()
	if err != nil {
		return err
	}
	atomic.AddUint64(&d.seq, 1)
	return nil
}

// Wait returns immediately if the sequence already moved past observed,
// per the doorbell contract's lost-wakeup-free pattern; otherwise it
// blocks until Signal is called or timeout elapses.
func (d *Doorbell) Wait(ctx context.Context, seq *uint64, observed uint64, timeout time.Duration) (doorbell.Outcome, error) {
	d.mu.Lock()
	err := d.waitErr
	d.mu.Unlock()
	if err != nil {
		return doorbell.TimedOut, err
	}

	if atomic.LoadUint64(&d.seq) != observed {
		*seq = atomic.LoadUint64(&d.seq)
		return doorbell.Woken, nil
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return doorbell.TimedOut, ctx.Err()
		case <-deadline.C:
			return doorbell.TimedOut, nil
		case <-ticker.C:
			if cur := atomic.LoadUint64(&d.seq); cur != observed {
				*seq = cur
				return doorbell.Woken, nil
			}
		}
	}
}

// Drain is a no-op; the fake has no kernel-level pending-signal count.
func (d *Doorbell) Drain() error { return nil }

// FD returns 0; the fake is never passed across a real control socket.
func (d *Doorbell) FD() uintptr { return 0 }

// Close marks the fake closed. Idempotent.
func (d *Doorbell) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Closed reports whether Close has been called, for test assertions.
func (d *Doorbell) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// LocalSeq returns a pointer to the same counter Signal advances, matching
// the real backends' "doorbell owns a sequence of its own" contract.
func (d *Doorbell) LocalSeq() *uint64 { return &d.seq }

var _ doorbell.Doorbell = (*Doorbell)(nil)
