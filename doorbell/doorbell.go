// File: doorbell/doorbell.go
// Package doorbell implements a cross-process wake primitive: let a
// reader sleep until a writer advances a sequence counter, with no lost
// wakeups.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Platform mapping is a private concern of this package; the contract is
// identical on every target.

package doorbell

import (
	"context"
	"sync/atomic"
	"time"
)

// Doorbell lets one side signal and the other side wait for that signal,
// backed by a kernel object so the wait can block without spinning.
type Doorbell interface {
	// Signal wakes any current or future waiter at most once per call.
	Signal() error

	// Wait blocks until *seq no longer equals observed, or timeout elapses.
	// The caller must re-read *seq itself before calling Wait (read sequence
	// → check for data → call Wait only if empty), the pattern that
	// eliminates lost wakeups.
	Wait(ctx context.Context, seq *uint64, observed uint64, timeout time.Duration) (Outcome, error)

	// Drain consumes any pending signals, used during slot teardown.
	Drain() error

	// FD returns the underlying OS descriptor, for FD passing over the
	// rendezvous control socket.
	FD() uintptr

	// Close releases the underlying kernel object.
	Close() error

	// LocalSeq returns a pointer to a counter this Doorbell itself bumps
	// each time its own Wait observes a wake (on Linux and Windows the
	// waiting side bumps it after draining the signal; on Darwin Signal
	// bumps it). Callers that have no externally shared
	// sequence to watch (a heartbeat round trip, not a ring) use it via
	// WaitAny instead of wiring up one of their own.
	LocalSeq() *uint64
}

// Outcome reports why Wait returned.
type Outcome int

const (
	Woken Outcome = iota
	TimedOut
)

// WaitForSeqChange is the reusable "check then wait" loop every Doorbell
// backend shares: re-read *seq immediately, return Woken without blocking
// if it already moved, otherwise defer to the platform primitive.
func WaitForSeqChange(seq *uint64, observed uint64) (changed bool) {
	return atomic.LoadUint64(seq) != observed
}

// WaitAny blocks until d is signaled for any reason, without requiring the
// caller to own and publish an external sequence counter. It is built from
// the same snapshot-then-wait primitive as Wait, just watching d's own
// LocalSeq instead of a ring's write_seq: correct whenever "was this
// doorbell signaled since I started waiting" is the whole question, as it
// is for a session's receive loop or a health-check round trip.
func WaitAny(ctx context.Context, d Doorbell, timeout time.Duration) (Outcome, error) {
	seq := d.LocalSeq()
	observed := atomic.LoadUint64(seq)
	return d.Wait(ctx, seq, observed, timeout)
}

// New constructs a platform Doorbell. See doorbell_linux.go, doorbell_darwin.go,
// doorbell_windows.go and doorbell_stub.go for the per-OS backends.
func New() (Doorbell, error) {
	return newPlatformDoorbell()
}

// Open rebinds a Doorbell to a descriptor received via FD passing on the
// rendezvous control socket.
func Open(fd uintptr) (Doorbell, error) {
	return openPlatformDoorbell(fd)
}
