//go:build darwin

// File: doorbell/doorbell_darwin.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// macOS doorbell backed by a kqueue EVFILT_USER event, the BSD-kqueue
// analogue of the Linux eventfd+epoll pairing in doorbell_linux.go.

package doorbell

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/cortexide/lapc/api"
)

type darwinDoorbell struct {
	kq    int
	ident uintptr
	own   bool

	localSeq uint64
}

func newPlatformDoorbell() (Doorbell, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, fmt.Errorf("kqueue create: %w", err)
	}
	d := &darwinDoorbell{kq: kq, ident: 1, own: true}
	if err := d.register(); err != nil {
		unix.Close(kq)
		return nil, err
	}
	return d, nil
}

// openPlatformDoorbell on Darwin does not support receiving a foreign
// kqueue fd across processes the way Linux eventfd FDs can be duplicated
// via SCM_RIGHTS and still refer to the same counter; kqueue identifiers
// are process-local. It always returns api.ErrNotSupported, and the
// rendezvous layer has no Darwin fallback: its FD-passing calls return
// api.ErrNotSupported too, so a cross-process handshake does not complete
// on Darwin. Doorbells from New still work for waits within one process.
func openPlatformDoorbell(fd uintptr) (Doorbell, error) {
	return nil, api.ErrNotSupported
}

func (d *darwinDoorbell) register() error {
	kev := unix.Kevent_t{
		Ident:  uint64(d.ident),
		Filter: unix.EVFILT_USER,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
	}
	_, err := unix.Kevent(d.kq, []unix.Kevent_t{kev}, nil, nil)
	if err != nil {
		return fmt.Errorf("kevent register: %w", err)
	}
	return nil
}

func (d *darwinDoorbell) LocalSeq() *uint64 { return &d.localSeq }

func (d *darwinDoorbell) Signal() error {
	atomic.AddUint64(&d.localSeq, 1)
	kev := unix.Kevent_t{
		Ident:  uint64(d.ident),
		Filter: unix.EVFILT_USER,
		Fflags: unix.NOTE_TRIGGER,
	}
	_, err := unix.Kevent(d.kq, []unix.Kevent_t{kev}, nil, nil)
	if err != nil {
		return fmt.Errorf("kevent trigger: %w", api.ErrDoorbellFailed)
	}
	return nil
}

func (d *darwinDoorbell) Wait(ctx context.Context, seq *uint64, observed uint64, timeout time.Duration) (Outcome, error) {
	if WaitForSeqChange(seq, observed) {
		return Woken, nil
	}
	deadline := time.Now().Add(timeout)
	// A cancelled ctx signals this doorbell so the blocked kevent call
	// returns and the ctx check below reports the cancellation.
	stop := context.AfterFunc(ctx, func() { _ = d.Signal() })
	defer stop()
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return TimedOut, nil
		}
		ts := unix.NsecToTimespec(remaining.Nanoseconds())
		events := make([]unix.Kevent_t, 1)
		n, err := unix.Kevent(d.kq, nil, events, &ts)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return TimedOut, fmt.Errorf("kevent wait: %w", api.ErrDoorbellFailed)
		}
		select {
		case <-ctx.Done():
			return TimedOut, ctx.Err()
		default:
		}
		if n > 0 {
			if WaitForSeqChange(seq, observed) {
				return Woken, nil
			}
			continue
		}
		return TimedOut, nil
	}
}

func (d *darwinDoorbell) Drain() error { return nil }

func (d *darwinDoorbell) FD() uintptr { return uintptr(d.kq) }

func (d *darwinDoorbell) Close() error {
	if d.own {
		return unix.Close(d.kq)
	}
	return nil
}
