//go:build windows

// File: doorbell/doorbell_windows.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Windows doorbell backed by a named event object, reached through raw
// syscall.NewLazyDLL bindings in the style of affinity/affinity_windows.go
// rather than golang.org/x/sys/windows, matching this codebase's existing
// Windows texture.

package doorbell

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/cortexide/lapc/api"
)

var (
	modkernel32 = syscall.NewLazyDLL("kernel32.dll")

	procCreateEventW     = modkernel32.NewProc("CreateEventW")
	procSetEvent         = modkernel32.NewProc("SetEvent")
	procResetEvent       = modkernel32.NewProc("ResetEvent")
	procWaitForSingleObj = modkernel32.NewProc("WaitForSingleObject")
	procCloseHandle      = modkernel32.NewProc("CloseHandle")
)

const (
	waitObject0  = 0x00000000
	waitTimeout  = 0x00000102
	waitFailed   = 0xFFFFFFFF
	infiniteWait = 0xFFFFFFFF
)

type windowsDoorbell struct {
	handle syscall.Handle
	own    bool
	mu     sync.Mutex

	localSeq uint64
}

func newPlatformDoorbell() (Doorbell, error) {
	// Manual-reset event: Signal sets it, a successful wait resets it itself
	// so a second waiter arriving between Signal and reset does not miss it.
	h, _, errno := procCreateEventW.Call(0, 1, 0, 0)
	if h == 0 {
		return nil, fmt.Errorf("CreateEventW: %w (%v)", api.ErrDoorbellFailed, errno)
	}
	return &windowsDoorbell{handle: syscall.Handle(h), own: true}, nil
}

func openPlatformDoorbell(fd uintptr) (Doorbell, error) {
	return &windowsDoorbell{handle: syscall.Handle(fd), own: false}, nil
}

func (d *windowsDoorbell) LocalSeq() *uint64 { return &d.localSeq }

// Signal sets the event object, per SetEvent semantics; a waiter blocked in
// WaitForSingleObject wakes and resets it itself. localSeq is bumped by the
// waiter that actually observes the wake, not here: Signal and Wait are
// normally called from different Doorbell instances on opposite sides of the
// handle-passing handoff, so a counter this call alone advanced would never
// be seen by the peer's WaitAny.
func (d *windowsDoorbell) Signal() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	ret, _, errno := procSetEvent.Call(uintptr(d.handle))
	if ret == 0 {
		return fmt.Errorf("SetEvent: %w (%v)", api.ErrDoorbellFailed, errno)
	}
	return nil
}

func (d *windowsDoorbell) Wait(ctx context.Context, seq *uint64, observed uint64, timeout time.Duration) (Outcome, error) {
	if WaitForSeqChange(seq, observed) {
		return Woken, nil
	}
	deadline := time.Now().Add(timeout)
	// A cancelled ctx signals this doorbell so the blocked
	// WaitForSingleObject returns and the ctx check below reports it.
	stop := context.AfterFunc(ctx, func() { _ = d.Signal() })
	defer stop()
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return TimedOut, nil
		}
		waitMs := uint32(remaining / time.Millisecond)
		if waitMs == 0 {
			waitMs = 1
		}
		ret, _, _ := procWaitForSingleObj.Call(uintptr(d.handle), uintptr(waitMs))
		select {
		case <-ctx.Done():
			return TimedOut, ctx.Err()
		default:
		}
		switch uint32(ret) {
		case waitObject0:
			d.mu.Lock()
			procResetEvent.Call(uintptr(d.handle))
			d.mu.Unlock()
			atomic.AddUint64(&d.localSeq, 1)
			if WaitForSeqChange(seq, observed) {
				return Woken, nil
			}
			continue
		case waitTimeout:
			return TimedOut, nil
		default:
			return TimedOut, api.ErrDoorbellFailed
		}
	}
}

func (d *windowsDoorbell) Drain() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	procResetEvent.Call(uintptr(d.handle))
	return nil
}

func (d *windowsDoorbell) FD() uintptr { return uintptr(d.handle) }

func (d *windowsDoorbell) Close() error {
	if d.own {
		ret, _, errno := procCloseHandle.Call(uintptr(d.handle))
		if ret == 0 {
			return fmt.Errorf("CloseHandle: %w (%v)", api.ErrDoorbellFailed, errno)
		}
	}
	return nil
}
