//go:build linux

// File: doorbell/doorbell_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux doorbell backed by eventfd(2) for the wake object and epoll(7) for
// the bounded wait, one eventfd per Doorbell.

package doorbell

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/cortexide/lapc/api"
)

type linuxDoorbell struct {
	efd  int
	epfd int
	own  bool // whether Close should close efd (false when received via FD passing from a peer that owns teardown)

	localSeq uint64
}

func newPlatformDoorbell() (Doorbell, error) {
	efd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("eventfd create: %w", err)
	}
	return bindLinuxDoorbell(efd, true)
}

func openPlatformDoorbell(fd uintptr) (Doorbell, error) {
	return bindLinuxDoorbell(int(fd), false)
}

func bindLinuxDoorbell(efd int, own bool) (Doorbell, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		unix.Close(efd)
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(efd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, efd, &ev); err != nil {
		unix.Close(epfd)
		if own {
			unix.Close(efd)
		}
		return nil, fmt.Errorf("epoll ctl add: %w", err)
	}
	return &linuxDoorbell{efd: efd, epfd: epfd, own: own}, nil
}

// Signal increments the eventfd counter by one, per eventfd(2) semantics;
// a waiter blocked in epoll_wait becomes readable and Drain consumes it.
// localSeq is bumped by the waiter that actually observes the wake
// (drainCounter), not here: Signal and Wait are normally called from
// different Doorbell instances on opposite sides of the FD-passing
// handoff, so a counter this call alone advanced would never be seen by
// the peer's WaitAny.
func (d *linuxDoorbell) Signal() error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(d.efd, buf[:])
	if err != nil && err != unix.EAGAIN {
		return fmt.Errorf("eventfd signal: %w", api.ErrDoorbellFailed)
	}
	return nil
}

func (d *linuxDoorbell) LocalSeq() *uint64 { return &d.localSeq }

func (d *linuxDoorbell) Wait(ctx context.Context, seq *uint64, observed uint64, timeout time.Duration) (Outcome, error) {
	if WaitForSeqChange(seq, observed) {
		return Woken, nil
	}
	deadline := time.Now().Add(timeout)
	// A cancelled ctx signals this doorbell so the blocked epoll_wait
	// returns and the ctx check below reports the cancellation.
	stop := context.AfterFunc(ctx, func() { _ = d.Signal() })
	defer stop()
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return TimedOut, nil
		}
		timeoutMs := int(remaining / time.Millisecond)
		if timeoutMs <= 0 {
			timeoutMs = 1
		}
		var events [1]unix.EpollEvent
		n, err := unix.EpollWait(d.epfd, events[:], timeoutMs)
		if err != nil {
			if err == unix.EINTR {
				select {
				case <-ctx.Done():
					return TimedOut, ctx.Err()
				default:
					continue
				}
			}
			return TimedOut, fmt.Errorf("epoll wait: %w", api.ErrDoorbellFailed)
		}
		select {
		case <-ctx.Done():
			return TimedOut, ctx.Err()
		default:
		}
		if n > 0 {
			d.drainCounter()
			if WaitForSeqChange(seq, observed) {
				return Woken, nil
			}
			// Spurious: counter moved for a reason unrelated to seq (e.g. a
			// health-check ping); loop and re-check the deadline.
			continue
		}
		return TimedOut, nil
	}
}

func (d *linuxDoorbell) Drain() error {
	d.drainCounter()
	return nil
}

// drainCounter reads (and resets) the eventfd's accumulated counter,
// reflecting however many Signal calls landed since it was last drained —
// from this instance, a peer instance sharing the same underlying eventfd
// via FD passing, or both. It bumps localSeq exactly when it actually
// observed a real wake, which is what lets WaitAny notice a remote
// Signal: the waiter's own localSeq only advances once its own epoll_wait
// has returned readable and this call has drained the real counter.
func (d *linuxDoorbell) drainCounter() {
	var buf [8]byte
	drained := false
	for {
		_, err := unix.Read(d.efd, buf[:])
		if err != nil {
			break
		}
		drained = true
	}
	if drained {
		atomic.AddUint64(&d.localSeq, 1)
	}
}

func (d *linuxDoorbell) FD() uintptr { return uintptr(d.efd) }

func (d *linuxDoorbell) Close() error {
	unix.Close(d.epfd)
	if d.own {
		return unix.Close(d.efd)
	}
	return nil
}
