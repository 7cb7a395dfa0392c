//go:build !linux && !darwin && !windows

// File: doorbell/doorbell_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package doorbell

import (
	"context"
	"time"

	"github.com/cortexide/lapc/api"
)

func newPlatformDoorbell() (Doorbell, error) {
	return nil, api.ErrNotSupported
}

func openPlatformDoorbell(fd uintptr) (Doorbell, error) {
	return nil, api.ErrNotSupported
}

type stubDoorbell struct{ localSeq uint64 }

func (d *stubDoorbell) LocalSeq() *uint64 { return &d.localSeq }

func (*stubDoorbell) Signal() error { return api.ErrNotSupported }

func (*stubDoorbell) Wait(ctx context.Context, seq *uint64, observed uint64, timeout time.Duration) (Outcome, error) {
	return TimedOut, api.ErrNotSupported
}

func (*stubDoorbell) Drain() error { return api.ErrNotSupported }

func (*stubDoorbell) FD() uintptr { return 0 }

func (*stubDoorbell) Close() error { return nil }
