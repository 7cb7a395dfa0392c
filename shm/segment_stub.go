//go:build !linux

// File: shm/segment_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Outside Linux there is no shared-memory backend: Create and Open both
// return api.ErrNotSupported, and no anonymous-region fallback exists, so
// rendezvous cannot allocate a ring pair on those platforms.

package shm

import "github.com/cortexide/lapc/api"

func createPlatformSegment(name string, size int) (Creator, error) {
	return nil, api.ErrNotSupported
}

func openPlatformSegment(name string) (Segment, error) {
	return nil, api.ErrNotSupported
}
