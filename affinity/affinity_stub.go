//go:build !linux && !windows
// +build !linux,!windows

// File: affinity/affinity_stub.go
// Author: momentics <momentics@gmail.com>
//
// Platforms without an affinity syscall report the pin as unavailable;
// session's recv loop logs the failure once and keeps running unpinned.

package affinity

import "errors"

func setAffinityPlatform(cpuID int) error {
	return errors.New("affinity: pinning not supported on this platform")
}
