//go:build linux

// File: shm/segment_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux segments live under /dev/shm, the tmpfs mount glibc's shm_open(3)
// itself targets; reached directly through unix.Open/Ftruncate/Mmap rather
// than cgo, so this package stays cgo-free like the rest of the transport.

package shm

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

const shmDir = "/dev/shm"

type linuxSegment struct {
	name   string
	region []byte
	fd     int
}

func createPlatformSegment(name string, size int) (Creator, error) {
	path := segmentPath(name)
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_EXCL|unix.O_RDWR|unix.O_CLOEXEC, 0600)
	if err != nil {
		return nil, fmt.Errorf("shm create %s: %w", name, err)
	}
	pageSize := os.Getpagesize()
	rounded := ((size + pageSize - 1) / pageSize) * pageSize
	if err := unix.Ftruncate(fd, int64(rounded)); err != nil {
		unix.Close(fd)
		unix.Unlink(path)
		return nil, fmt.Errorf("shm ftruncate %s: %w", name, err)
	}
	region, err := unix.Mmap(fd, 0, rounded, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		unix.Unlink(path)
		return nil, fmt.Errorf("shm mmap %s: %w", name, err)
	}
	return &linuxSegment{name: name, region: region, fd: fd}, nil
}

func openPlatformSegment(name string) (Segment, error) {
	path := segmentPath(name)
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("shm open %s: %w", name, err)
	}
	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("shm fstat %s: %w", name, err)
	}
	region, err := unix.Mmap(fd, 0, int(stat.Size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("shm mmap %s: %w", name, err)
	}
	return &linuxSegment{name: name, region: region, fd: fd}, nil
}

func segmentPath(name string) string {
	return filepath.Join(shmDir, name)
}

func (s *linuxSegment) Bytes() []byte { return s.region }

func (s *linuxSegment) Name() string { return s.name }

func (s *linuxSegment) Close() error {
	if err := unix.Munmap(s.region); err != nil {
		unix.Close(s.fd)
		return fmt.Errorf("shm munmap %s: %w", s.name, err)
	}
	return unix.Close(s.fd)
}

func (s *linuxSegment) Unlink() error {
	return unix.Unlink(segmentPath(s.name))
}
