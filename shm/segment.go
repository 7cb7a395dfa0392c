// File: shm/segment.go
// Package shm backs a ring.Ring's region with an OS shared-memory mapping
// so two unrelated processes can bind to the same bytes as ring.Ring's
// external []byte region.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package shm

// Segment is a named block of memory visible to more than one process,
// sized and zero-initialized by its creator and attached read-write by
// every later opener.
type Segment interface {
	// Bytes returns the mapped region. The slice is valid until Close.
	Bytes() []byte

	// Name returns the segment's rendezvous name.
	Name() string

	// Close unmaps the region. The creator should additionally call Unlink
	// once no process needs to open it again.
	Close() error
}

// Creator is implemented by a Segment that allocated the backing object
// and can remove its name from the filesystem/kernel namespace.
type Creator interface {
	Segment
	Unlink() error
}

// Create allocates a new named segment of the given size and maps it.
// name must be unique within the rendezvous directory for the lifetime of
// the segment; size is rounded up to the platform page size by the
// backend.
func Create(name string, size int) (Creator, error) {
	return createPlatformSegment(name, size)
}

// Open attaches to a segment a peer already created, discovering its size
// from the backing object rather than requiring it out of band.
func Open(name string) (Segment, error) {
	return openPlatformSegment(name)
}
