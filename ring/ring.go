// File: ring/ring.go
// Package ring implements an SPSC shared-memory byte ring: a fixed
// power-of-two capacity byte buffer carrying
// length-prefixed records, with independent writer and reader sequence
// counters cache-line padded to avoid false sharing.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The backing storage is an external (possibly shared-memory-mapped)
// []byte region, so the same code serves both an in-process unit test
// buffer and a cross-process mmap.
//
// Single-writer / single-reader is a precondition, not enforced: callers
// (registry, session) guarantee exactly one producer task and one consumer
// task per ring.

package ring

import (
	"encoding/binary"
	"sync/atomic"
	"unsafe"

	"github.com/cortexide/lapc/api"
)

const (
	lengthPrefixSize = 4

	offCapacity = 0
	offWriteSeq = 64
	offReadSeq  = 128
	offData     = 192

	// HeaderSize is the fixed control-region size preceding the data bytes.
	HeaderSize = offData
)

// RegionSize returns the total backing-region size (header + data) required
// for a ring of the given capacity. capacity must be a power of two.
func RegionSize(capacity uint64) int {
	return HeaderSize + int(capacity)
}

// Ring is a lock-free SPSC byte ring over an externally supplied region.
type Ring struct {
	region   []byte
	capacity uint64
	mask     uint64
	wsPtr    *uint64
	rsPtr    *uint64
}

// Create initializes a fresh ring header inside region and returns a Ring
// bound to it. capacity must be a power of two; region must be at least
// RegionSize(capacity) bytes. Called once by the ring's creator (the
// rendezvous server); the peer calls Open on the same mapped region.
func Create(region []byte, capacity uint64) (*Ring, error) {
	if capacity < 2 || capacity&(capacity-1) != 0 {
		return nil, api.NewError(api.KindProtocol, "ring capacity must be a power of two")
	}
	if len(region) < RegionSize(capacity) {
		return nil, api.NewError(api.KindProtocol, "region too small for requested capacity")
	}
	binary.LittleEndian.PutUint64(region[offCapacity:offCapacity+8], capacity)
	r := bind(region)
	atomic.StoreUint64(r.wsPtr, 0)
	atomic.StoreUint64(r.rsPtr, 0)
	return r, nil
}

// Open binds a Ring to an already-initialized region, reading capacity
// back out of the header. Used by the peer that did not create the ring.
func Open(region []byte) (*Ring, error) {
	if len(region) < HeaderSize {
		return nil, api.NewError(api.KindProtocol, "region smaller than ring header")
	}
	capacity := binary.LittleEndian.Uint64(region[offCapacity : offCapacity+8])
	if capacity < 2 || capacity&(capacity-1) != 0 {
		return nil, api.NewError(api.KindProtocol, "region header declares non-power-of-two capacity")
	}
	if len(region) < RegionSize(capacity) {
		return nil, api.NewError(api.KindProtocol, "region shorter than declared capacity")
	}
	return bind(region), nil
}

func bind(region []byte) *Ring {
	capacity := binary.LittleEndian.Uint64(region[offCapacity : offCapacity+8])
	return &Ring{
		region:   region,
		capacity: capacity,
		mask:     capacity - 1,
		wsPtr:    (*uint64)(unsafe.Pointer(&region[offWriteSeq])),
		rsPtr:    (*uint64)(unsafe.Pointer(&region[offReadSeq])),
	}
}

// Capacity returns the fixed data-region capacity in bytes.
func (r *Ring) Capacity() uint64 { return r.capacity }

// Occupied returns the approximate number of bytes currently occupied
// (write_seq - read_seq), a racy snapshot useful only for metrics.
func (r *Ring) Occupied() uint64 {
	return atomic.LoadUint64(r.wsPtr) - atomic.LoadUint64(r.rsPtr)
}

// TryWrite attempts to enqueue one record. Returns (true, nil) on success,
// (false, nil) if there is insufficient free space (transient backpressure
// — the caller decides whether to retry after the doorbell, drop, or
// propagate), or (false, api.ErrRecordTooLarge) if the record can never fit
// in this ring regardless of occupancy.
func (r *Ring) TryWrite(record []byte) (bool, error) {
	need := uint64(lengthPrefixSize + len(record))
	if need > r.capacity {
		return false, api.ErrRecordTooLarge
	}
	readSeq := atomic.LoadUint64(r.rsPtr)
	writeSeq := atomic.LoadUint64(r.wsPtr)
	if writeSeq-readSeq+need > r.capacity {
		return false, nil
	}
	r.writeRecordAt(writeSeq, record)
	atomic.StoreUint64(r.wsPtr, writeSeq+need)
	return true, nil
}

// TryWriteBatch writes as many of records as fit, issuing a single release
// store on write_seq after the last one landed. Each record is atomic:
// either it lands whole or the batch stops before it. Returns the number of
// records written and api.ErrRecordTooLarge if records[0] alone cannot fit
// (i.e. zero progress was possible).
func (r *Ring) TryWriteBatch(records [][]byte) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	readSeq := atomic.LoadUint64(r.rsPtr)
	writeSeq := atomic.LoadUint64(r.wsPtr)
	cursor := writeSeq
	n := 0
	for _, rec := range records {
		need := uint64(lengthPrefixSize + len(rec))
		if need > r.capacity {
			if n == 0 {
				return 0, api.ErrRecordTooLarge
			}
			break
		}
		if cursor-readSeq+need > r.capacity {
			break
		}
		r.writeRecordAt(cursor, rec)
		cursor += need
		n++
	}
	if n > 0 {
		atomic.StoreUint64(r.wsPtr, cursor)
	}
	return n, nil
}

// TryRead dequeues the next complete record, if any. The returned slice is
// a freshly allocated copy (the ring wraps, so a zero-copy view is not
// generally contiguous); ok is false when the ring is empty.
func (r *Ring) TryRead() (record []byte, ok bool, err error) {
	writeSeq := atomic.LoadUint64(r.wsPtr)
	readSeq := atomic.LoadUint64(r.rsPtr)
	if readSeq == writeSeq {
		return nil, false, nil
	}
	rec, consumed, err := r.readRecordAt(readSeq)
	if err != nil {
		return nil, false, err
	}
	atomic.StoreUint64(r.rsPtr, readSeq+consumed)
	return rec, true, nil
}

// TryReadBatch drains up to max complete records in one pass, issuing a
// single release store on read_seq at the end.
func (r *Ring) TryReadBatch(max int) ([][]byte, error) {
	writeSeq := atomic.LoadUint64(r.wsPtr)
	readSeq := atomic.LoadUint64(r.rsPtr)
	out := make([][]byte, 0, max)
	cursor := readSeq
	for len(out) < max && cursor != writeSeq {
		rec, consumed, err := r.readRecordAt(cursor)
		if err != nil {
			if len(out) > 0 {
				atomic.StoreUint64(r.rsPtr, cursor)
			}
			return out, err
		}
		out = append(out, rec)
		cursor += consumed
	}
	if cursor != readSeq {
		atomic.StoreUint64(r.rsPtr, cursor)
	}
	return out, nil
}

func (r *Ring) writeRecordAt(seq uint64, record []byte) {
	var lenBuf [lengthPrefixSize]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(record)))
	r.copyInAt(seq, lenBuf[:])
	r.copyInAt(seq+lengthPrefixSize, record)
}

func (r *Ring) readRecordAt(seq uint64) (record []byte, consumed uint64, err error) {
	var lenBuf [lengthPrefixSize]byte
	r.copyOutAt(seq, lenBuf[:])
	length := binary.LittleEndian.Uint32(lenBuf[:])
	if uint64(length) > r.capacity-lengthPrefixSize {
		return nil, 0, api.NewError(api.KindFraming, "ring record length exceeds capacity")
	}
	rec := make([]byte, length)
	r.copyOutAt(seq+lengthPrefixSize, rec)
	return rec, uint64(lengthPrefixSize) + uint64(length), nil
}

// copyInAt copies src into the data region starting at byte offset seq
// (mod capacity), wrapping as needed.
func (r *Ring) copyInAt(seq uint64, src []byte) {
	start := seq & r.mask
	n := uint64(len(src))
	first := r.capacity - start
	if first >= n {
		copy(r.region[offData+start:offData+start+n], src)
		return
	}
	copy(r.region[offData+start:offData+r.capacity], src[:first])
	copy(r.region[offData:offData+(n-first)], src[first:])
}

func (r *Ring) copyOutAt(seq uint64, dst []byte) {
	start := seq & r.mask
	n := uint64(len(dst))
	first := r.capacity - start
	if first >= n {
		copy(dst, r.region[offData+start:offData+start+n])
		return
	}
	copy(dst[:first], r.region[offData+start:offData+r.capacity])
	copy(dst[first:], r.region[offData:offData+(n-first)])
}
