package ring_test

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/cortexide/lapc/ring"
)

func newTestRing(t *testing.T, capacity uint64) *ring.Ring {
	t.Helper()
	region := make([]byte, ring.RegionSize(capacity))
	r, err := ring.Create(region, capacity)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestTryWriteTryReadRoundTrip(t *testing.T) {
	r := newTestRing(t, 1024)
	ok, err := r.TryWrite([]byte("hello"))
	if err != nil || !ok {
		t.Fatalf("TryWrite = %v, %v", ok, err)
	}
	got, ok, err := r.TryRead()
	if err != nil || !ok {
		t.Fatalf("TryRead = %v, %v, %v", got, ok, err)
	}
	if !bytes.Equal(got, []byte("hello")) {
		t.Errorf("got %q, want %q", got, "hello")
	}
}

func TestTryReadEmpty(t *testing.T) {
	r := newTestRing(t, 64)
	_, ok, err := r.TryRead()
	if err != nil || ok {
		t.Fatalf("expected empty ring, got ok=%v err=%v", ok, err)
	}
}

func TestTryWriteExactCapacitySucceedsOverflowFails(t *testing.T) {
	r := newTestRing(t, 16)
	// framed size == capacity: 4-byte length prefix + 12-byte payload.
	ok, err := r.TryWrite(make([]byte, 12))
	if err != nil || !ok {
		t.Fatalf("exact-capacity write should succeed, got %v %v", ok, err)
	}
	if _, ok, _ := r.TryRead(); !ok {
		t.Fatal("expected to read back the exact-capacity record")
	}

	ok, err = r.TryWrite(make([]byte, 13))
	if ok {
		t.Fatal("capacity+1 write should not succeed")
	}
	if err == nil {
		t.Error("over-capacity write should report RecordTooLarge via err, got nil")
	}
}

func TestTryWriteRecordTooLarge(t *testing.T) {
	r := newTestRing(t, 64)
	_, err := r.TryWrite(make([]byte, 1<<20))
	if err == nil {
		t.Fatal("expected RecordTooLarge error")
	}
}

func TestTryWriteWrapsAroundCapacity(t *testing.T) {
	r := newTestRing(t, 32)
	for i := 0; i < 50; i++ {
		payload := []byte(fmt.Sprintf("m%02d", i%100))
		ok, err := r.TryWrite(payload)
		if err != nil {
			t.Fatalf("iter %d: unexpected error %v", i, err)
		}
		if !ok {
			// Ring full: drain one record to make room and retry, exercising wraparound.
			got, readOK, rerr := r.TryRead()
			if rerr != nil || !readOK {
				t.Fatalf("iter %d: expected a record to drain, got %v %v %v", i, got, readOK, rerr)
			}
			ok, err = r.TryWrite(payload)
			if err != nil || !ok {
				t.Fatalf("iter %d: retry write failed: %v %v", i, ok, err)
			}
		}
	}
}

func TestTryWriteBatchTryReadBatchPreservesOrder(t *testing.T) {
	r := newTestRing(t, 4096)
	records := [][]byte{[]byte("a"), []byte("bb"), []byte("ccc"), []byte("dddd")}
	n, err := r.TryWriteBatch(records)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(records) {
		t.Fatalf("wrote %d of %d records", n, len(records))
	}
	out, err := r.TryReadBatch(len(records))
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != len(records) {
		t.Fatalf("read %d of %d records", len(out), len(records))
	}
	for i, rec := range records {
		if !bytes.Equal(out[i], rec) {
			t.Errorf("record %d = %q, want %q", i, out[i], rec)
		}
	}
}

func TestOpenBindsExistingRegion(t *testing.T) {
	capacity := uint64(256)
	region := make([]byte, ring.RegionSize(capacity))
	writer, err := ring.Create(region, capacity)
	if err != nil {
		t.Fatal(err)
	}
	if ok, err := writer.TryWrite([]byte("shared")); err != nil || !ok {
		t.Fatalf("TryWrite = %v, %v", ok, err)
	}

	reader, err := ring.Open(region)
	if err != nil {
		t.Fatal(err)
	}
	got, ok, err := reader.TryRead()
	if err != nil || !ok {
		t.Fatalf("TryRead on opened ring = %v, %v, %v", got, ok, err)
	}
	if !bytes.Equal(got, []byte("shared")) {
		t.Errorf("got %q, want %q", got, "shared")
	}
}

func TestWriteSeqMinusReadSeqWithinCapacityInvariant(t *testing.T) {
	r := newTestRing(t, 64)
	for i := 0; i < 200; i++ {
		r.TryWrite([]byte("x"))
		occ := r.Occupied()
		if occ > r.Capacity() {
			t.Fatalf("iter %d: occupied %d exceeds capacity %d", i, occ, r.Capacity())
		}
		r.TryRead()
	}
}
