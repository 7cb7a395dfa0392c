// Package benchmarks
// Author: momentics <momentics@gmail.com>
//
// Throughput and latency benchmarks for the wire, ring, doorbell and
// poolmgr packages.

package benchmarks

import (
	"context"
	"testing"
	"time"

	"github.com/cortexide/lapc/doorbell"
	"github.com/cortexide/lapc/fake"
	"github.com/cortexide/lapc/poolmgr"
	"github.com/cortexide/lapc/registry"
	"github.com/cortexide/lapc/ring"
	"github.com/cortexide/lapc/wire"
)

// BenchmarkWireEncode measures frame-encoding throughput.
func BenchmarkWireEncode(b *testing.B) {
	payload := make([]byte, 1024)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := wire.Encode(wire.MsgData, payload, uint64(i), 0); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkWireEncodeInto measures encoding into a caller-owned buffer,
// avoiding the per-call allocation BenchmarkWireEncode pays for.
func BenchmarkWireEncodeInto(b *testing.B) {
	payload := make([]byte, 1024)
	dst := make([]byte, wire.HeaderLen+len(payload))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := wire.EncodeInto(dst, wire.MsgData, payload, uint64(i), 0); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkWireDecode measures frame-decoding and CRC32 verification
// throughput.
func BenchmarkWireDecode(b *testing.B) {
	payload := make([]byte, 1024)
	frame, err := wire.Encode(wire.MsgData, payload, 1, 0)
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := wire.Decode(frame); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkRingWriteRead measures single-producer/single-consumer
// round-trip throughput through one ring, the hot path the 1M msg/s
// target runs against.
func BenchmarkRingWriteRead(b *testing.B) {
	region := make([]byte, ring.RegionSize(1<<20))
	r, err := ring.Create(region, 1<<20)
	if err != nil {
		b.Fatal(err)
	}
	record := make([]byte, 128)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ok, err := r.TryWrite(record)
		if err != nil {
			b.Fatal(err)
		}
		if !ok {
			if _, _, err := r.TryRead(); err != nil {
				b.Fatal(err)
			}
			ok, err = r.TryWrite(record)
			if err != nil || !ok {
				b.Fatalf("write still refused after drain: ok=%v err=%v", ok, err)
			}
		}
		if _, _, err := r.TryRead(); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkRingWriteBatch measures the batched write path poolmgr-fed
// sessions use under sustained load.
func BenchmarkRingWriteBatch(b *testing.B) {
	region := make([]byte, ring.RegionSize(1<<20))
	r, err := ring.Create(region, 1<<20)
	if err != nil {
		b.Fatal(err)
	}
	records := make([][]byte, 16)
	for i := range records {
		records[i] = make([]byte, 128)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := r.TryWriteBatch(records); err != nil {
			b.Fatal(err)
		}
		if _, err := r.TryReadBatch(len(records)); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkDoorbellSignalWait measures one signal-to-wake round trip,
// the latency poolmgr's health check times against cfg.UnhealthyAfter.
func BenchmarkDoorbellSignalWait(b *testing.B) {
	bell := fake.NewDoorbell()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := bell.Signal(); err != nil {
			b.Fatal(err)
		}
		if _, err := doorbell.WaitAny(context.Background(), bell, time.Second); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkRealDoorbellSignalWait exercises the Linux eventfd+epoll path
// directly, where BenchmarkDoorbellSignalWait only exercises the fake.
func BenchmarkRealDoorbellSignalWait(b *testing.B) {
	bell, err := doorbell.New()
	if err != nil {
		b.Skipf("doorbell unavailable on this platform: %v", err)
	}
	defer bell.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := bell.Signal(); err != nil {
			b.Fatal(err)
		}
		if _, err := doorbell.WaitAny(context.Background(), bell, time.Second); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkCrossInstanceDoorbellSignalWait times the round trip the
// rendezvous handshake actually produces: a peer bound via Open(fd) waiting
// on a signal raised by the owning Doorbell, not a single instance signaling
// itself.
func BenchmarkCrossInstanceDoorbellSignalWait(b *testing.B) {
	owner, err := doorbell.New()
	if err != nil {
		b.Skipf("doorbell unavailable on this platform: %v", err)
	}
	defer owner.Close()
	peer, err := doorbell.Open(owner.FD())
	if err != nil {
		b.Skipf("cross-instance open unavailable on this platform: %v", err)
	}
	defer peer.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := owner.Signal(); err != nil {
			b.Fatal(err)
		}
		if _, err := doorbell.WaitAny(context.Background(), peer, time.Second); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkPoolAcquireRelease measures the adaptive pool's slot
// acquire/release cycle under steady load, the path that must sustain the
// scale-up/scale-down thresholds without stalling callers.
func BenchmarkPoolAcquireRelease(b *testing.B) {
	reg := registry.New(256)
	pool := poolmgr.New(reg, poolmgr.DefaultConfig(256))
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		slot, err := pool.Acquire(ctx, "bench-client", 1, "s2c", "c2s")
		if err != nil {
			b.Fatal(err)
		}
		pool.Release(slot)
	}
}
