package registry_test

import (
	"testing"

	"github.com/cortexide/lapc/api"
	"github.com/cortexide/lapc/registry"
)

func TestAcquireLookupRelease(t *testing.T) {
	r := registry.New(2)
	slot, err := r.Acquire("client-a", 123, "srv-ring", "cli-ring")
	if err != nil {
		t.Fatal(err)
	}
	if slot.State() != registry.Active {
		t.Fatalf("expected Active, got %v", slot.State())
	}

	found, ok := r.Lookup(slot.Index, slot.Generation)
	if !ok || found != slot {
		t.Fatalf("Lookup failed to find acquired slot")
	}

	r.Release(slot.Index)
	if slot.State() != registry.Free {
		t.Fatalf("expected Free after release, got %v", slot.State())
	}
	if _, ok := r.Lookup(slot.Index, slot.Generation); ok {
		t.Fatal("Lookup should fail for a released slot")
	}
}

func TestAcquireExhaustion(t *testing.T) {
	r := registry.New(1)
	if _, err := r.Acquire("a", 1, "s", "c"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Acquire("b", 2, "s2", "c2"); err != api.ErrPoolExhausted {
		t.Fatalf("expected ErrPoolExhausted, got %v", err)
	}
}

func TestGenerationGuardsAgainstStaleLookup(t *testing.T) {
	r := registry.New(1)
	slot, err := r.Acquire("a", 1, "s", "c")
	if err != nil {
		t.Fatal(err)
	}
	staleGen := slot.Generation
	r.Release(slot.Index)

	slot2, err := r.Acquire("b", 2, "s2", "c2")
	if err != nil {
		t.Fatal(err)
	}
	if slot2.Index != slot.Index {
		t.Fatalf("expected slot reuse at same index, got %d vs %d", slot2.Index, slot.Index)
	}
	if _, ok := r.Lookup(slot.Index, staleGen); ok {
		t.Fatal("Lookup with a stale generation must fail even though the slot is Active again")
	}
	if _, ok := r.Lookup(slot2.Index, slot2.Generation); !ok {
		t.Fatal("Lookup with the current generation must succeed")
	}
}

func TestBeginDrainTransitionsFromActiveOnly(t *testing.T) {
	r := registry.New(1)
	slot, err := r.Acquire("a", 1, "s", "c")
	if err != nil {
		t.Fatal(err)
	}
	if !r.BeginDrain(slot.Index) {
		t.Fatal("expected BeginDrain to succeed from Active")
	}
	if slot.State() != registry.Draining {
		t.Fatalf("expected Draining, got %v", slot.State())
	}
	if r.BeginDrain(slot.Index) {
		t.Fatal("BeginDrain should fail once already Draining")
	}
}

func TestReleaseCancelsDoneChannel(t *testing.T) {
	r := registry.New(1)
	slot, err := r.Acquire("a", 1, "s", "c")
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-slot.Done():
		t.Fatal("Done should not be closed for a freshly acquired slot")
	default:
	}
	r.Release(slot.Index)
	select {
	case <-slot.Done():
	default:
		t.Fatal("Done should be closed after Release")
	}
}

func TestGrowAddsFreeSlotsWithoutDisturbingExisting(t *testing.T) {
	r := registry.New(1)
	slot, err := r.Acquire("a", 1, "s", "c")
	if err != nil {
		t.Fatal(err)
	}

	newCap := r.Grow(3)
	if newCap != 4 {
		t.Fatalf("expected capacity 4 after Grow(3), got %d", newCap)
	}
	if r.Capacity() != 4 {
		t.Fatalf("expected Capacity() 4, got %d", r.Capacity())
	}
	if slot.State() != registry.Active {
		t.Fatal("Grow must not disturb an already-Active slot")
	}

	for i := 0; i < 3; i++ {
		if _, err := r.Acquire("x", 9, "s", "c"); err != nil {
			t.Fatalf("expected the 3 grown slots to be acquirable, got %v at i=%d", err, i)
		}
	}
	if _, err := r.Acquire("overflow", 9, "s", "c"); err != api.ErrPoolExhausted {
		t.Fatalf("expected exhaustion once the grown capacity is also consumed, got %v", err)
	}
}

func TestShrinkRemovesOnlyFreeTailSlots(t *testing.T) {
	r := registry.New(3)
	slot0, err := r.Acquire("a", 1, "s", "c")
	if err != nil {
		t.Fatal(err)
	}
	slot1, err := r.Acquire("b", 2, "s", "c")
	if err != nil {
		t.Fatal(err)
	}
	slot2, err := r.Acquire("c", 3, "s", "c")
	if err != nil {
		t.Fatal(err)
	}
	// Acquire pops from the top of the free stack, so the first Acquire in a
	// freshly-built registry lands on the highest index; release the two
	// higher slots back to Free, keeping the lowest-indexed one Active, so
	// Shrink's tail-first removal has real Free slots above it to remove.
	var active *registry.Slot
	for _, s := range []*registry.Slot{slot0, slot1, slot2} {
		if s.Index == 0 {
			active = s
			continue
		}
		r.Release(s.Index)
	}
	if active == nil {
		t.Fatal("expected one of the three acquired slots to be index 0")
	}

	removed := r.Shrink(5)
	if removed != 2 {
		t.Fatalf("expected 2 free tail slots removed, got %d", removed)
	}
	if r.Capacity() != 1 {
		t.Fatalf("expected capacity 1 after shrinking past the Active slot, got %d", r.Capacity())
	}
	if active.State() != registry.Active {
		t.Fatal("Shrink must never reclaim an Active slot")
	}
}

func TestSnapshotReflectsCounts(t *testing.T) {
	r := registry.New(3)
	r.Acquire("a", 1, "s", "c")
	r.Acquire("b", 2, "s2", "c2")

	snap := r.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(snap))
	}
	activeCount := 0
	for _, s := range snap {
		if s.State == registry.Active {
			activeCount++
		}
	}
	if activeCount != 2 {
		t.Fatalf("expected 2 active slots, got %d", activeCount)
	}
}
