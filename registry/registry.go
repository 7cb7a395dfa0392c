// File: registry/registry.go
// Package registry tracks the lifecycle of every ring-pair slot a
// rendezvous server has handed out: a Free -> Active -> Draining -> Free
// state machine guarded by a per-slot generation counter so a stale
// reference from a dead peer can never be mistaken for a live one.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Generalized from a single cancellable session with an id/done/deadline
// shape into a resizable table of slots reused across the server's
// lifetime, each carrying its own cancellation and deadline instead of
// allocating a fresh one per connection.

package registry

import (
	"sync"
	"time"

	"github.com/cortexide/lapc/api"
)

// State is a slot's position in the Free → Active → Draining → Free cycle.
type State int

const (
	Free State = iota
	Active
	Draining
)

func (s State) String() string {
	switch s {
	case Free:
		return "free"
	case Active:
		return "active"
	case Draining:
		return "draining"
	default:
		return "unknown"
	}
}

// Slot is one entry in the registry: a ring pair, the doorbells that wake
// each side, and the bookkeeping needed to detect and reclaim a dead peer.
type Slot struct {
	Index      uint32
	Generation uint32

	ClientName string
	PeerPID    int32

	ServerRingName string
	ClientRingName string

	done     chan struct{}
	once     sync.Once
	deadline time.Time

	mu      sync.Mutex
	state   State
	cleanup func()
}

// SetCleanup registers fn to run once, the next time this slot is
// released, after it has already been returned to Free and before
// Release returns to its caller. The allocator that wires up a slot's
// ring pair and doorbells (rendezvous.Server) uses this to unlink the
// shared-memory segments and close the doorbells it created, so a
// reclaimed or reused slot never leaks the OS resources bound to its
// previous occupant. A slot released while no cleanup is registered
// (e.g. in tests that never call SetCleanup) simply skips this step.
func (s *Slot) SetCleanup(fn func()) {
	s.mu.Lock()
	s.cleanup = fn
	s.mu.Unlock()
}

// Cancel marks the slot's session done; idempotent.
func (s *Slot) Cancel() {
	s.once.Do(func() { close(s.done) })
}

// Done returns a channel closed once the slot's session has been cancelled.
func (s *Slot) Done() <-chan struct{} { return s.done }

// Deadline returns the slot's expiration, if one was set by WithDeadline.
func (s *Slot) Deadline() (time.Time, bool) {
	if s.deadline.IsZero() {
		return time.Time{}, false
	}
	return s.deadline, true
}

// WithDeadline sets an absolute expiration for the slot's current lease.
func (s *Slot) WithDeadline(t time.Time) { s.deadline = t }

// State returns the slot's current lifecycle state.
func (s *Slot) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Registry is a table of Slots, indexed by position, each reused across
// its Free/Active/Draining cycle rather than reallocated; Grow and Shrink
// change its size.
type Registry struct {
	mu    sync.Mutex
	slots []*Slot
	free  []uint32 // stack of indices currently Free
}

// New constructs a Registry with the given starting capacity.
func New(capacity int) *Registry {
	r := &Registry{
		slots: make([]*Slot, capacity),
		free:  make([]uint32, 0, capacity),
	}
	for i := range r.slots {
		r.slots[i] = &Slot{
			Index: uint32(i),
			state: Free,
			done:  make(chan struct{}),
		}
		r.free = append(r.free, uint32(i))
	}
	return r
}

// Capacity returns the current number of slots the registry manages. It
// changes over the registry's lifetime: poolmgr calls Grow/Shrink to track
// the adaptive pool's sizing decisions.
func (r *Registry) Capacity() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}

// Grow appends extra new Free slots to the table, indexed contiguously
// after the current highest index, and returns the registry's new
// capacity. Existing slot indices and generations are untouched. Called
// by poolmgr when occupancy crosses ScaleUpThreshold.
func (r *Registry) Grow(extra int) int {
	if extra <= 0 {
		return r.Capacity()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	base := len(r.slots)
	for i := 0; i < extra; i++ {
		idx := uint32(base + i)
		r.slots = append(r.slots, &Slot{
			Index: idx,
			state: Free,
			done:  make(chan struct{}),
		})
		r.free = append(r.free, idx)
	}
	return len(r.slots)
}

// Shrink removes up to maxRemove currently-Free slots from the tail of the
// table (highest indices first) and returns how many were actually
// removed; a slot still Active or Draining blocks further removal past it,
// so Shrink never reclaims a slot a caller might still reference. Called
// by poolmgr when occupancy crosses ScaleDownThreshold, bounded below by
// Config.MinIdle.
func (r *Registry) Shrink(maxRemove int) int {
	if maxRemove <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for removed < maxRemove {
		last := len(r.slots) - 1
		if last < 0 {
			break
		}
		s := r.slots[last]
		s.mu.Lock()
		free := s.state == Free
		s.mu.Unlock()
		if !free {
			break
		}
		idx := s.Index
		pos := -1
		for i, v := range r.free {
			if v == idx {
				pos = i
				break
			}
		}
		if pos == -1 {
			// Not on the free list (e.g. mid-Acquire race); stop rather than
			// drop a slot some other goroutine is about to claim.
			break
		}
		r.free = append(r.free[:pos], r.free[pos+1:]...)
		r.slots = r.slots[:last]
		removed++
	}
	return removed
}

// Acquire transitions a Free slot to Active, bumps its generation, and
// returns it populated with the caller's metadata. It fails with
// api.ErrPoolExhausted if no slot is Free.
func (r *Registry) Acquire(clientName string, peerPID int32, serverRingName, clientRingName string) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.free) == 0 {
		return nil, api.ErrPoolExhausted
	}
	idx := r.free[len(r.free)-1]
	r.free = r.free[:len(r.free)-1]

	s := r.slots[idx]
	s.mu.Lock()
	s.state = Active
	s.Generation++
	s.ClientName = clientName
	s.PeerPID = peerPID
	s.ServerRingName = serverRingName
	s.ClientRingName = clientRingName
	s.deadline = time.Time{}
	s.done = make(chan struct{})
	s.once = sync.Once{}
	s.cleanup = nil
	s.mu.Unlock()
	return s, nil
}

// Lookup returns the slot at index if it is Active and its generation
// matches, guarding against use of a stale reference from a dead peer's
// prior lease. ok is false for any mismatch.
func (r *Registry) Lookup(index, generation uint32) (*Slot, bool) {
	r.mu.Lock()
	if int(index) >= len(r.slots) {
		r.mu.Unlock()
		return nil, false
	}
	s := r.slots[index]
	r.mu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Active || s.Generation != generation {
		return nil, false
	}
	return s, true
}

// BeginDrain transitions an Active slot to Draining, the state a slot
// occupies while in-flight frames still reference it but no new work may
// be accepted. Returns false if the slot was not Active.
func (r *Registry) BeginDrain(index uint32) bool {
	r.mu.Lock()
	if int(index) >= len(r.slots) {
		r.mu.Unlock()
		return false
	}
	s := r.slots[index]
	r.mu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Active {
		return false
	}
	s.state = Draining
	return true
}

// Release transitions a slot back to Free and returns it to the free
// list, regardless of whether it was Active or Draining. The slot's
// generation is left untouched so in-flight Lookup calls racing the
// release correctly observe a stale generation on the next Acquire.
// Release is idempotent: a slot already Free is left untouched and
// reports false, so a slot reclaimed once by a health-check teardown
// and a second time by its session's own close path is never pushed
// onto the free list twice (which would hand the same slot to two
// concurrent Acquire callers). Any cleanup registered via SetCleanup
// runs exactly once, on the transition that actually frees the slot.
func (r *Registry) Release(index uint32) bool {
	r.mu.Lock()
	if int(index) >= len(r.slots) {
		r.mu.Unlock()
		return false
	}
	s := r.slots[index]
	s.mu.Lock()
	if s.state == Free {
		s.mu.Unlock()
		r.mu.Unlock()
		return false
	}
	s.state = Free
	s.ClientName = ""
	s.PeerPID = 0
	s.ServerRingName = ""
	s.ClientRingName = ""
	cleanup := s.cleanup
	s.cleanup = nil
	s.Cancel()
	s.mu.Unlock()
	r.free = append(r.free, index)
	r.mu.Unlock()

	if cleanup != nil {
		cleanup()
	}
	return true
}

// Snapshot returns the current state of every slot, for metrics export.
func (r *Registry) Snapshot() []SlotSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SlotSnapshot, len(r.slots))
	for i, s := range r.slots {
		s.mu.Lock()
		out[i] = SlotSnapshot{
			Index:      s.Index,
			Generation: s.Generation,
			State:      s.state,
			ClientName: s.ClientName,
			PeerPID:    s.PeerPID,
		}
		s.mu.Unlock()
	}
	return out
}

// SlotSnapshot is a point-in-time, lock-free copy of a Slot's observable
// fields, safe to hand to a metrics exporter running on another goroutine.
type SlotSnapshot struct {
	Index      uint32
	Generation uint32
	State      State
	ClientName string
	PeerPID    int32
}
