// Package handle implements the fixed-capacity, generation-tagged
// handle-to-object table shared by the scheduler, job queue, and resource
// pipeline for referring to fibers, job nodes, and resource units without
// exposing raw pointers across package boundaries.
package handle

import (
	"sync"

	"github.com/vanerun/ukern/internal/constants"
)

// Handle is an opaque (generation, index) pair packed into a single
// integer: the high 16 bits are the slot's generation, the low 16 bits
// are its index into the table.
type Handle uint32

// Invalid is the zero handle; no Reserve call ever returns it, since slot
// 0's generation starts at 1 after its first use.
const Invalid Handle = 0

func makeHandle(generation uint16, index int) Handle {
	return Handle(uint32(generation)<<16 | uint32(uint16(index)))
}

func (h Handle) generation() uint16 { return uint16(h >> 16) }
func (h Handle) index() int         { return int(uint16(h)) }

type slot struct {
	generation uint16
	obj        interface{}
	occupied   bool
	nextFree   int // index of next free slot, or -1
}

// Table is a fixed-capacity array of (generation, object) slots with an
// intrusive free-list threaded through unoccupied slots. All operations
// are O(1) amortized and safe for concurrent use.
type Table struct {
	mu        sync.Mutex
	slots     []slot
	freeHead  int // index of first free slot, or -1 if exhausted
	liveCount int
}

// NewTable creates a table with the given fixed capacity.
func NewTable(capacity int) *Table {
	if capacity <= 0 {
		capacity = constants.DefaultHandleTableCapacity
	}
	t := &Table{
		slots: make([]slot, capacity),
	}
	for i := range t.slots {
		t.slots[i].nextFree = i + 1
	}
	t.slots[len(t.slots)-1].nextFree = -1
	t.freeHead = 0
	return t
}

// Reserve stores obj in a free slot and returns its handle. It returns
// (Invalid, false) if the table is exhausted (HandleExhaustion).
func (t *Table) Reserve(obj interface{}) (Handle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.freeHead == -1 {
		return Invalid, false
	}

	idx := t.freeHead
	s := &t.slots[idx]
	t.freeHead = s.nextFree

	s.generation++
	if s.generation == 0 {
		// Skip generation 0 so Invalid (generation 0, index 0) never
		// aliases a live handle.
		s.generation = 1
	}
	s.obj = obj
	s.occupied = true
	t.liveCount++

	return makeHandle(s.generation, idx), true
}

// GetObjectByHandle returns the object associated with h, or (nil, false)
// if h is stale or out of range.
func (t *Table) GetObjectByHandle(h Handle) (interface{}, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := h.index()
	if idx < 0 || idx >= len(t.slots) {
		return nil, false
	}
	s := &t.slots[idx]
	if !s.occupied || s.generation != h.generation() {
		return nil, false
	}
	return s.obj, true
}

// FreeHandle releases h's slot back to the free-list. Any copy of h still
// outstanding stops resolving at once, and the next Reserve of the slot
// bumps its generation so the old value never matches again. Freeing an
// already-stale or invalid handle is a no-op and reports false.
func (t *Table) FreeHandle(h Handle) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := h.index()
	if idx < 0 || idx >= len(t.slots) {
		return false
	}
	s := &t.slots[idx]
	if !s.occupied || s.generation != h.generation() {
		return false
	}

	s.obj = nil
	s.occupied = false
	s.nextFree = t.freeHead
	t.freeHead = idx
	t.liveCount--
	return true
}

// Len returns the number of currently-occupied slots.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.liveCount
}

// Capacity returns the table's fixed capacity.
func (t *Table) Capacity() int {
	return len(t.slots)
}
