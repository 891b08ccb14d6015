// Package container implements the fixed-shape data structures the
// scheduler, job queue, and resource manager build on: a priority queue
// keyed by a u16 priority, a doubly-linked list, a fixed-capacity ring
// buffer, and a keyed binary search tree. The specification describes
// these as contracts rather than implementations, free to be backed by
// standard-library collections provided their invariants hold; these are
// backed by container/heap and plain Go slices/maps accordingly.
package container

import "container/heap"

// PriorityItem is anything a PriorityQueue can order: a u16 priority plus
// an opaque payload. Lower Priority values are dequeued first, matching
// the scheduler's [-2,+2] external range remapped to [0,4] internally
// (see constants.PriorityOffset).
type PriorityItem struct {
	Priority uint16
	Value    interface{}

	seq   uint64 // insertion order, for FIFO tie-breaking within a level
	index int    // maintained by heap.Interface, -1 when not in the queue
}

// Index reports the item's current position in the queue, or -1 if it
// has been removed. Callers use this with PriorityQueue.Remove for
// out-of-order deletion (e.g. ForceRemoveForCompleteOnce).
func (it *PriorityItem) Index() int { return it.index }

type priorityHeap []*PriorityItem

func (h priorityHeap) Len() int { return len(h) }

func (h priorityHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h priorityHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *priorityHeap) Push(x interface{}) {
	item := x.(*PriorityItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *priorityHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// PriorityQueue is a binary min-heap keyed by PriorityItem.Priority, with
// FIFO ordering within a priority level. Safe for single-writer use; the
// scheduler and job queue guard it with their own locks.
type PriorityQueue struct {
	h       priorityHeap
	nextSeq uint64
}

// NewPriorityQueue creates an empty priority queue.
func NewPriorityQueue() *PriorityQueue {
	return &PriorityQueue{}
}

// Insert adds value at the given priority and returns the item handle,
// which Remove can later use for out-of-order deletion.
func (q *PriorityQueue) Insert(priority uint16, value interface{}) *PriorityItem {
	item := &PriorityItem{Priority: priority, Value: value, seq: q.nextSeq}
	q.nextSeq++
	heap.Push(&q.h, item)
	return item
}

// Peek returns the lowest-priority item without removing it, or nil if
// the queue is empty.
func (q *PriorityQueue) Peek() *PriorityItem {
	if len(q.h) == 0 {
		return nil
	}
	return q.h[0]
}

// RemoveFront pops and returns the lowest-priority item, or nil if the
// queue is empty.
func (q *PriorityQueue) RemoveFront() *PriorityItem {
	if len(q.h) == 0 {
		return nil
	}
	return heap.Pop(&q.h).(*PriorityItem)
}

// Remove deletes item from the queue regardless of its position,
// supporting out-of-order deletion. It is a no-op if item is not
// currently in this queue.
func (q *PriorityQueue) Remove(item *PriorityItem) {
	if item.index < 0 || item.index >= len(q.h) || q.h[item.index] != item {
		return
	}
	heap.Remove(&q.h, item.index)
}

// Len returns the number of items currently queued.
func (q *PriorityQueue) Len() int { return len(q.h) }

// IsEmpty reports whether the queue has no items.
func (q *PriorityQueue) IsEmpty() bool { return len(q.h) == 0 }
