// Package pqueue implements the generic min-priority queue used by the
// metric-tree search frontier (internal/metrictree): add, pop, append, and
// the two splits the BK-tree search protocol needs.
package pqueue

import "container/heap"

// Item pairs a payload with its priority. seq is the insertion order, used
// only to break priority ties deterministically — the search algorithm
// itself is insensitive to how ties are broken.
type Item[T any] struct {
	Value    T
	Priority int
	seq      int64
}

// Queue is a min-priority queue over Item[T], backed by container/heap.
type Queue[T any] struct {
	h      innerHeap[T]
	nextSeq int64
}

// New creates an empty Queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Len reports the number of items currently queued.
func (q *Queue[T]) Len() int { return len(q.h) }

// Empty reports whether the queue has no items.
func (q *Queue[T]) Empty() bool { return len(q.h) == 0 }

// Add inserts value at the given priority.
func (q *Queue[T]) Add(value T, priority int) {
	heap.Push(&q.h, Item[T]{Value: value, Priority: priority, seq: q.nextSeq})
	q.nextSeq++
}

// Pop removes and returns the minimum-priority item, or ok=false if empty.
func (q *Queue[T]) Pop() (Item[T], bool) {
	if q.Empty() {
		return Item[T]{}, false
	}
	item := heap.Pop(&q.h).(Item[T])
	return item, true
}

// Peek returns the minimum-priority item without removing it.
func (q *Queue[T]) Peek() (Item[T], bool) {
	if q.Empty() {
		return Item[T]{}, false
	}
	return q.h[0], true
}

// Append merges other into q, preserving heap order. other is left empty.
func (q *Queue[T]) Append(other *Queue[T]) {
	if other == nil {
		return
	}
	for _, item := range other.h {
		heap.Push(&q.h, Item[T]{Value: item.Value, Priority: item.Priority, seq: q.nextSeq})
		q.nextSeq++
	}
	other.h = nil
}

// SplitAtPriority partitions q into items with Priority <= p (returned,
// still in priority order) and the rest, which remains in q.
func (q *Queue[T]) SplitAtPriority(p int) []Item[T] {
	var out []Item[T]
	for !q.Empty() {
		item, _ := q.Peek()
		if item.Priority > p {
			break
		}
		popped, _ := q.Pop()
		out = append(out, popped)
	}
	return out
}

// SplitAtLength removes and returns the k lowest-priority items in
// ascending order. ok is false if q has fewer than k items, in which case
// q is left unmodified and the returned slice is nil.
func (q *Queue[T]) SplitAtLength(k int) ([]Item[T], bool) {
	if q.Len() < k {
		return nil, false
	}
	out := make([]Item[T], 0, k)
	for i := 0; i < k; i++ {
		item, _ := q.Pop()
		out = append(out, item)
	}
	return out, true
}

// ToList drains q and returns its items in ascending priority order.
func (q *Queue[T]) ToList() []Item[T] {
	out := make([]Item[T], 0, q.Len())
	for !q.Empty() {
		item, _ := q.Pop()
		out = append(out, item)
	}
	return out
}

type innerHeap[T any] []Item[T]

func (h innerHeap[T]) Len() int { return len(h) }

func (h innerHeap[T]) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h innerHeap[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *innerHeap[T]) Push(x any) {
	*h = append(*h, x.(Item[T]))
}

func (h *innerHeap[T]) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
