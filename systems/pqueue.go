package systems

import "container/heap"

// pqEntry pairs a queued value with the key used to find it again.
type pqEntry[K comparable, T any] struct {
	key K
	val T
}

// pqHeap implements heap.Interface and keeps pos in sync on every swap.
type pqHeap[K comparable, T any] struct {
	entries []pqEntry[K, T]
	pos     map[K]int
	less    func(a, b T) bool
}

func (h *pqHeap[K, T]) Len() int { return len(h.entries) }
func (h *pqHeap[K, T]) Less(i, j int) bool {
	return h.less(h.entries[i].val, h.entries[j].val)
}
func (h *pqHeap[K, T]) Swap(i, j int) {
	h.entries[i], h.entries[j] = h.entries[j], h.entries[i]
	h.pos[h.entries[i].key] = i
	h.pos[h.entries[j].key] = j
}

func (h *pqHeap[K, T]) Push(x any) {
	e := x.(pqEntry[K, T])
	h.pos[e.key] = len(h.entries)
	h.entries = append(h.entries, e)
}

func (h *pqHeap[K, T]) Pop() any {
	n := len(h.entries)
	e := h.entries[n-1]
	h.entries = h.entries[:n-1]
	delete(h.pos, e.key)
	return e
}

// PriorityQueue is a fixed-capacity binary heap with keyed lookup.
// The head is the element for which less reports true against all others.
// Each key may appear at most once.
type PriorityQueue[K comparable, T any] struct {
	h        pqHeap[K, T]
	capacity int
}

// NewPriorityQueue allocates a queue holding at most capacity elements.
func NewPriorityQueue[K comparable, T any](capacity int, less func(a, b T) bool) *PriorityQueue[K, T] {
	return &PriorityQueue[K, T]{
		h: pqHeap[K, T]{
			entries: make([]pqEntry[K, T], 0, capacity),
			pos:     make(map[K]int, capacity),
			less:    less,
		},
		capacity: capacity,
	}
}

// Len returns the number of queued elements.
func (q *PriorityQueue[K, T]) Len() int { return len(q.h.entries) }

// Cap returns the fixed capacity.
func (q *PriorityQueue[K, T]) Cap() int { return q.capacity }

// Push inserts v under key. It returns false if the queue is full.
// Pushing a key that is already queued replaces its value.
func (q *PriorityQueue[K, T]) Push(key K, v T) bool {
	if i, ok := q.h.pos[key]; ok {
		q.h.entries[i].val = v
		heap.Fix(&q.h, i)
		return true
	}
	if len(q.h.entries) >= q.capacity {
		return false
	}
	heap.Push(&q.h, pqEntry[K, T]{key: key, val: v})
	return true
}

// Pop removes and returns the head.
func (q *PriorityQueue[K, T]) Pop() (K, T, bool) {
	if len(q.h.entries) == 0 {
		var k K
		var v T
		return k, v, false
	}
	e := heap.Pop(&q.h).(pqEntry[K, T])
	return e.key, e.val, true
}

// Peek returns the head without removing it.
func (q *PriorityQueue[K, T]) Peek() (K, T, bool) {
	if len(q.h.entries) == 0 {
		var k K
		var v T
		return k, v, false
	}
	e := q.h.entries[0]
	return e.key, e.val, true
}

// IndexOf returns the heap position of key, or -1 if it is not queued.
func (q *PriorityQueue[K, T]) IndexOf(key K) int {
	if i, ok := q.h.pos[key]; ok {
		return i
	}
	return -1
}

// At returns the element at heap position i.
func (q *PriorityQueue[K, T]) At(i int) (K, T) {
	e := q.h.entries[i]
	return e.key, e.val
}

// Set replaces the value at heap position i and restores heap order.
func (q *PriorityQueue[K, T]) Set(i int, v T) {
	q.h.entries[i].val = v
	heap.Fix(&q.h, i)
}

// RemoveAt removes and returns the element at heap position i.
func (q *PriorityQueue[K, T]) RemoveAt(i int) (K, T) {
	e := heap.Remove(&q.h, i).(pqEntry[K, T])
	return e.key, e.val
}

// Contains reports whether key is queued.
func (q *PriorityQueue[K, T]) Contains(key K) bool {
	_, ok := q.h.pos[key]
	return ok
}

// Reset empties the queue, keeping its storage.
func (q *PriorityQueue[K, T]) Reset() {
	q.h.entries = q.h.entries[:0]
	clear(q.h.pos)
}
