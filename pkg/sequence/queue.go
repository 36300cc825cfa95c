package sequence

import "container/heap"

type orderedItem[K ~uint64 | ~int, T any] struct {
	key   K
	value T
}

type orderedHeap[K ~uint64 | ~int, T any] struct {
	items []orderedItem[K, T]
}

func (h *orderedHeap[K, T]) Len() int           { return len(h.items) }
func (h *orderedHeap[K, T]) Less(i, j int) bool { return h.items[i].key < h.items[j].key }
func (h *orderedHeap[K, T]) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *orderedHeap[K, T]) Push(x any) {
	h.items = append(h.items, x.(orderedItem[K, T]))
}

func (h *orderedHeap[K, T]) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	old[n-1] = orderedItem[K, T]{} // avoid memory leak
	h.items = old[:n-1]
	return item
}

// OrderedQueue is a min-queue keyed by a sequence number. Each key is held
// at most once; pushing a key that is already queued is rejected.
type OrderedQueue[K ~uint64 | ~int, T any] struct {
	h    orderedHeap[K, T]
	keys map[K]struct{}
}

func NewOrderedQueue[K ~uint64 | ~int, T any]() *OrderedQueue[K, T] {
	q := &OrderedQueue[K, T]{keys: make(map[K]struct{})}
	heap.Init(&q.h)
	return q
}

// Push queues value under key. It reports false when key is already queued.
func (q *OrderedQueue[K, T]) Push(key K, value T) bool {
	if _, ok := q.keys[key]; ok {
		return false
	}
	q.keys[key] = struct{}{}
	heap.Push(&q.h, orderedItem[K, T]{key: key, value: value})
	return true
}

// Peek returns the smallest key without removing it.
func (q *OrderedQueue[K, T]) Peek() (K, T, bool) {
	if q.h.Len() == 0 {
		var (
			zk K
			zv T
		)
		return zk, zv, false
	}
	it := q.h.items[0]
	return it.key, it.value, true
}

// Pop removes and returns the smallest key.
func (q *OrderedQueue[K, T]) Pop() (K, T, bool) {
	if q.h.Len() == 0 {
		var (
			zk K
			zv T
		)
		return zk, zv, false
	}
	it := heap.Pop(&q.h).(orderedItem[K, T])
	delete(q.keys, it.key)
	return it.key, it.value, true
}

func (q *OrderedQueue[K, T]) Contains(key K) bool {
	_, ok := q.keys[key]
	return ok
}

func (q *OrderedQueue[K, T]) Len() int { return q.h.Len() }

func (q *OrderedQueue[K, T]) IsEmpty() bool { return q.h.Len() == 0 }

// Clear drops every queued value.
func (q *OrderedQueue[K, T]) Clear() {
	q.h.items = nil
	q.keys = make(map[K]struct{})
}
