package queue

import (
	"sync"
)

// Queue is a thread-safe FIFO of keyed items. Pushing a key that is already
// queued replaces its item in place, so a burst of writes to one key costs a
// single slot and keeps its original position.
type Queue[K comparable, T any] struct {
	mu    sync.Mutex
	keys  []K
	items map[K]T
}

// New creates a new empty queue.
func New[K comparable, T any]() *Queue[K, T] {
	return &Queue[K, T]{
		items: make(map[K]T),
	}
}

// Push queues item under key, replacing any item already queued for key.
func (q *Queue[K, T]) Push(key K, item T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.items[key]; !ok {
		q.keys = append(q.keys, key)
	}
	q.items[key] = item
}

// Requeue puts items back after a failed drain. A key pushed again in the
// meantime keeps its newer item.
func (q *Queue[K, T]) Requeue(keys []K, items []T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var front []K
	for i, k := range keys {
		if _, ok := q.items[k]; ok {
			continue
		}
		q.items[k] = items[i]
		front = append(front, k)
	}
	q.keys = append(front, q.keys...)
}

// Remove drops the item queued for key and reports whether there was one.
func (q *Queue[K, T]) Remove(key K) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.items[key]; !ok {
		return false
	}
	delete(q.items, key)
	for i, k := range q.keys {
		if k == key {
			q.keys = append(q.keys[:i], q.keys[i+1:]...)
			break
		}
	}
	return true
}

// Pop removes and returns the oldest item. ok is false if the queue is empty.
func (q *Queue[K, T]) Pop() (key K, item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.keys) == 0 {
		return key, item, false
	}
	key = q.keys[0]
	q.keys = q.keys[1:]
	item = q.items[key]
	delete(q.items, key)
	return key, item, true
}

// Empty returns true if the queue has no items.
func (q *Queue[K, T]) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.keys) == 0
}

// Len returns the number of items in the queue.
func (q *Queue[K, T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.keys)
}

// Clear removes all items from the queue.
func (q *Queue[K, T]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.keys = nil
	q.items = make(map[K]T)
}

// GetAndEmpty returns all keys and items in queue order and clears the queue.
func (q *Queue[K, T]) GetAndEmpty() ([]K, []T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	keys := q.keys
	items := make([]T, len(keys))
	for i, k := range keys {
		items[i] = q.items[k]
	}
	q.keys = nil
	q.items = make(map[K]T)
	return keys, items
}
