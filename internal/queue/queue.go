// Package queue buffers fixes between intake and the batched database writer.
package queue

import "sync"

// Queue is a bounded, thread-safe FIFO of pending writes. When full, the
// oldest entries are dropped so intake never blocks on a slow database.
type Queue[T any] struct {
	mu      sync.Mutex
	items   []T
	limit   int
	dropped uint64
}

// New returns an empty queue holding at most limit items. limit <= 0 means
// unbounded.
func New[T any](limit int) *Queue[T] {
	return &Queue[T]{limit: limit}
}

// Push appends items and returns how many old entries were dropped to
// stay within the limit.
func (q *Queue[T]) Push(items ...T) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, items...)
	return q.trim()
}

// Requeue puts a batch that failed to write back at the front so it is
// retried before anything pushed since.
func (q *Queue[T]) Requeue(batch []T) int {
	if len(batch) == 0 {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	items := make([]T, 0, len(batch)+len(q.items))
	items = append(items, batch...)
	q.items = append(items, q.items...)
	return q.trim()
}

func (q *Queue[T]) trim() int {
	if q.limit <= 0 || len(q.items) <= q.limit {
		return 0
	}
	n := len(q.items) - q.limit
	var zero T
	for i := 0; i < n; i++ {
		q.items[i] = zero
	}
	q.items = q.items[n:]
	q.dropped += uint64(n)
	return n
}

// Take removes and returns up to n items from the front. n <= 0 takes everything.
func (q *Queue[T]) Take(n int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n <= 0 || n > len(q.items) {
		n = len(q.items)
	}
	if n == 0 {
		return nil
	}
	batch := make([]T, n)
	copy(batch, q.items[:n])
	q.items = q.items[n:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return batch
}

// Len returns the number of pending items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns how many items have been discarded over the queue's lifetime.
func (q *Queue[T]) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
