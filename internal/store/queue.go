package store

import "sync"

// queue is an unbounded FIFO that never blocks Push.
type queue[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	ready  chan struct{}
}

func newQueue[T any](capacity int) *queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &queue[T]{
		items: make([]T, 0, capacity),
		ready: make(chan struct{}, 1),
	}
}

// Push appends item. Returns false once the queue is closed.
func (q *queue[T]) Push(item T) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, item)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

// Ready is signalled after a Push.
func (q *queue[T]) Ready() <-chan struct{} {
	return q.ready
}

// Drain removes up to max items (all when max <= 0).
func (q *queue[T]) Drain(max int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.items)
	if n == 0 {
		return nil
	}
	if max > 0 && max < n {
		n = max
	}

	out := make([]T, n)
	copy(out, q.items[:n])

	var zero T
	for i := range n {
		q.items[i] = zero
	}
	q.items = q.items[n:]

	return out
}

// Close rejects further pushes. Queued items can still be drained.
func (q *queue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

func (q *queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
