package sim

import (
	"context"
	"sync"
)

// MemoryQueue is the in-process queue backend. Popped items are tracked
// until Ack, mirroring the reliable-pop semantics of the redis backend.
type MemoryQueue struct {
	mu         sync.Mutex
	items      []string
	processing map[string]bool
	notify     chan struct{}
	closed     bool
}

// NewMemoryQueue returns an empty in-process queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		processing: map[string]bool{},
		notify:     make(chan struct{}, 1),
	}
}

// Push appends an item.
func (q *MemoryQueue) Push(_ context.Context, item string) error {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Pop blocks until an item is available or the context ends.
func (q *MemoryQueue) Pop(ctx context.Context) (string, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items = q.items[1:]
			q.processing[item] = true
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				// wake another waiter; a notify token covers one pop only
				select {
				case q.notify <- struct{}{}:
				default:
				}
			}
			return item, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-q.notify:
		}
	}
}

// Ack marks a popped item as done.
func (q *MemoryQueue) Ack(_ context.Context, item string) error {
	q.mu.Lock()
	delete(q.processing, item)
	q.mu.Unlock()
	return nil
}

// Requeue returns all unacknowledged items to the queue; used on worker
// restarts.
func (q *MemoryQueue) Requeue(_ context.Context) int {
	q.mu.Lock()
	n := len(q.processing)
	for item := range q.processing {
		q.items = append(q.items, item)
	}
	q.processing = map[string]bool{}
	q.mu.Unlock()
	if n > 0 {
		select {
		case q.notify <- struct{}{}:
		default:
		}
	}
	return n
}

// Len reports the pending item count.
func (q *MemoryQueue) Len(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items), nil
}

// Close releases the queue.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	return nil
}
