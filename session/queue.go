package session

import (
	"context"
	"sync"
)

// OutboundQueue is the unbounded FIFO of player actions awaiting relay
// to the backend. Many interaction handlers push concurrently; the
// session loop is the single consumer. The queue is safe on its own,
// so producers never take the session lock to enqueue.
type OutboundQueue struct {
	mu     sync.Mutex
	items  []OutboundRequest
	notify chan struct{}
}

func NewOutboundQueue() *OutboundQueue {
	return &OutboundQueue{
		notify: make(chan struct{}, 1),
	}
}

// Push appends a request and wakes the consumer if it is waiting.
func (q *OutboundQueue) Push(req OutboundRequest) {
	q.mu.Lock()
	q.items = append(q.items, req)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// TryPop removes the oldest request without blocking.
func (q *OutboundQueue) TryPop() (OutboundRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return OutboundRequest{}, false
	}
	req := q.items[0]
	q.items = q.items[1:]
	return req, true
}

// Pop blocks until a request is available or the context is done.
func (q *OutboundQueue) Pop(ctx context.Context) (OutboundRequest, error) {
	for {
		if req, ok := q.TryPop(); ok {
			return req, nil
		}
		select {
		case <-ctx.Done():
			return OutboundRequest{}, ctx.Err()
		case <-q.notify:
		}
	}
}

// Len reports the number of queued requests.
func (q *OutboundQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
