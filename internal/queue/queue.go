package queue

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrQueueEmpty  = errors.New("queue is empty")
	ErrQueueClosed = errors.New("queue is closed")
)

type Queue[T any] interface {
	Push(item T) error
	Pop(ctx context.Context) (T, error)
	Size() int
	Close() error
}

// FIFO is an unbounded first-in first-out queue. Push never blocks, which
// makes it safe to call from browser event handlers.
type FIFO[T any] struct {
	mu     sync.Mutex
	items  []T
	notify chan struct{}
	done   chan struct{}
	closed bool
}

func NewFIFO[T any]() *FIFO[T] {
	return &FIFO[T]{
		items:  make([]T, 0),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (q *FIFO[T]) Push(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	q.items = append(q.items, item)
	select {
	case q.notify <- struct{}{}:
	default:
	}

	return nil
}

// Pop blocks until an item is available, the queue is closed and drained,
// or ctx is done.
func (q *FIFO[T]) Pop(ctx context.Context) (T, error) {
	for {
		item, err := q.TryPop()
		if !errors.Is(err, ErrQueueEmpty) {
			return item, err
		}

		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-q.notify:
		case <-q.done:
		}
	}
}

// TryPop returns ErrQueueEmpty instead of blocking.
func (q *FIFO[T]) TryPop() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		if q.closed {
			return zero, ErrQueueClosed
		}
		return zero, ErrQueueEmpty
	}

	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]

	return item, nil
}

func (q *FIFO[T]) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close rejects further pushes. Items already queued can still be popped.
func (q *FIFO[T]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.done)
	}

	return nil
}
