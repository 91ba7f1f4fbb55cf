// Package memory provides a bounded in-process crawl queue.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/websearch/internal/crawler"
)

var (
	// ErrQueueFull is returned by TryEnqueue when no slot is free.
	ErrQueueFull = crawler.ErrQueueFull
	// ErrQueueClosed is returned after Close.
	ErrQueueClosed = crawler.ErrQueueClosed
)

// Queue is a bounded in-memory queue with context-aware operations. The
// item channel is never closed; done signals Close to blocked producers and
// to consumers once the buffer is drained.
type Queue struct {
	ch        chan crawler.QueueItem
	done      chan struct{}
	closeOnce sync.Once
}

// NewQueue constructs a queue holding at most capacity items.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		ch:   make(chan crawler.QueueItem, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue blocks until the item is accepted, the queue is closed or the
// context ends.
func (q *Queue) Enqueue(ctx context.Context, item crawler.QueueItem) error {
	if q.isClosed() {
		return ErrQueueClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case <-q.done:
		return ErrQueueClosed
	case q.ch <- item:
		return nil
	}
}

// TryEnqueue adds the item without blocking.
func (q *Queue) TryEnqueue(item crawler.QueueItem) error {
	if q.isClosed() {
		return ErrQueueClosed
	}
	select {
	case q.ch <- item:
		return nil
	default:
		return ErrQueueFull
	}
}

// Dequeue pops the next item, respecting context cancellation. After Close
// it keeps returning buffered items, then ErrQueueClosed.
func (q *Queue) Dequeue(ctx context.Context) (crawler.QueueItem, error) {
	select {
	case <-ctx.Done():
		return crawler.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item := <-q.ch:
		return item, nil
	case <-q.done:
		select {
		case item := <-q.ch:
			return item, nil
		default:
			return crawler.QueueItem{}, ErrQueueClosed
		}
	}
}

// Len reports the number of buffered items.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops accepting items and releases blocked producers. Buffered
// items can still be dequeued.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}

func (q *Queue) isClosed() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}
