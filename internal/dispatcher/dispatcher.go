// Package dispatcher manages worker fan-out over the crawl queue.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/websearch/internal/crawler"
	"github.com/JakeFAU/websearch/internal/metrics"
)

// Runner is one consumer loop, normally a *worker.Worker.
type Runner interface {
	Run(ctx context.Context)
}

// tryQueue is implemented by queues that can reject work instead of blocking.
type tryQueue interface {
	TryEnqueue(item crawler.QueueItem) error
}

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue   crawler.Queue
	workers []Runner
	now     func() time.Time
}

// New creates a Dispatcher.
func New(queue crawler.Queue, workers []Runner) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
		now:     time.Now,
	}
}

// Run starts all workers and blocks until every worker returns.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(r Runner) {
			defer wg.Done()
			r.Run(ctx)
		}(w)
	}
	wg.Wait()
}

// Submit queues a session for crawling. Queues that support it reject the
// session with crawler.ErrQueueFull rather than blocking the caller.
func (d *Dispatcher) Submit(ctx context.Context, session crawler.Session) error {
	item := crawler.QueueItem{Session: session, Attempt: 1, Submitted: d.now().Unix()}
	if tq, ok := d.queue.(tryQueue); ok {
		if err := tq.TryEnqueue(item); err != nil {
			if errors.Is(err, crawler.ErrQueueFull) {
				metrics.ObserveQueueRejected()
			}
			return fmt.Errorf("queue enqueue: %w", err)
		}
		return nil
	}
	return d.Enqueue(ctx, item)
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item crawler.QueueItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
