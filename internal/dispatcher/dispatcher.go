// Package dispatcher manages worker fan-out over the job queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/competitor-url-checker/internal/checker"
	"github.com/JakeFAU/competitor-url-checker/internal/worker"
)

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue   checker.Queue
	clock   checker.Clock
	workers []*worker.Worker
}

// New creates a Dispatcher.
func New(queue checker.Queue, clock checker.Clock, workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		clock:   clock,
		workers: workers,
	}
}

// Run starts all workers and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Submit enqueues the first attempt of a stored job.
func (d *Dispatcher) Submit(ctx context.Context, jobID string) error {
	item := checker.QueueItem{JobID: jobID, Attempt: 1}
	if d.clock != nil {
		item.Submitted = d.clock.Now().UnixMilli()
	}
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
