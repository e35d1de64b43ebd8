// Package worker runs side effects off the caller's goroutine.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Job is a unit of side-effect work, e.g. playing a tone.
type Job func(ctx context.Context) error

type WorkerPool struct {
	numWorkers int
	jobs       chan Job
	logger     *slog.Logger
	wg         sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
	dropped atomic.Int64
}

func NewWorkerPool(numWorkers int, bufferSize int, logger *slog.Logger) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkerPool{
		numWorkers: numWorkers,
		jobs:       make(chan Job, bufferSize),
		logger:     logger,
	}
}

func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 1; i <= wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-wp.jobs:
			if !ok {
				return
			}
			if err := job(ctx); err != nil {
				wp.logger.Warn("job failed", "worker", id, "error", err)
			}
		}
	}
}

// Submit queues a job without blocking. It returns false when the queue is
// full or the pool is stopped; the job is dropped.
func (wp *WorkerPool) Submit(job Job) bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if wp.stopped {
		return false
	}
	select {
	case wp.jobs <- job:
		return true
	default:
		wp.dropped.Add(1)
		return false
	}
}

// Dropped returns how many jobs were rejected because the queue was full.
func (wp *WorkerPool) Dropped() int64 {
	return wp.dropped.Load()
}

// Stop closes the queue and waits for workers to drain it. Safe to call twice.
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return
	}
	wp.stopped = true
	close(wp.jobs)
	wp.mu.Unlock()

	wp.wg.Wait()
}
