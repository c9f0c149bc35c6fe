package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var ErrPoolClosed = errors.New("worker pool is closed")

// Task is handed the pool's context. A task that starts after the pool was
// abandoned receives an already cancelled context and must still finish its
// bookkeeping.
type Task func(ctx context.Context)

// WorkerPool runs tasks in their own goroutines with at most maxWorkers
// executing at once. Submit never blocks.
type WorkerPool struct {
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool

	active atomic.Int64
	queued atomic.Int64
}

func NewWorkerPool(maxWorkers int, logger *zap.Logger) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		sem:    semaphore.NewWeighted(int64(maxWorkers)),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (p *WorkerPool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	p.wg.Add(1)
	p.queued.Add(1)
	go func() {
		defer p.wg.Done()

		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			p.queued.Add(-1)
			p.run(task)
			return
		}
		defer p.sem.Release(1)

		p.queued.Add(-1)
		p.active.Add(1)
		defer p.active.Add(-1)

		p.run(task)
	}()
	return nil
}

func (p *WorkerPool) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Task panicked", zap.Any("panic", r))
		}
	}()
	task(p.ctx)
}

// Active reports the number of tasks currently executing.
func (p *WorkerPool) Active() int64 {
	return p.active.Load()
}

// Queued reports the number of tasks waiting for a free worker.
func (p *WorkerPool) Queued() int64 {
	return p.queued.Load()
}

// Shutdown stops accepting tasks and waits for submitted ones. If ctx ends
// first, the pool context is cancelled and Shutdown still waits for every
// task to observe it.
func (p *WorkerPool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.logger.Info("Worker pool drained")
		return nil
	case <-ctx.Done():
		p.logger.Warn("Worker pool shutdown deadline reached, abandoning tasks",
			zap.Int64("active", p.Active()),
			zap.Int64("queued", p.Queued()),
		)
		p.cancel()
		<-done
		return ctx.Err()
	}
}
