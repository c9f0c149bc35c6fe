package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestWorkerPool_LimitsConcurrency(t *testing.T) {
	p := NewWorkerPool(2, zaptest.NewLogger(t))

	var current, peak atomic.Int64
	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(2)

	for i := 0; i < 6; i++ {
		err := p.Submit(func(ctx context.Context) {
			n := current.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			if n <= 2 {
				started.Done()
			}
			<-release
			current.Add(-1)
		})
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	started.Wait()
	if got := p.Active(); got != 2 {
		t.Errorf("Expected 2 active tasks, got %d", got)
	}
	if got := p.Queued(); got != 4 {
		t.Errorf("Expected 4 queued tasks, got %d", got)
	}

	close(release)
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	if peak.Load() > 2 {
		t.Errorf("Expected at most 2 concurrent tasks, saw %d", peak.Load())
	}
}

func TestWorkerPool_SubmitDoesNotBlock(t *testing.T) {
	p := NewWorkerPool(1, zaptest.NewLogger(t))
	block := make(chan struct{})

	start := time.Now()
	for i := 0; i < 10; i++ {
		if err := p.Submit(func(ctx context.Context) { <-block }); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Submit blocked for %v", elapsed)
	}

	close(block)
	_ = p.Shutdown(context.Background())
}

func TestWorkerPool_RecoversPanics(t *testing.T) {
	p := NewWorkerPool(1, zaptest.NewLogger(t))

	var ran atomic.Bool
	_ = p.Submit(func(ctx context.Context) { panic("boom") })
	_ = p.Submit(func(ctx context.Context) { ran.Store(true) })

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if !ran.Load() {
		t.Error("Expected task after a panicking task to run")
	}
}

func TestWorkerPool_SubmitAfterShutdown(t *testing.T) {
	p := NewWorkerPool(1, zaptest.NewLogger(t))
	_ = p.Shutdown(context.Background())

	err := p.Submit(func(ctx context.Context) {})
	if !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Expected ErrPoolClosed, got %v", err)
	}
}

func TestWorkerPool_ShutdownDeadlineAbandonsQueued(t *testing.T) {
	p := NewWorkerPool(1, zaptest.NewLogger(t))

	var abandoned atomic.Int64
	_ = p.Submit(func(ctx context.Context) { <-ctx.Done() })
	for i := 0; i < 3; i++ {
		_ = p.Submit(func(ctx context.Context) {
			if ctx.Err() != nil {
				abandoned.Add(1)
			}
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := p.Shutdown(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected DeadlineExceeded, got %v", err)
	}
	if got := abandoned.Load(); got != 3 {
		t.Errorf("Expected 3 abandoned tasks to see a cancelled context, got %d", got)
	}
}
