// Package worker runs fire-and-forget background tasks on a bounded pool.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Task is a unit of background work. Its error is logged, never returned to
// the submitter.
type Task func(ctx context.Context) error

// Pool runs at most size tasks at once. Submit never blocks the caller.
type Pool struct {
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New returns a pool running up to size tasks concurrently.
func New(size int) *Pool {
	if size < 1 {
		size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		sem:    semaphore.NewWeighted(int64(size)),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Submit schedules fn. Tasks submitted after Shutdown are dropped.
func (p *Pool) Submit(name string, fn Task) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		slog.Warn("worker pool closed, dropping task", "task", name)
		return false
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			slog.Warn("task not started", "task", name, "error", err)
			return
		}
		defer p.sem.Release(1)
		if err := run(p.ctx, fn); err != nil {
			slog.Error("background task failed", "task", name, "error", err)
			return
		}
		slog.Debug("background task done", "task", name)
	}()
	return true
}

func run(ctx context.Context, fn Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

// Wait blocks until every submitted task has finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Shutdown stops accepting tasks and waits for running ones until ctx is
// done. Tasks still waiting for a slot when ctx expires see a cancelled
// context.
func (p *Pool) Shutdown(ctx context.Context) error {
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
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}
