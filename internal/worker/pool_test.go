package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolRunsAllTasks(t *testing.T) {
	p := New(2)
	var n atomic.Int32
	for i := 0; i < 10; i++ {
		p.Submit("count", func(ctx context.Context) error {
			n.Add(1)
			return nil
		})
	}
	p.Wait()
	if got := n.Load(); got != 10 {
		t.Errorf("ran %d tasks, want 10", got)
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	const size = 3
	p := New(size)
	var running, peak atomic.Int32
	for i := 0; i < 12; i++ {
		p.Submit("slow", func(ctx context.Context) error {
			cur := running.Add(1)
			for {
				old := peak.Load()
				if cur <= old || peak.CompareAndSwap(old, cur) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return nil
		})
	}
	p.Wait()
	if got := peak.Load(); got > size {
		t.Errorf("peak concurrency %d exceeds pool size %d", got, size)
	}
}

func TestPoolSwallowsErrorsAndPanics(t *testing.T) {
	p := New(1)
	p.Submit("fails", func(ctx context.Context) error { return errors.New("boom") })
	p.Submit("panics", func(ctx context.Context) error { panic("bad") })
	var ran atomic.Bool
	p.Submit("after", func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	p.Wait()
	if !ran.Load() {
		t.Error("task after a failing task did not run")
	}
}

func TestShutdownDropsNewTasks(t *testing.T) {
	p := New(1)
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if p.Submit("late", func(ctx context.Context) error { return nil }) {
		t.Error("Submit accepted a task after Shutdown")
	}
}
