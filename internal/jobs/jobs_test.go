package jobs

import (
	"errors"
	"sync"
	"testing"
)

func TestJobLifecycle(t *testing.T) {
	m := NewManager()
	id := m.Create(map[string]any{"type": "exam_generation"})

	j, err := m.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if j.Status != StatusQueued || j.Progress != 0 {
		t.Errorf("new job = %+v, want queued at 0", j)
	}
	if j.Metadata["type"] != "exam_generation" {
		t.Errorf("metadata not stored: %v", j.Metadata)
	}

	if err := m.SetStatus(id, StatusRunning, 0.25); err != nil {
		t.Fatalf("SetStatus running: %v", err)
	}
	if err := m.SetMetadata(id, map[string]any{"requestedCount": 5}); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}
	if err := m.SetResult(id, 42); err != nil {
		t.Fatalf("SetResult: %v", err)
	}
	if err := m.SetStatus(id, StatusSucceeded, 1); err != nil {
		t.Fatalf("SetStatus succeeded: %v", err)
	}

	j, _ = m.Get(id)
	if j.Status != StatusSucceeded || j.Progress != 1 {
		t.Errorf("finished job = %+v", j)
	}
	if j.ResultID == nil || *j.ResultID != 42 {
		t.Errorf("result = %v, want 42", j.ResultID)
	}
	if j.Metadata["type"] != "exam_generation" || j.Metadata["requestedCount"] != 5 {
		t.Errorf("metadata not merged: %v", j.Metadata)
	}
}

func TestStatusIsMonotonic(t *testing.T) {
	tests := []struct {
		name string
		path []Status
		next Status
		ok   bool
	}{
		{"queued to running", nil, StatusRunning, true},
		{"queued to failed", nil, StatusFailed, true},
		{"running to running", []Status{StatusRunning}, StatusRunning, true},
		{"running to queued", []Status{StatusRunning}, StatusQueued, false},
		{"succeeded to running", []Status{StatusRunning, StatusSucceeded}, StatusRunning, false},
		{"failed to succeeded", []Status{StatusFailed}, StatusSucceeded, false},
		{"unknown status", nil, Status("paused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager()
			id := m.Create(nil)
			for _, s := range tt.path {
				if err := m.SetStatus(id, s, -1); err != nil {
					t.Fatalf("setup SetStatus(%s): %v", s, err)
				}
			}
			err := m.SetStatus(id, tt.next, -1)
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("expected ErrInvalidTransition, got %v", err)
			}
		})
	}
}

func TestProgressClamped(t *testing.T) {
	m := NewManager()
	id := m.Create(nil)
	m.SetStatus(id, StatusRunning, 0.4)
	m.SetStatus(id, StatusRunning, -1)
	if j, _ := m.Get(id); j.Progress != 0.4 {
		t.Errorf("negative progress should keep the old value, got %v", j.Progress)
	}
	m.SetStatus(id, StatusRunning, 3)
	if j, _ := m.Get(id); j.Progress != 1 {
		t.Errorf("progress = %v, want clamped to 1", j.Progress)
	}
}

func TestUnknownJob(t *testing.T) {
	m := NewManager()
	if _, err := m.Get("nope"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Get: expected ErrJobNotFound, got %v", err)
	}
	if err := m.SetError("nope", "x"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("SetError: expected ErrJobNotFound, got %v", err)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	m := NewManager()
	id := m.Create(map[string]any{"k": "v"})
	j, _ := m.Get(id)
	j.Metadata["k"] = "changed"
	if again, _ := m.Get(id); again.Metadata["k"] != "v" {
		t.Error("mutating a snapshot changed the stored job")
	}
}

func TestConcurrentUpdates(t *testing.T) {
	m := NewManager()
	id := m.Create(nil)
	m.SetStatus(id, StatusRunning, 0)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.SetStatus(id, StatusRunning, float64(i)/50)
			m.SetMetadata(id, map[string]any{"last": i})
			m.Get(id)
		}(i)
	}
	wg.Wait()
	if j, _ := m.Get(id); j.Status != StatusRunning {
		t.Errorf("status = %s, want running", j.Status)
	}
}
