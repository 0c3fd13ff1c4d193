// Package jobs tracks long-running background work so clients can poll it.
// Records live in memory for the life of the process.
package jobs

import (
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// Status is a job's lifecycle state.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

func (s Status) rank() int {
	switch s {
	case StatusQueued:
		return 0
	case StatusRunning:
		return 1
	case StatusSucceeded, StatusFailed:
		return 2
	}
	return -1
}

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool { return s.rank() == 2 }

// Job is a snapshot of a job record.
type Job struct {
	ID        string         `json:"jobId"`
	Status    Status         `json:"status"`
	Progress  float64        `json:"progress"`
	ResultID  *int64         `json:"resultId,omitempty"`
	Error     string         `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Manager is a mutex-guarded table of jobs.
type Manager struct {
	mu   sync.Mutex
	jobs map[string]*Job
	now  func() time.Time
}

func NewManager() *Manager {
	return &Manager{jobs: make(map[string]*Job), now: time.Now}
}

// Create registers a queued job and returns its ID.
func (m *Manager) Create(metadata map[string]any) string {
	id := uuid.NewString()
	now := m.now()
	md := make(map[string]any, len(metadata))
	maps.Copy(md, metadata)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[id] = &Job{ID: id, Status: StatusQueued, Metadata: md, CreatedAt: now, UpdatedAt: now}
	return id
}

// SetStatus moves a job forward. Moving backwards or leaving a terminal
// status fails with ErrInvalidTransition. A negative progress leaves the
// current value unchanged; other values are clamped to [0, 1].
func (m *Manager) SetStatus(id string, status Status, progress float64) error {
	if status.rank() < 0 {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, status)
	}
	return m.update(id, func(j *Job) error {
		if j.Status.Terminal() || status.rank() < j.Status.rank() {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, status)
		}
		j.Status = status
		if progress >= 0 {
			j.Progress = min(1, progress)
		}
		return nil
	})
}

// SetResult records the ID of the entity the job produced.
func (m *Manager) SetResult(id string, resultID int64) error {
	return m.update(id, func(j *Job) error {
		j.ResultID = &resultID
		return nil
	})
}

// SetError records a failure message.
func (m *Manager) SetError(id, message string) error {
	return m.update(id, func(j *Job) error {
		j.Error = message
		return nil
	})
}

// SetMetadata merges updates into the job's metadata.
func (m *Manager) SetMetadata(id string, updates map[string]any) error {
	return m.update(id, func(j *Job) error {
		maps.Copy(j.Metadata, updates)
		return nil
	})
}

// Get returns a copy of the job.
func (m *Manager) Get(id string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	out := *j
	out.Metadata = maps.Clone(j.Metadata)
	if j.ResultID != nil {
		r := *j.ResultID
		out.ResultID = &r
	}
	return out, nil
}

func (m *Manager) update(id string, fn func(*Job) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if err := fn(j); err != nil {
		return err
	}
	j.UpdatedAt = m.now()
	return nil
}
