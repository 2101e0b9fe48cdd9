// Package jobs tracks long-running admin operations started over the API.
package jobs

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Status represents the status of an async job
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job represents an async job
type Job struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Status     Status         `json:"status"`
	Progress   int            `json:"progress" doc:"0-100"`
	Message    string         `json:"message,omitempty"`
	Result     map[string]any `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

// Done reports whether the job reached a terminal status.
func (j *Job) Done() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

func (j *Job) clone() *Job {
	out := *j
	out.Result = maps.Clone(j.Result)
	return &out
}

// ProgressFunc reports progress (0-100) and a status message.
type ProgressFunc func(progress int, message string)

// RunFunc is the body of a job. Its result is stored on success.
type RunFunc func(ctx context.Context, progress ProgressFunc) (map[string]any, error)

// Manager runs jobs in the background and keeps their state in memory.
type Manager struct {
	mu     sync.RWMutex
	jobs   map[string]*Job
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewManager creates an empty job manager.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{jobs: make(map[string]*Job), logger: logger}
}

// Start registers a job and runs fn on its own goroutine. The job outlives
// the request that started it: ctx values are kept, its cancellation is not.
func (m *Manager) Start(ctx context.Context, jobType string, fn RunFunc) *Job {
	job := &Job{
		ID:        uuid.New().String(),
		Type:      jobType,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
	m.mu.Lock()
	m.jobs[job.ID] = job
	snapshot := job.clone()
	m.mu.Unlock()

	bgCtx := context.WithoutCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(bgCtx, job.ID, fn)
	}()
	return snapshot
}

func (m *Manager) run(ctx context.Context, id string, fn RunFunc) {
	started := time.Now()
	m.update(id, func(j *Job) {
		j.Status = StatusRunning
		j.StartedAt = &started
		j.Message = "running"
	})

	result, err := func() (result map[string]any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("job panicked: %v", r)
			}
		}()
		return fn(ctx, func(progress int, message string) {
			m.update(id, func(j *Job) {
				j.Progress = min(max(progress, 0), 100)
				j.Message = message
			})
		})
	}()

	finished := time.Now()
	m.update(id, func(j *Job) {
		j.FinishedAt = &finished
		j.Result = result
		if err != nil {
			j.Status = StatusFailed
			j.Error = err.Error()
			j.Message = "failed"
			return
		}
		j.Status = StatusCompleted
		j.Progress = 100
		j.Message = "completed"
	})
	if err != nil {
		m.logger.Error("job failed", zap.String("job_id", id), zap.Error(err))
		return
	}
	m.logger.Info("job completed", zap.String("job_id", id), zap.Duration("duration", finished.Sub(started)))
}

func (m *Manager) update(id string, fn func(*Job)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[id]; ok {
		fn(job)
	}
}

// Get returns a snapshot of the job.
func (m *Manager) Get(id string) (*Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, false
	}
	return job.clone(), true
}

// List returns snapshots of all jobs, newest first.
func (m *Manager) List() []*Job {
	m.mu.RLock()
	out := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		out = append(out, job.clone())
	}
	m.mu.RUnlock()
	slices.SortFunc(out, func(a, b *Job) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out
}

// Cleanup removes finished jobs created before maxAge ago.
func (m *Manager) Cleanup(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, job := range m.jobs {
		if job.Done() && job.CreatedAt.Before(cutoff) {
			delete(m.jobs, id)
			removed++
		}
	}
	return removed
}

// Wait blocks until every started job has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}
