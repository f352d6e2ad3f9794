package server

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/conecone/internal/fit"
)

// JobState represents the current state of a job
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// Terminal reports whether no further transitions can happen.
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// MethodProgress is the latest iteration reported by one method's search.
type MethodProgress struct {
	Method      fit.Method `json:"method"`
	Iteration   int        `json:"iteration"`
	Evaluations int        `json:"evaluations"`
	Center      fit.Center `json:"center"`
	Loss        float64    `json:"loss"`
}

// Job represents a reconstruction job
type Job struct {
	ID        string                `json:"id"`
	ParentID  string                `json:"parentId,omitempty"`
	State     JobState              `json:"state"`
	Points    *fit.Points           `json:"-"`
	Guess     fit.Center            `json:"guess"`
	Config    fit.ReconstructConfig `json:"config"`
	Progress  []MethodProgress      `json:"progress"`
	Bundle    *fit.ResultBundle     `json:"-"`
	Converged bool                  `json:"converged"`
	StartTime time.Time             `json:"startTime"`
	EndTime   *time.Time            `json:"endTime,omitempty"`
	Error     string                `json:"error,omitempty"`

	cancel context.CancelFunc
}

// clone copies the mutable parts of j. Points and Bundle are never mutated
// after they are set, so they are shared.
func (j *Job) clone() *Job {
	c := *j
	c.Progress = append([]MethodProgress(nil), j.Progress...)
	if j.EndTime != nil {
		end := *j.EndTime
		c.EndTime = &end
	}
	c.cancel = nil
	return &c
}

// JobManager manages the lifecycle of jobs
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	broadcaster *EventBroadcaster
}

// NewJobManager creates a new JobManager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:        make(map[string]*Job),
		broadcaster: NewEventBroadcaster(),
	}
}

// CreateJob registers a pending job for the given inputs.
func (jm *JobManager) CreateJob(points *fit.Points, guess fit.Center, config fit.ReconstructConfig) *Job {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	progress := make([]MethodProgress, len(fit.Methods))
	for i, m := range fit.Methods {
		progress[i] = MethodProgress{Method: m, Center: guess}
	}

	job := &Job{
		ID:        uuid.New().String(),
		State:     StatePending,
		Points:    points,
		Guess:     guess,
		Config:    config,
		Progress:  progress,
		StartTime: time.Now(),
	}

	jm.jobs[job.ID] = job
	return job.clone()
}

// GetJob returns a snapshot of the job with the given ID
func (jm *JobManager) GetJob(id string) (*Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists {
		return nil, false
	}
	return job.clone(), true
}

// ListJobs returns snapshots of all jobs, oldest first
func (jm *JobManager) ListJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	jobs := make([]*Job, 0, len(jm.jobs))
	for _, job := range jm.jobs {
		jobs = append(jobs, job.clone())
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].StartTime.Before(jobs[j].StartTime)
	})
	return jobs
}

// UpdateJob atomically updates a job using the provided function
func (jm *JobManager) UpdateJob(id string, updateFn func(*Job)) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}

	updateFn(job)
	return nil
}

// GetRunningJobs returns all jobs currently in the running state
func (jm *JobManager) GetRunningJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	runningJobs := make([]*Job, 0)
	for _, job := range jm.jobs {
		if job.State == StateRunning {
			runningJobs = append(runningJobs, job.clone())
		}
	}
	return runningJobs
}

// setCancel stores the function that cancels the job's search.
func (jm *JobManager) setCancel(id string, cancel context.CancelFunc) {
	jm.UpdateJob(id, func(j *Job) { j.cancel = cancel })
}

// CancelJob stops a pending or running job. Cancelling a finished job is an
// error.
func (jm *JobManager) CancelJob(id string) error {
	jm.mu.Lock()
	job, exists := jm.jobs[id]
	if !exists {
		jm.mu.Unlock()
		return fmt.Errorf("job not found: %s", id)
	}
	if job.State.Terminal() {
		state := job.State
		jm.mu.Unlock()
		return fmt.Errorf("job %s already %s", id, state)
	}
	cancel := job.cancel
	jm.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}
