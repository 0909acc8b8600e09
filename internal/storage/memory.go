package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tranvd/jobflow-be/internal/domain"
)

// Memory is an in-memory job store with the same conditional-write semantics
// as the PostgreSQL store. It backs unit tests that exercise the state
// machine without a database.
type Memory struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job

	// Now is the clock used for created_at/updated_at; tests may override it
	Now func() time.Time
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		jobs: make(map[string]*domain.Job),
		Now:  time.Now,
	}
}

// Create inserts a PENDING job, returning *domain.ConflictError when the
// resource already has an active one
func (m *Memory) Create(ctx context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.jobs {
		if existing.ResourceID == job.ResourceID && domain.IsActiveStatus(existing.Status) {
			return &domain.ConflictError{ActiveJobID: existing.JobID}
		}
	}

	stored := *job
	m.jobs[job.JobID] = &stored
	return nil
}

// Claim transitions PENDING -> RUNNING
func (m *Memory) Claim(ctx context.Context, jobID string) (bool, error) {
	return m.transition(jobID, domain.JobStatusPending, domain.JobStatusRunning, "", "")
}

// Complete transitions RUNNING -> COMPLETED and stores the executor result
func (m *Memory) Complete(ctx context.Context, jobID, result string) (bool, error) {
	if result == "" {
		result = "{}"
	}
	return m.transition(jobID, domain.JobStatusRunning, domain.JobStatusCompleted, result, "")
}

// Fail transitions RUNNING -> FAILED and records the truncated message
func (m *Memory) Fail(ctx context.Context, jobID, message string) (bool, error) {
	return m.transition(jobID, domain.JobStatusRunning, domain.JobStatusFailed, "", domain.TruncateErrorMessage(message))
}

func (m *Memory) transition(jobID, from, to, result, errorMessage string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok || job.Status != from {
		return false, nil
	}

	now := m.Now()
	job.Status = to
	job.UpdatedAt = now
	if domain.IsTerminalStatus(to) {
		completedAt := now
		job.CompletedAt = &completedAt
	}
	if result != "" {
		job.Result = result
	}
	if errorMessage != "" {
		job.ErrorMessage = errorMessage
	}

	return true, nil
}

// GetJobByID retrieves a job by its ID
func (m *Memory) GetJobByID(ctx context.Context, jobID string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}

	copied := *job
	return &copied, nil
}

// GetActive returns the resource's PENDING or RUNNING job
func (m *Memory) GetActive(ctx context.Context, resourceID string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, job := range m.jobs {
		if job.ResourceID == resourceID && domain.IsActiveStatus(job.Status) {
			copied := *job
			return &copied, nil
		}
	}

	return nil, domain.ErrJobNotFound
}

// GetLatest returns the most recently created job for the resource
func (m *Memory) GetLatest(ctx context.Context, resourceID string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *domain.Job
	for _, job := range m.jobs {
		if job.ResourceID != resourceID {
			continue
		}
		if latest == nil || job.CreatedAt.After(latest.CreatedAt) ||
			(job.CreatedAt.Equal(latest.CreatedAt) && job.JobID > latest.JobID) {
			latest = job
		}
	}

	if latest == nil {
		return nil, domain.ErrJobNotFound
	}

	copied := *latest
	return &copied, nil
}

// ListStale returns RUNNING jobs with updated_at at or before cutoff
func (m *Memory) ListStale(ctx context.Context, resourceID string, cutoff time.Time) ([]domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stale []domain.Job
	for _, job := range m.jobs {
		if job.Status != domain.JobStatusRunning {
			continue
		}
		if resourceID != "" && job.ResourceID != resourceID {
			continue
		}
		if job.UpdatedAt.After(cutoff) {
			continue
		}
		stale = append(stale, *job)
	}

	return stale, nil
}

// ListJobs returns up to PageSize+1 matching jobs, newest first
func (m *Memory) ListJobs(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var jobs []domain.Job
	for _, job := range m.jobs {
		if filter.ResourceID != "" && job.ResourceID != filter.ResourceID {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		if filter.Cursor != nil {
			if job.CreatedAt.After(filter.Cursor.CreatedAt) {
				continue
			}
			if job.CreatedAt.Equal(filter.Cursor.CreatedAt) && job.JobID >= filter.Cursor.JobID {
				continue
			}
		}
		jobs = append(jobs, *job)
	}

	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
		}
		return jobs[i].JobID > jobs[j].JobID
	})

	if filter.PageSize > 0 && len(jobs) > filter.PageSize+1 {
		jobs = jobs[:filter.PageSize+1]
	}

	return jobs, nil
}
