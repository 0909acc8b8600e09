package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/tranvd/jobflow-be/internal/domain"
)

// JobFilter narrows a job history listing
type JobFilter struct {
	ResourceID string
	Status     string
	PageSize   int
	Cursor     *JobCursor
}

// JobCursor is a keyset pagination position over (created_at, job_id)
type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// ListJobs returns up to PageSize+1 jobs matching the filter, newest first.
// The extra row lets the caller detect whether another page exists.
func (s *Store) ListJobs(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if filter.ResourceID != "" {
		query += fmt.Sprintf(" AND resource_id = $%d", argIdx)
		args = append(args, filter.ResourceID)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	// Order by created_at DESC, job_id DESC for consistent pagination
	query += " ORDER BY created_at DESC, job_id DESC"

	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var jobs []domain.Job
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}
