package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tranvd/jobflow-be/internal/domain"
)

// Submit validates the request, recovers any stale job blocking the resource,
// enqueues the work message, and persists a PENDING job record. The caller
// gets the job handle back immediately; execution happens asynchronously.
//
// Enqueue runs before the insert on purpose. A broker outage then leaves no
// job row behind, while an insert failure after a successful publish leaves
// an orphan message that the worker drops on its job-not-found branch.
func (s *Service) Submit(ctx context.Context, resourceID string, taskParameters json.RawMessage) (*domain.Job, error) {
	if len(taskParameters) > 0 && !json.Valid(taskParameters) {
		return nil, domain.ErrInvalidParameters
	}

	exists, err := s.resources.Exists(ctx, resourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to verify resource: %w", err)
	}
	if !exists {
		return nil, domain.ErrResourceNotFound
	}

	// Recover a crashed prior job so it cannot block a legitimate retry
	if _, err := s.reconciler.Reconcile(ctx, resourceID); err != nil {
		return nil, fmt.Errorf("failed to reconcile before submit: %w", err)
	}

	// Cheap precheck so a guaranteed conflict never publishes an orphan
	// message; the store's conditional insert remains the authoritative guard
	active, err := s.store.GetActive(ctx, resourceID)
	if err == nil {
		return nil, &domain.ConflictError{ActiveJobID: active.JobID}
	}
	if !errors.Is(err, domain.ErrJobNotFound) {
		return nil, fmt.Errorf("failed to check for an active job: %w", err)
	}

	params := string(taskParameters)
	if params == "" {
		params = "{}"
	}

	jobID := uuid.New().String()

	if err := s.queue.Enqueue(ctx, domain.JobMessage{
		JobID:          jobID,
		ResourceID:     resourceID,
		TaskParameters: taskParameters,
	}); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	now := s.now()
	job := &domain.Job{
		JobID:          jobID,
		ResourceID:     resourceID,
		Status:         domain.JobStatusPending,
		TaskParameters: params,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.store.Create(ctx, job); err != nil {
		// The already-published message is now an orphan; the worker
		// acknowledges and discards messages with no matching job row.
		s.logger.Warn("Job record creation failed after enqueue",
			slog.String("job_id", jobID),
			slog.String("resource_id", resourceID),
			slog.Any("error", err),
		)
		return nil, err
	}

	s.logger.Info("Job submitted",
		slog.String("job_id", jobID),
		slog.String("resource_id", resourceID),
	)

	return job, nil
}
