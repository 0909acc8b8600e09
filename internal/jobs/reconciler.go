package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tranvd/jobflow-be/internal/domain"
)

// Reconciler force-fails RUNNING jobs abandoned by a crashed worker. It is
// invoked before every submission and, when enabled, before every status
// query, so a stuck job never blocks a resource for longer than the
// threshold. Re-running over an already-failed job is a no-op because Fail
// only succeeds from RUNNING.
type Reconciler struct {
	store     Store
	threshold time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewReconciler creates a Reconciler with the given staleness threshold
func NewReconciler(store Store, threshold time.Duration, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:     store,
		threshold: threshold,
		logger:    logger,
		now:       time.Now,
	}
}

// Reconcile fails stale RUNNING jobs for one resource and returns the jobs it
// transitioned
func (r *Reconciler) Reconcile(ctx context.Context, resourceID string) ([]domain.Job, error) {
	return r.reconcile(ctx, resourceID)
}

// ReconcileAll fails stale RUNNING jobs across every resource
func (r *Reconciler) ReconcileAll(ctx context.Context) ([]domain.Job, error) {
	return r.reconcile(ctx, "")
}

func (r *Reconciler) reconcile(ctx context.Context, resourceID string) ([]domain.Job, error) {
	// A job aged exactly threshold counts as stale
	cutoff := r.now().Add(-r.threshold)

	stale, err := r.store.ListStale(ctx, resourceID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale jobs: %w", err)
	}

	message := fmt.Sprintf("Job timed out after %s (auto-recovered)", r.threshold)

	var recovered []domain.Job
	for _, job := range stale {
		failed, err := r.store.Fail(ctx, job.JobID, message)
		if err != nil {
			return recovered, fmt.Errorf("failed to recover stale job %s: %w", job.JobID, err)
		}
		if !failed {
			// A worker or another reconciler finished it first
			continue
		}

		r.logger.Warn("Stale job recovered",
			slog.String("job_id", job.JobID),
			slog.String("resource_id", job.ResourceID),
			slog.Time("last_updated", job.UpdatedAt),
			slog.Duration("threshold", r.threshold),
		)

		job.Status = domain.JobStatusFailed
		job.ErrorMessage = message
		recovered = append(recovered, job)
	}

	return recovered, nil
}
