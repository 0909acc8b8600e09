package jobs

import (
	"context"
	"fmt"

	"github.com/tranvd/jobflow-be/internal/domain"
)

// Status returns the latest persisted job for the resource, running stale
// recovery first when reconcile_on_status is enabled. It never returns a
// RUNNING status indefinitely for a dead worker; the reconciler bounds that
// window. Returns domain.ErrJobNotFound when the resource never had a job.
func (s *Service) Status(ctx context.Context, resourceID string) (*domain.Job, error) {
	if s.reconcileOnStatus {
		if _, err := s.reconciler.Reconcile(ctx, resourceID); err != nil {
			return nil, fmt.Errorf("failed to reconcile before status: %w", err)
		}
	}

	job, err := s.store.GetLatest(ctx, resourceID)
	if err != nil {
		return nil, err
	}

	return job, nil
}
