package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/tranvd/jobflow-be/internal/domain"
	"github.com/tranvd/jobflow-be/internal/storage"
)

// Store is the job persistence surface the orchestration services depend on
type Store interface {
	Create(ctx context.Context, job *domain.Job) error
	Fail(ctx context.Context, jobID, message string) (bool, error)
	GetActive(ctx context.Context, resourceID string) (*domain.Job, error)
	GetLatest(ctx context.Context, resourceID string) (*domain.Job, error)
	ListStale(ctx context.Context, resourceID string, cutoff time.Time) ([]domain.Job, error)
	ListJobs(ctx context.Context, filter storage.JobFilter) ([]domain.Job, error)
}

// Queue hands job messages to the durable transport
type Queue interface {
	Enqueue(ctx context.Context, msg domain.JobMessage) error
}

// ResourceChecker verifies submission targets exist. The resource's own data
// model is owned by a collaborating service.
type ResourceChecker interface {
	Exists(ctx context.Context, resourceID string) (bool, error)
}

// Service exposes job submission, status queries, and history listing
type Service struct {
	store             Store
	queue             Queue
	resources         ResourceChecker
	reconciler        *Reconciler
	reconcileOnStatus bool
	logger            *slog.Logger
	now               func() time.Time
}

// Config holds Service dependencies
type Config struct {
	Store             Store
	Queue             Queue
	Resources         ResourceChecker
	Reconciler        *Reconciler
	ReconcileOnStatus bool
	Logger            *slog.Logger
}

// NewService creates a new Service instance
func NewService(cfg *Config) *Service {
	return &Service{
		store:             cfg.Store,
		queue:             cfg.Queue,
		resources:         cfg.Resources,
		reconciler:        cfg.Reconciler,
		reconcileOnStatus: cfg.ReconcileOnStatus,
		logger:            cfg.Logger,
		now:               time.Now,
	}
}

// List returns a page of job history matching the filter
func (s *Service) List(ctx context.Context, filter storage.JobFilter) ([]domain.Job, error) {
	return s.store.ListJobs(ctx, filter)
}
