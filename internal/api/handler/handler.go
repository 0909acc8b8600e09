package handler

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/tranvd/jobflow-be/internal/domain"
	"github.com/tranvd/jobflow-be/internal/storage"
)

// JobService is the orchestration surface the HTTP handlers depend on
type JobService interface {
	Submit(ctx context.Context, resourceID string, taskParameters json.RawMessage) (*domain.Job, error)
	Status(ctx context.Context, resourceID string) (*domain.Job, error)
	List(ctx context.Context, filter storage.JobFilter) ([]domain.Job, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger *slog.Logger
	Jobs   JobService
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger *slog.Logger
	jobs   JobService
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger: deps.Logger,
		jobs:   deps.Jobs,
	}
}
