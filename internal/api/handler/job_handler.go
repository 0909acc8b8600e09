package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tranvd/jobflow-be/internal/api/dto"
	"github.com/tranvd/jobflow-be/internal/domain"
	"github.com/tranvd/jobflow-be/internal/storage"
)

// SubmitJob handles POST /api/v1/resources/:resource_id/jobs
// Accepts a task for asynchronous execution and returns the job handle
// immediately; the work itself runs on the worker service.
func (h *JobHandler) SubmitJob(c *gin.Context) {
	resourceID := c.Param("resource_id")

	var req dto.SubmitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	job, err := h.jobs.Submit(c.Request.Context(), resourceID, req.TaskParameters)
	if err != nil {
		var conflict *domain.ConflictError
		switch {
		case errors.Is(err, domain.ErrResourceNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Resource not found",
			})
		case errors.Is(err, domain.ErrInvalidParameters):
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "task_parameters must be valid JSON",
			})
		case errors.As(err, &conflict):
			c.JSON(http.StatusConflict, dto.ConflictResponse{
				Error:       "An active job already exists for this resource",
				ActiveJobID: conflict.ActiveJobID,
			})
		default:
			h.logger.Error("Failed to submit job",
				slog.String("resource_id", resourceID),
				slog.String("error", err.Error()),
			)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to submit job",
			})
		}
		return
	}

	c.JSON(http.StatusAccepted, dto.SubmitJobResponse{
		JobID:     job.JobID,
		Status:    job.Status,
		CreatedAt: job.CreatedAt.Format(time.RFC3339),
	})
}

// GetJobStatus handles GET /api/v1/resources/:resource_id/jobs/latest
// Returns the current persisted state of the resource's most recent job
func (h *JobHandler) GetJobStatus(c *gin.Context) {
	resourceID := c.Param("resource_id")

	job, err := h.jobs.Status(c.Request.Context(), resourceID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "No job found for this resource",
			})
			return
		}
		h.logger.Error("Failed to get job status",
			slog.String("resource_id", resourceID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job status",
		})
		return
	}

	params := job.TaskParameters
	if params == "" {
		params = "{}"
	}

	c.JSON(http.StatusOK, dto.JobStatusResponse{
		JobID:          job.JobID,
		Status:         job.Status,
		TaskParameters: []byte(params),
		CreatedAt:      job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      job.UpdatedAt.Format(time.RFC3339),
		CompletedAt:    formatTimePtr(job.CompletedAt),
		ErrorMessage:   job.ErrorMessage,
	})
}

// ListJobs handles GET /api/v1/jobs
// Lists job history with optional filtering and keyset pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Error("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	jobs, err := h.jobs.List(c.Request.Context(), storage.JobFilter{
		ResourceID: req.ResourceID,
		Status:     req.Status,
		PageSize:   req.PageSize,
		Cursor:     cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs",
		})
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	jobResponse := make([]dto.JobDTO, len(jobs))
	for i, job := range jobs {
		jobResponse[i] = dto.JobDTO{
			JobID:          job.JobID,
			ResourceID:     job.ResourceID,
			Status:         job.Status,
			TaskParameters: job.TaskParameters,
			ErrorMessage:   job.ErrorMessage,
			CreatedAt:      job.CreatedAt.Format(time.RFC3339),
			UpdatedAt:      job.UpdatedAt.Format(time.RFC3339),
			CompletedAt:    formatTimePtr(job.CompletedAt),
		}
	}

	var nextCursor string
	if hasMore {
		lastJob := jobs[len(jobs)-1]
		nextCursor = EncodeJobCursor(&storage.JobCursor{
			CreatedAt: lastJob.CreatedAt,
			JobID:     lastJob.JobID,
		})
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       jobResponse,
		NextCursor: nextCursor,
	})
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := t.Format(time.RFC3339)
	return &formatted
}
