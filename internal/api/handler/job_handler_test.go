package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tranvd/jobflow-be/internal/domain"
	"github.com/tranvd/jobflow-be/internal/storage"
)

type stubJobService struct {
	submitJob  *domain.Job
	submitErr  error
	statusJob  *domain.Job
	statusErr  error
	listJobs   []domain.Job
	listErr    error
	listFilter storage.JobFilter
}

func (s *stubJobService) Submit(ctx context.Context, resourceID string, taskParameters json.RawMessage) (*domain.Job, error) {
	return s.submitJob, s.submitErr
}

func (s *stubJobService) Status(ctx context.Context, resourceID string) (*domain.Job, error) {
	return s.statusJob, s.statusErr
}

func (s *stubJobService) List(ctx context.Context, filter storage.JobFilter) ([]domain.Job, error) {
	s.listFilter = filter
	return s.listJobs, s.listErr
}

func newTestRouter(service *stubJobService) *gin.Engine {
	gin.SetMode(gin.TestMode)

	h := NewJobHandler(&Dependencies{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Jobs:   service,
	})

	r := gin.New()
	r.POST("/api/v1/resources/:resource_id/jobs", h.SubmitJob)
	r.GET("/api/v1/resources/:resource_id/jobs/latest", h.GetJobStatus)
	r.GET("/api/v1/jobs", h.ListJobs)
	return r
}

func sampleJob(status string) *domain.Job {
	created := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return &domain.Job{
		JobID:          "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
		ResourceID:     "resource-42",
		Status:         status,
		TaskParameters: `{"depth":3}`,
		CreatedAt:      created,
		UpdatedAt:      created,
	}
}

func TestJobHandler_SubmitJob(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		service        *stubJobService
		expectedStatus int
		expectedBody   map[string]any
	}{
		{
			name:           "accepted",
			body:           `{"task_parameters":{"depth":3}}`,
			service:        &stubJobService{submitJob: sampleJob(domain.JobStatusPending)},
			expectedStatus: http.StatusAccepted,
			expectedBody: map[string]any{
				"job_id": "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
				"status": "PENDING",
			},
		},
		{
			name:           "empty body is accepted",
			body:           "",
			service:        &stubJobService{submitJob: sampleJob(domain.JobStatusPending)},
			expectedStatus: http.StatusAccepted,
		},
		{
			name:           "unknown resource",
			body:           `{}`,
			service:        &stubJobService{submitErr: domain.ErrResourceNotFound},
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "invalid task parameters",
			body:           `{}`,
			service:        &stubJobService{submitErr: domain.ErrInvalidParameters},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "active job conflict",
			body: `{}`,
			service: &stubJobService{
				submitErr: &domain.ConflictError{ActiveJobID: "active-job-1"},
			},
			expectedStatus: http.StatusConflict,
			expectedBody: map[string]any{
				"active_job_id": "active-job-1",
			},
		},
		{
			name:           "malformed request body",
			body:           `{"task_parameters":`,
			service:        &stubJobService{},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "store outage",
			body:           `{}`,
			service:        &stubJobService{submitErr: assert.AnError},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(tt.service)

			req := httptest.NewRequest(http.MethodPost,
				"/api/v1/resources/resource-42/jobs", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)

			if tt.expectedBody != nil {
				var got map[string]any
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
				for key, want := range tt.expectedBody {
					assert.Equal(t, want, got[key], "field %s", key)
				}
			}
		})
	}
}

func TestJobHandler_GetJobStatus(t *testing.T) {
	t.Run("returns the latest job", func(t *testing.T) {
		completedAt := time.Date(2026, 8, 1, 12, 5, 0, 0, time.UTC)
		job := sampleJob(domain.JobStatusCompleted)
		job.Result = `{"pages":128}`
		job.CompletedAt = &completedAt

		router := newTestRouter(&stubJobService{statusJob: job})

		req := httptest.NewRequest(http.MethodGet,
			"/api/v1/resources/resource-42/jobs/latest", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var got map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "COMPLETED", got["status"])
		assert.Equal(t, "2026-08-01T12:05:00Z", got["completed_at"])
		assert.Equal(t, map[string]any{"depth": float64(3)}, got["task_parameters"])
	})

	t.Run("reports failure details", func(t *testing.T) {
		job := sampleJob(domain.JobStatusFailed)
		job.ErrorMessage = "Job timed out after 15m0s (auto-recovered)"

		router := newTestRouter(&stubJobService{statusJob: job})

		req := httptest.NewRequest(http.MethodGet,
			"/api/v1/resources/resource-42/jobs/latest", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var got map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "FAILED", got["status"])
		assert.Equal(t, "Job timed out after 15m0s (auto-recovered)", got["error_message"])
		assert.Nil(t, got["completed_at"])
	})

	t.Run("empty parameters render as an object", func(t *testing.T) {
		job := sampleJob(domain.JobStatusPending)
		job.TaskParameters = ""

		router := newTestRouter(&stubJobService{statusJob: job})

		req := httptest.NewRequest(http.MethodGet,
			"/api/v1/resources/resource-42/jobs/latest", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"task_parameters":{}`)
	})

	t.Run("no job history", func(t *testing.T) {
		router := newTestRouter(&stubJobService{statusErr: domain.ErrJobNotFound})

		req := httptest.NewRequest(http.MethodGet,
			"/api/v1/resources/resource-42/jobs/latest", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("store outage", func(t *testing.T) {
		router := newTestRouter(&stubJobService{statusErr: assert.AnError})

		req := httptest.NewRequest(http.MethodGet,
			"/api/v1/resources/resource-42/jobs/latest", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestJobHandler_ListJobs(t *testing.T) {
	t.Run("paginates and emits a cursor", func(t *testing.T) {
		jobs := make([]domain.Job, 3)
		for i := range jobs {
			j := sampleJob(domain.JobStatusCompleted)
			j.JobID = j.JobID[:len(j.JobID)-1] + string(rune('0'+i))
			jobs[i] = *j
		}

		service := &stubJobService{listJobs: jobs}
		router := newTestRouter(service)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs?page_size=2", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 2, service.listFilter.PageSize)

		var got map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Len(t, got["jobs"], 2)
		require.NotEmpty(t, got["next_cursor"])

		// The cursor round-trips to the last returned job
		cursor, err := DecodeJobCursor(got["next_cursor"].(string))
		require.NoError(t, err)
		assert.Equal(t, jobs[1].JobID, cursor.JobID)
		assert.Equal(t, jobs[1].CreatedAt.UnixNano(), cursor.CreatedAt.UnixNano())
	})

	t.Run("last page has no cursor", func(t *testing.T) {
		service := &stubJobService{listJobs: []domain.Job{*sampleJob(domain.JobStatusCompleted)}}
		router := newTestRouter(service)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs?page_size=2", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), "next_cursor")
	})

	t.Run("clamps page size", func(t *testing.T) {
		service := &stubJobService{}
		router := newTestRouter(service)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs?page_size=500", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 100, service.listFilter.PageSize)
	})

	t.Run("rejects a garbage cursor", func(t *testing.T) {
		router := newTestRouter(&stubJobService{})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs?cursor=%21%21%21", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("passes filters through", func(t *testing.T) {
		service := &stubJobService{}
		router := newTestRouter(service)

		req := httptest.NewRequest(http.MethodGet,
			"/api/v1/jobs?resource_id=resource-42&status=FAILED", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "resource-42", service.listFilter.ResourceID)
		assert.Equal(t, "FAILED", service.listFilter.Status)
	})
}
