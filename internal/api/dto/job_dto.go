package dto

import "encoding/json"

// SubmitJobRequest is the body for POST /resources/:resource_id/jobs
type SubmitJobRequest struct {
	TaskParameters json.RawMessage `json:"task_parameters"`
}

// SubmitJobResponse acknowledges an accepted submission
type SubmitJobResponse struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

// ConflictResponse reports the in-flight job blocking a submission
type ConflictResponse struct {
	Error       string `json:"error"`
	ActiveJobID string `json:"active_job_id,omitempty"`
}

// JobStatusResponse projects the latest persisted job state
type JobStatusResponse struct {
	JobID          string          `json:"job_id"`
	Status         string          `json:"status"`
	TaskParameters json.RawMessage `json:"task_parameters"`
	CreatedAt      string          `json:"created_at"`
	UpdatedAt      string          `json:"updated_at"`
	CompletedAt    *string         `json:"completed_at"`
	ErrorMessage   string          `json:"error_message,omitempty"`
}

// ListJobsRequest filters the job history listing
type ListJobsRequest struct {
	ResourceID string `form:"resource_id"`
	Status     string `form:"status"`
	PageSize   int    `form:"page_size"`
	Cursor     string `form:"cursor"`
}

// ListJobsResponse is a page of job history
type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

// JobDTO is one job history entry
type JobDTO struct {
	JobID          string  `json:"job_id"`
	ResourceID     string  `json:"resource_id"`
	Status         string  `json:"status"`
	TaskParameters string  `json:"task_parameters"`
	ErrorMessage   string  `json:"error_message,omitempty"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
	CompletedAt    *string `json:"completed_at"`
}
