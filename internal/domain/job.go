package domain

import "time"

// Job status constants
const (
	JobStatusPending   = "PENDING"
	JobStatusRunning   = "RUNNING"
	JobStatusCompleted = "COMPLETED"
	JobStatusFailed    = "FAILED"
)

// ErrorMessageMaxLen bounds the error_message column; anything longer is truncated
const ErrorMessageMaxLen = 500

// Job is the unit of asynchronous work tracked against a resource.
// A resource may have many historical jobs but at most one job in a
// non-terminal status at any instant.
type Job struct {
	JobID          string     `db:"job_id"`
	ResourceID     string     `db:"resource_id"`
	Status         string     `db:"status"`
	TaskParameters string     `db:"task_parameters"` // JSON string, opaque to the orchestrator
	Result         string     `db:"result"`          // JSON string, set by the worker on COMPLETED
	ErrorMessage   string     `db:"error_message"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
	CompletedAt    *time.Time `db:"completed_at"`
}

// IsTerminal reports whether the job reached a final status
func (j *Job) IsTerminal() bool {
	return IsTerminalStatus(j.Status)
}

// IsTerminalStatus reports whether status is COMPLETED or FAILED
func IsTerminalStatus(status string) bool {
	return status == JobStatusCompleted || status == JobStatusFailed
}

// IsActiveStatus reports whether status is PENDING or RUNNING
func IsActiveStatus(status string) bool {
	return status == JobStatusPending || status == JobStatusRunning
}

// TruncateErrorMessage bounds executor error text before it is persisted
func TruncateErrorMessage(msg string) string {
	if len(msg) <= ErrorMessageMaxLen {
		return msg
	}
	return msg[:ErrorMessageMaxLen]
}
