package domain

import "encoding/json"

// JobMessage is the queue envelope handed from the submission service to a worker
type JobMessage struct {
	JobID          string          `json:"job_id"`
	ResourceID     string          `json:"resource_id"`
	TaskParameters json.RawMessage `json:"task_parameters,omitempty"`
}
