package model

import (
	"encoding/json"
	"time"
)

// JobType selects which processing strategy handles a job.
// Adding a type is a registration in the engine registry, not a subclass.
type JobType string

const (
	JobTypeStemSeparation JobType = "stem_separation"
	JobTypeMidiConversion JobType = "midi_conversion"
)

var ValidJobTypes = []JobType{
	JobTypeStemSeparation,
	JobTypeMidiConversion,
}

// IsValidJobType reports whether t is a recognized job type
func IsValidJobType(t JobType) bool {
	for _, v := range ValidJobTypes {
		if v == t {
			return true
		}
	}
	return false
}

// JobStatus is the job state machine:
// queued -> running -> succeeded | failed. Both succeeded and failed are
// terminal; no transition ever leaves a terminal state.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// JobInput references the source data of a job. Immutable after creation.
type JobInput struct {
	AudioID string `json:"audio_id" validate:"required,uuid"`
}

// Job represents one request to apply a processing strategy to one audio input
type Job struct {
	ID           string            `json:"id"`
	Type         JobType           `json:"type"`
	Status       JobStatus         `json:"status"`
	Input        JobInput          `json:"input"`
	Params       json.RawMessage   `json:"params,omitempty"`
	Output       map[string]string `json:"output,omitempty"`
	Progress     float64           `json:"progress"`
	ErrorMessage string            `json:"error_message,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
	RetryCount   int               `json:"retry_count"`
}

// IsTerminal reports whether the job has reached a final state
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusSucceeded || j.Status == JobStatusFailed
}

// CreateJobRequest is the request body for POST /jobs
type CreateJobRequest struct {
	Type   JobType         `json:"type" validate:"required"`
	Input  JobInput        `json:"input" validate:"required"`
	Params json.RawMessage `json:"params,omitempty"`
}

// JobResponse mirrors the Job entity for API responses
type JobResponse struct {
	JobID        string            `json:"job_id"`
	Type         JobType           `json:"type"`
	Status       JobStatus         `json:"status"`
	Input        JobInput          `json:"input"`
	Params       json.RawMessage   `json:"params,omitempty"`
	Output       map[string]string `json:"output,omitempty"`
	Progress     float64           `json:"progress"`
	ErrorMessage string            `json:"error_message,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// JobTaskPayload is the queue-level dispatch message. The job id is the
// only payload; everything else is fetched fresh from the repository at
// processing time to avoid staleness.
type JobTaskPayload struct {
	JobID string `json:"job_id"`
}
