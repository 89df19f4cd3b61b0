package model

// WebSocket message types
const (
	WSMessageTypeProgress = "progress"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
)

// WSProgressMessage represents a progress update pushed to job subscribers
type WSProgressMessage struct {
	Type     string    `json:"type"`
	JobID    string    `json:"job_id"`
	Status   JobStatus `json:"status"`
	Progress float64   `json:"progress"`
	Step     string    `json:"step,omitempty"`
}

// WSCompleteMessage announces a succeeded job with its output map
type WSCompleteMessage struct {
	Type   string            `json:"type"`
	JobID  string            `json:"job_id"`
	Output map[string]string `json:"output"`
}

// WSErrorMessage announces a failed job
type WSErrorMessage struct {
	Type         string `json:"type"`
	JobID        string `json:"job_id"`
	ErrorMessage string `json:"error_message"`
}
