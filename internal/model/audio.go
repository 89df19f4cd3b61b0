package model

import "time"

// Audio represents an uploaded source file. Immutable once created;
// reusable across many jobs without re-uploading.
type Audio struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	FilePath  string    `json:"file_path"` // relative to the storage root
	CreatedAt time.Time `json:"created_at"`
}

// AudioResponse is the response body for POST /audio
type AudioResponse struct {
	AudioID  string `json:"audio_id"`
	Filename string `json:"filename"`
}
