package storage

import (
	"context"
	"io"
	"path"
)

// ArtifactStore is write-once blob storage for job outputs. Keys are
// deterministic given job id, category and filename, so a rerun of the
// same job overwrites identical paths instead of accumulating duplicates.
type ArtifactStore interface {
	// SaveArtifact persists one artifact and returns its path relative to
	// the storage root, e.g. "jobs/{job_id}/stems/track.vocals.mp3".
	SaveArtifact(ctx context.Context, jobID, category, filename string, data io.Reader) (string, error)
}

// AudioStore persists uploaded source files and resolves them back to a
// local path the inference toolchain can read.
type AudioStore interface {
	// SaveAudio persists an uploaded file and returns its path relative to
	// the storage root, e.g. "audio/{audio_id}/{filename}".
	SaveAudio(ctx context.Context, audioID, filename string, data io.Reader) (string, error)

	// ResolveAudio turns a stored relative path into an absolute local
	// file path, fetching the blob first if the backend is remote.
	// Returns an error wrapping errors.ErrAudioNotFound when the blob no
	// longer exists.
	ResolveAudio(ctx context.Context, relPath string) (string, error)
}

// Store is the combined blob backend used by the server
type Store interface {
	ArtifactStore
	AudioStore
}

// ArtifactKey builds the canonical artifact path
func ArtifactKey(jobID, category, filename string) string {
	return path.Join("jobs", jobID, category, filename)
}

// AudioKey builds the canonical audio path
func AudioKey(audioID, filename string) string {
	return path.Join("audio", audioID, filename)
}

// ContentTypeFor maps an audio/midi filename to a MIME type for remote
// backends; unknown extensions fall back to octet-stream.
func ContentTypeFor(filename string) string {
	switch path.Ext(filename) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".flac":
		return "audio/flac"
	case ".ogg":
		return "audio/ogg"
	case ".m4a", ".aac":
		return "audio/mp4"
	case ".mid":
		return "audio/midi"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
