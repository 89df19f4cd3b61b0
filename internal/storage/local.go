package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	apperrors "github.com/stemsplit/api/internal/errors"
)

// LocalStore keeps blobs on the local filesystem under a single root:
//
//	{root}/audio/{audio_id}/{filename}      uploaded source files
//	{root}/jobs/{job_id}/{category}/{...}   job artifacts
type LocalStore struct {
	root string
}

// NewLocalStore creates a disk-backed store rooted at root
func NewLocalStore(root string) (*LocalStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &LocalStore{root: abs}, nil
}

// Root returns the absolute storage root
func (s *LocalStore) Root() string {
	return s.root
}

// SaveArtifact writes one artifact, overwriting any previous content at
// the same path so job reruns regenerate byte-identical locations.
func (s *LocalStore) SaveArtifact(ctx context.Context, jobID, category, filename string, data io.Reader) (string, error) {
	rel := ArtifactKey(jobID, category, filename)
	if err := s.write(rel, data); err != nil {
		return "", fmt.Errorf("save artifact %s: %w", rel, err)
	}
	return rel, nil
}

// SaveAudio writes one uploaded source file
func (s *LocalStore) SaveAudio(ctx context.Context, audioID, filename string, data io.Reader) (string, error) {
	rel := AudioKey(audioID, filename)
	if err := s.write(rel, data); err != nil {
		return "", fmt.Errorf("save audio %s: %w", rel, err)
	}
	return rel, nil
}

// ResolveAudio maps a stored relative path onto the local filesystem
func (s *LocalStore) ResolveAudio(ctx context.Context, relPath string) (string, error) {
	abs := filepath.Join(s.root, filepath.FromSlash(relPath))
	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%s: %w", relPath, apperrors.ErrAudioNotFound)
		}
		return "", fmt.Errorf("stat %s: %w", relPath, err)
	}
	return abs, nil
}

func (s *LocalStore) write(rel string, data io.Reader) error {
	abs := filepath.Join(s.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return err
	}
	f, err := os.Create(abs)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
