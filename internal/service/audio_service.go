package service

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/stemsplit/api/internal/model"
	"github.com/stemsplit/api/internal/repository"
	"github.com/stemsplit/api/internal/storage"
)

// AudioService handles uploaded source files: one stored blob plus one
// immutable registry record, reusable across any number of jobs.
type AudioService struct {
	audio repository.AudioRepository
	store storage.AudioStore
}

func NewAudioService(audio repository.AudioRepository, store storage.AudioStore) *AudioService {
	return &AudioService{
		audio: audio,
		store: store,
	}
}

// Upload saves the file under a fresh audio id and registers it.
// The filename is sanitized before it touches the filesystem.
func (s *AudioService) Upload(ctx context.Context, filename string, file io.Reader) (*model.AudioResponse, error) {
	audioID := uuid.New().String()
	sanitized := storage.SanitizeFilename(filename)

	relPath, err := s.store.SaveAudio(ctx, audioID, sanitized, file)
	if err != nil {
		return nil, fmt.Errorf("failed to save audio file: %w", err)
	}

	audio, err := s.audio.Create(ctx, audioID, sanitized, relPath)
	if err != nil {
		return nil, fmt.Errorf("failed to register audio: %w", err)
	}

	return &model.AudioResponse{
		AudioID:  audio.ID,
		Filename: audio.Filename,
	}, nil
}
