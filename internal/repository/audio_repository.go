package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/stemsplit/api/internal/errors"
	"github.com/stemsplit/api/internal/model"
)

// AudioRepository registers uploaded audio files and resolves them by id
type AudioRepository interface {
	Create(ctx context.Context, id, filename, filePath string) (*model.Audio, error)
	Get(ctx context.Context, id string) (*model.Audio, error)
}

// RedisAudioRepository stores audio records as JSON under audio:{id} keys
type RedisAudioRepository struct {
	redis *redis.Client
}

// NewRedisAudioRepository creates a repository over an existing client
func NewRedisAudioRepository(redisClient *redis.Client) *RedisAudioRepository {
	return &RedisAudioRepository{redis: redisClient}
}

// Create registers an uploaded file under a caller-generated id; the blob
// is stored under that id before the record exists. Records are immutable
// once written.
func (r *RedisAudioRepository) Create(ctx context.Context, id, filename, filePath string) (*model.Audio, error) {
	audio := &model.Audio{
		ID:        id,
		Filename:  filename,
		FilePath:  filePath,
		CreatedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(audio)
	if err != nil {
		return nil, err
	}
	if err := r.redis.Set(ctx, audioKey(audio.ID), data, 0).Err(); err != nil {
		return nil, fmt.Errorf("failed to save audio record: %w", err)
	}
	return audio, nil
}

// Get loads an audio record by id
func (r *RedisAudioRepository) Get(ctx context.Context, id string) (*model.Audio, error) {
	data, err := r.redis.Get(ctx, audioKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("%s: %w", id, apperrors.ErrAudioNotFound)
		}
		return nil, fmt.Errorf("load audio %s: %w", id, err)
	}

	var audio model.Audio
	if err := json.Unmarshal(data, &audio); err != nil {
		return nil, fmt.Errorf("decode audio %s: %w", id, err)
	}
	return &audio, nil
}

func audioKey(id string) string {
	return fmt.Sprintf("audio:%s", id)
}
