package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/stemsplit/api/internal/errors"
	"github.com/stemsplit/api/internal/model"
)

// JobRepository is the single source of truth for job state
type JobRepository interface {
	Create(ctx context.Context, jobType model.JobType, input model.JobInput, params json.RawMessage) (*model.Job, error)
	Get(ctx context.Context, id string) (*model.Job, error)
	UpdateStatus(ctx context.Context, id string, status model.JobStatus, opts ...UpdateOption) (*model.Job, error)
}

// UpdateOption attaches an optional field to a status update
type UpdateOption func(*model.Job)

// WithProgress sets the job progress, a value in [0.0, 1.0]
func WithProgress(p float64) UpdateOption {
	return func(j *model.Job) { j.Progress = p }
}

// WithOutput sets the artifact map; only valid together with succeeded
func WithOutput(output map[string]string) UpdateOption {
	return func(j *model.Job) { j.Output = output }
}

// WithErrorMessage sets the failure description; only valid together with failed
func WithErrorMessage(msg string) UpdateOption {
	return func(j *model.Job) { j.ErrorMessage = msg }
}

// WithRetryCount records how many delivery attempts the job has consumed
func WithRetryCount(n int) UpdateOption {
	return func(j *model.Job) { j.RetryCount = n }
}

// RedisJobRepository stores job records as JSON under job:{id} keys.
// Every job lives under its own key, so concurrent updates to different
// jobs never contend, and the dispatcher delivers one job to one worker
// at a time, so updates to a single job are not concurrent.
type RedisJobRepository struct {
	redis *redis.Client
}

// NewRedisJobRepository creates a repository over an existing client
func NewRedisJobRepository(redisClient *redis.Client) *RedisJobRepository {
	return &RedisJobRepository{redis: redisClient}
}

// Create inserts a new job in state queued with progress 0.
// The job type must be recognized and the input well-formed; violations
// surface as ValidationError and nothing is persisted.
func (r *RedisJobRepository) Create(ctx context.Context, jobType model.JobType, input model.JobInput, params json.RawMessage) (*model.Job, error) {
	if !model.IsValidJobType(jobType) {
		return nil, apperrors.NewValidationError("invalid job type %q", jobType)
	}
	if input.AudioID == "" {
		return nil, apperrors.NewValidationError("input.audio_id is required")
	}

	now := time.Now().UTC()
	job := &model.Job{
		ID:        uuid.New().String(),
		Type:      jobType,
		Status:    model.JobStatusQueued,
		Input:     input,
		Params:    params,
		Progress:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := r.save(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}
	return job, nil
}

// Get loads a job by id
func (r *RedisJobRepository) Get(ctx context.Context, id string) (*model.Job, error) {
	data, err := r.redis.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("%s: %w", id, apperrors.ErrJobNotFound)
		}
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

// UpdateStatus applies a partial update. UpdatedAt always advances;
// StartedAt is stamped on the first transition to running and CompletedAt
// when a terminal state is reached. The caller is responsible for only
// requesting state-machine-valid transitions.
func (r *RedisJobRepository) UpdateStatus(ctx context.Context, id string, status model.JobStatus, opts ...UpdateOption) (*model.Job, error) {
	job, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	job.Status = status
	for _, opt := range opts {
		opt(job)
	}

	now := time.Now().UTC()
	job.UpdatedAt = now
	if status == model.JobStatusRunning && job.StartedAt == nil {
		job.StartedAt = &now
	}
	if job.IsTerminal() && job.CompletedAt == nil {
		job.CompletedAt = &now
	}

	if err := r.save(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to update job %s: %w", id, err)
	}
	return job, nil
}

func (r *RedisJobRepository) save(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	// Jobs are never deleted by this layer; retention is an operator concern.
	return r.redis.Set(ctx, jobKey(job.ID), data, 0).Err()
}

func jobKey(id string) string {
	return fmt.Sprintf("job:%s", id)
}
