package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/stemsplit/api/internal/config"
	apperrors "github.com/stemsplit/api/internal/errors"
	"github.com/stemsplit/api/internal/model"
	"github.com/stemsplit/api/internal/repository"
)

// TaskTypeAudioProcess is the asynq task type for job dispatch messages
const TaskTypeAudioProcess = "audio:process"

// TaskEnqueuer is the slice of *asynq.Client the service needs
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// JobService creates job records, hands them to the dispatcher, and
// answers status queries.
type JobService struct {
	jobs     repository.JobRepository
	audio    repository.AudioRepository
	enqueuer TaskEnqueuer
	worker   config.WorkerConfig
}

func NewJobService(jobs repository.JobRepository, audio repository.AudioRepository, enqueuer TaskEnqueuer, worker config.WorkerConfig) *JobService {
	return &JobService{
		jobs:     jobs,
		audio:    audio,
		enqueuer: enqueuer,
		worker:   worker,
	}
}

// CreateJob validates the request, persists a queued job and enqueues a
// dispatch message carrying only the job id. Referential integrity of
// input.audio_id is checked here, once, at creation time.
func (s *JobService) CreateJob(ctx context.Context, req *model.CreateJobRequest) (*model.JobResponse, error) {
	if _, err := s.audio.Get(ctx, req.Input.AudioID); err != nil {
		if errors.Is(err, apperrors.ErrAudioNotFound) {
			return nil, apperrors.NewValidationError("audio %s not found", req.Input.AudioID)
		}
		return nil, fmt.Errorf("resolve audio: %w", err)
	}

	job, err := s.jobs.Create(ctx, req.Type, req.Input, req.Params)
	if err != nil {
		return nil, err
	}

	task, err := NewAudioProcessTask(job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	_, err = s.enqueuer.Enqueue(task,
		asynq.Queue(s.worker.Queue),
		asynq.MaxRetry(s.worker.MaxRetry),
		asynq.Timeout(s.worker.TaskTimeout),
		asynq.Retention(s.worker.Retention),
	)
	if err != nil {
		// The record is valid; only the queue is unavailable. Leave the
		// job in queued so it can be re-dispatched instead of failing the
		// create request.
		log.Printf("Failed to enqueue job %s: %v", job.ID, err)
	}

	return jobToResponse(job), nil
}

// GetJob returns the current view of a job
func (s *JobService) GetJob(ctx context.Context, jobID string) (*model.JobResponse, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return jobToResponse(job), nil
}

// NewAudioProcessTask builds the dispatch message for one job
func NewAudioProcessTask(jobID string) (*asynq.Task, error) {
	payload, err := json.Marshal(model.JobTaskPayload{JobID: jobID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeAudioProcess, payload), nil
}

func jobToResponse(job *model.Job) *model.JobResponse {
	return &model.JobResponse{
		JobID:        job.ID,
		Type:         job.Type,
		Status:       job.Status,
		Input:        job.Input,
		Params:       job.Params,
		Output:       job.Output,
		Progress:     job.Progress,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
	}
}
