package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/stemsplit/api/internal/config"
	apperrors "github.com/stemsplit/api/internal/errors"
	"github.com/stemsplit/api/internal/model"
	"github.com/stemsplit/api/internal/repository"
)

type memJobRepo struct {
	jobs map[string]*model.Job
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{jobs: make(map[string]*model.Job)}
}

func (r *memJobRepo) Create(ctx context.Context, jobType model.JobType, input model.JobInput, params json.RawMessage) (*model.Job, error) {
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
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.jobs[job.ID] = job
	return job, nil
}

func (r *memJobRepo) Get(ctx context.Context, id string) (*model.Job, error) {
	job, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, apperrors.ErrJobNotFound)
	}
	return job, nil
}

func (r *memJobRepo) UpdateStatus(ctx context.Context, id string, status model.JobStatus, opts ...repository.UpdateOption) (*model.Job, error) {
	job, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, apperrors.ErrJobNotFound)
	}
	job.Status = status
	for _, opt := range opts {
		opt(job)
	}
	return job, nil
}

type memAudioRepo struct {
	audio map[string]*model.Audio
}

func newMemAudioRepo() *memAudioRepo {
	return &memAudioRepo{audio: make(map[string]*model.Audio)}
}

func (r *memAudioRepo) Create(ctx context.Context, id, filename, filePath string) (*model.Audio, error) {
	a := &model.Audio{ID: id, Filename: filename, FilePath: filePath, CreatedAt: time.Now().UTC()}
	r.audio[id] = a
	return a, nil
}

func (r *memAudioRepo) Get(ctx context.Context, id string) (*model.Audio, error) {
	a, ok := r.audio[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, apperrors.ErrAudioNotFound)
	}
	return a, nil
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: uuid.New().String()}, nil
}

func workerConfig() config.WorkerConfig {
	return config.WorkerConfig{
		Queue:       "audio",
		MaxRetry:    3,
		TaskTimeout: time.Hour,
		Retention:   24 * time.Hour,
	}
}

func seedAudio(t *testing.T, repo *memAudioRepo) string {
	t.Helper()
	id := uuid.New().String()
	if _, err := repo.Create(context.Background(), id, "song.mp3", "audio/"+id+"/song.mp3"); err != nil {
		t.Fatalf("seed audio: %v", err)
	}
	return id
}

func TestCreateJob_Success(t *testing.T) {
	jobs := newMemJobRepo()
	audio := newMemAudioRepo()
	enqueuer := &fakeEnqueuer{}
	svc := NewJobService(jobs, audio, enqueuer, workerConfig())

	audioID := seedAudio(t, audio)
	resp, err := svc.CreateJob(context.Background(), &model.CreateJobRequest{
		Type:  model.JobTypeStemSeparation,
		Input: model.JobInput{AudioID: audioID},
	})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if resp.Status != model.JobStatusQueued {
		t.Errorf("status = %s, want queued", resp.Status)
	}
	if resp.JobID == "" {
		t.Error("expected a job id")
	}

	if len(enqueuer.tasks) != 1 {
		t.Fatalf("enqueued %d tasks, want 1", len(enqueuer.tasks))
	}
	task := enqueuer.tasks[0]
	if task.Type() != TaskTypeAudioProcess {
		t.Errorf("task type = %q", task.Type())
	}
	var payload model.JobTaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.JobID != resp.JobID {
		t.Errorf("payload job_id = %q, want %q", payload.JobID, resp.JobID)
	}
}

func TestCreateJob_UnknownAudio(t *testing.T) {
	jobs := newMemJobRepo()
	svc := NewJobService(jobs, newMemAudioRepo(), &fakeEnqueuer{}, workerConfig())

	_, err := svc.CreateJob(context.Background(), &model.CreateJobRequest{
		Type:  model.JobTypeStemSeparation,
		Input: model.JobInput{AudioID: uuid.New().String()},
	})
	var verr *apperrors.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("want ValidationError, got %v", err)
	}
	if len(jobs.jobs) != 0 {
		t.Error("rejected request must not persist a job")
	}
}

func TestCreateJob_InvalidType(t *testing.T) {
	jobs := newMemJobRepo()
	audio := newMemAudioRepo()
	enqueuer := &fakeEnqueuer{}
	svc := NewJobService(jobs, audio, enqueuer, workerConfig())

	audioID := seedAudio(t, audio)
	_, err := svc.CreateJob(context.Background(), &model.CreateJobRequest{
		Type:  model.JobType("remix"),
		Input: model.JobInput{AudioID: audioID},
	})
	var verr *apperrors.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("want ValidationError, got %v", err)
	}
	if len(enqueuer.tasks) != 0 {
		t.Error("rejected request must not enqueue")
	}
}

func TestCreateJob_EnqueueFailureKeepsJobQueued(t *testing.T) {
	jobs := newMemJobRepo()
	audio := newMemAudioRepo()
	svc := NewJobService(jobs, audio, &fakeEnqueuer{err: errors.New("broker down")}, workerConfig())

	audioID := seedAudio(t, audio)
	resp, err := svc.CreateJob(context.Background(), &model.CreateJobRequest{
		Type:  model.JobTypeStemSeparation,
		Input: model.JobInput{AudioID: audioID},
	})
	if err != nil {
		t.Fatalf("CreateJob should tolerate a broker outage, got %v", err)
	}
	if resp.Status != model.JobStatusQueued {
		t.Errorf("status = %s, want queued for later re-dispatch", resp.Status)
	}
}

func TestGetJob_NotFound(t *testing.T) {
	svc := NewJobService(newMemJobRepo(), newMemAudioRepo(), &fakeEnqueuer{}, workerConfig())

	_, err := svc.GetJob(context.Background(), "missing")
	if !errors.Is(err, apperrors.ErrJobNotFound) {
		t.Fatalf("want ErrJobNotFound, got %v", err)
	}
}
