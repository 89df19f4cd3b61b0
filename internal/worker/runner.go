package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/stemsplit/api/internal/engine"
	apperrors "github.com/stemsplit/api/internal/errors"
	"github.com/stemsplit/api/internal/model"
	"github.com/stemsplit/api/internal/repository"
	"github.com/stemsplit/api/internal/storage"
)

// Notifier pushes live job updates to subscribers. May be nil.
type Notifier interface {
	BroadcastProgress(jobID string, progress float64, status model.JobStatus, step string)
	BroadcastComplete(jobID string, output map[string]string)
	BroadcastError(jobID string, message string)
}

// JobRunner drives a single job through its state machine:
// queued -> running -> succeeded | failed. All collaborators are injected;
// the runner owns no connections of its own.
type JobRunner struct {
	jobs     repository.JobRepository
	audio    repository.AudioRepository
	store    storage.Store
	registry *engine.Registry
	notifier Notifier
}

func NewJobRunner(jobs repository.JobRepository, audio repository.AudioRepository, store storage.Store, registry *engine.Registry, notifier Notifier) *JobRunner {
	return &JobRunner{
		jobs:     jobs,
		audio:    audio,
		store:    store,
		registry: registry,
		notifier: notifier,
	}
}

// Process runs one job to completion.
//
// A nil return means the dispatch message can be acknowledged: the job
// reached a terminal state or was a duplicate delivery. A permanent error
// return means the failure has been recorded on the job and the message
// must not be retried. Any other error is transient: the job may still be
// in running, and the queue is expected to redeliver the message so the
// whole run (including any pending status fix-up) is re-attempted.
func (r *JobRunner) Process(ctx context.Context, jobID string) error {
	job, err := r.jobs.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, apperrors.ErrJobNotFound) {
			// Malformed dispatch message. No job record, no side effects,
			// nothing a retry could fix.
			return err
		}
		return fmt.Errorf("load job %s: %w", jobID, err)
	}

	// Duplicate delivery of a finished job is a no-op: output and
	// error_message are written exactly once.
	if job.IsTerminal() {
		log.Printf("Job %s already %s, skipping redelivery", jobID, job.Status)
		return nil
	}

	if _, err := r.jobs.UpdateStatus(ctx, jobID, model.JobStatusRunning); err != nil {
		return fmt.Errorf("mark job %s running: %w", jobID, err)
	}
	r.broadcastProgress(jobID, 0, "starting")

	audio, err := r.audio.Get(ctx, job.Input.AudioID)
	if err != nil {
		if apperrors.IsPermanent(err) {
			return r.fail(ctx, jobID, err)
		}
		return fmt.Errorf("load audio %s: %w", job.Input.AudioID, err)
	}

	inputPath, err := r.store.ResolveAudio(ctx, audio.FilePath)
	if err != nil {
		if apperrors.IsPermanent(err) {
			return r.fail(ctx, jobID, err)
		}
		return fmt.Errorf("resolve audio %s: %w", job.Input.AudioID, err)
	}
	r.progress(ctx, jobID, 0.1, "input resolved")

	strategy, ok := r.registry.Lookup(job.Type)
	if !ok {
		return r.fail(ctx, jobID, fmt.Errorf("%q: %w", job.Type, apperrors.ErrUnknownType))
	}

	result, err := strategy.Run(ctx, inputPath, job.Params)
	if err != nil {
		if apperrors.IsPermanent(err) {
			return r.fail(ctx, jobID, err)
		}
		return fmt.Errorf("job %s inference: %w", jobID, err)
	}
	r.progress(ctx, jobID, 0.8, "inference complete")

	// Artifact paths are deterministic given job id and strategy, so a
	// redelivered run overwrites the same locations instead of duplicating.
	output := make(map[string]string, len(result.Artifacts))
	for name, artifact := range result.Artifacts {
		rel, err := r.store.SaveArtifact(ctx, jobID, artifact.Category, artifact.Filename, bytes.NewReader(artifact.Data))
		if err != nil {
			return fmt.Errorf("persist artifact %s of job %s: %w", name, jobID, err)
		}
		output[name] = rel
	}
	r.progress(ctx, jobID, 0.95, "artifacts persisted")

	if _, err := r.jobs.UpdateStatus(ctx, jobID, model.JobStatusSucceeded,
		repository.WithOutput(output),
		repository.WithProgress(1.0),
	); err != nil {
		// The work is done but the record does not show it. Let the queue
		// rerun the job; the rerun regenerates identical artifact paths
		// and re-attempts this write.
		return fmt.Errorf("mark job %s succeeded: %w", jobID, err)
	}

	if r.notifier != nil {
		r.notifier.BroadcastComplete(jobID, output)
	}
	log.Printf("Job %s succeeded with %d artifacts", jobID, len(output))
	return nil
}

// fail records a permanent failure and returns the cause. It builds its
// write from the job id alone — nothing from the success path is assumed
// to exist when a failure is being recorded.
func (r *JobRunner) fail(ctx context.Context, jobID string, cause error) error {
	if _, err := r.jobs.UpdateStatus(ctx, jobID, model.JobStatusFailed,
		repository.WithErrorMessage(cause.Error()),
	); err != nil {
		log.Printf("Failed to record failure of job %s: %v (cause: %v)", jobID, err, cause)
		// Re-raise as transient so the queue re-attempts the whole job,
		// including this status fix-up, instead of orphaning it in running.
		return fmt.Errorf("record failure of job %s: %w", jobID, err)
	}

	if r.notifier != nil {
		r.notifier.BroadcastError(jobID, cause.Error())
	}
	log.Printf("Job %s failed: %v", jobID, cause)
	return cause
}

// progress persists and broadcasts a progress step. Granular progress is
// best-effort: a failed write is logged, never fatal to the job.
func (r *JobRunner) progress(ctx context.Context, jobID string, value float64, step string) {
	if _, err := r.jobs.UpdateStatus(ctx, jobID, model.JobStatusRunning,
		repository.WithProgress(value),
	); err != nil {
		log.Printf("Failed to update progress of job %s: %v", jobID, err)
	}
	r.broadcastProgress(jobID, value, step)
}

func (r *JobRunner) broadcastProgress(jobID string, value float64, step string) {
	if r.notifier != nil {
		r.notifier.BroadcastProgress(jobID, value, model.JobStatusRunning, step)
	}
}
