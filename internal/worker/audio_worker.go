package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	apperrors "github.com/stemsplit/api/internal/errors"
	"github.com/stemsplit/api/internal/model"
	"github.com/stemsplit/api/internal/repository"
	"github.com/stemsplit/api/internal/service"
)

// AudioWorker adapts the job runner to the task queue: it decodes dispatch
// messages, applies the permanent/transient retry policy, and forces a
// terminal state when the retry budget is spent.
type AudioWorker struct {
	runner      *JobRunner
	jobs        repository.JobRepository
	notifier    Notifier
	softTimeout time.Duration
}

// NewAudioWorker creates the asynq handler for audio:process tasks
func NewAudioWorker(runner *JobRunner, jobs repository.JobRepository, notifier Notifier, softTimeout time.Duration) *AudioWorker {
	return &AudioWorker{
		runner:      runner,
		jobs:        jobs,
		notifier:    notifier,
		softTimeout: softTimeout,
	}
}

// ProcessTask handles one delivery of an audio:process message.
// Acknowledgment is late: asynq only marks the message consumed when this
// returns nil (or a SkipRetry error); a worker crash makes the message
// visible again for another worker.
func (w *AudioWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.JobTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal dispatch message: %v: %w", err, asynq.SkipRetry)
	}

	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	return w.handle(ctx, payload.JobID, retried, maxRetry)
}

// handle runs one attempt. retried is the number of prior attempts for
// this message; maxRetry is the queue's retry budget.
func (w *AudioWorker) handle(ctx context.Context, jobID string, retried, maxRetry int) error {
	if w.softTimeout > 0 {
		watchdog := time.AfterFunc(w.softTimeout, func() {
			log.Printf("Job %s exceeded soft time limit %v, still processing", jobID, w.softTimeout)
		})
		defer watchdog.Stop()
	}

	log.Printf("Processing job %s (attempt %d/%d)", jobID, retried+1, maxRetry+1)

	err := w.runner.Process(ctx, jobID)
	if err == nil {
		return nil
	}

	if apperrors.IsPermanent(err) {
		// The failure is recorded on the job; retrying the same input
		// reproduces the same failure, so drop the message.
		return fmt.Errorf("job %s: %v: %w", jobID, err, asynq.SkipRetry)
	}

	if retried >= maxRetry {
		w.exhaust(ctx, jobID, retried+1, err)
		return fmt.Errorf("job %s: retry limit reached: %w", jobID, err)
	}

	// Transient failure with budget left: record the attempt and let the
	// queue redeliver. The terminal-state guard makes the rerun safe.
	if _, uerr := w.jobs.UpdateStatus(ctx, jobID, model.JobStatusRunning,
		repository.WithRetryCount(retried+1),
	); uerr != nil {
		log.Printf("Failed to record attempt count for job %s: %v", jobID, uerr)
	}
	return err
}

// exhaust forces a failed state once the retry budget is spent so the job
// is never redelivered or left in running indefinitely.
func (w *AudioWorker) exhaust(ctx context.Context, jobID string, attempts int, cause error) {
	msg := fmt.Sprintf("retry limit reached after %d attempts: %v", attempts, cause)
	if _, err := w.jobs.UpdateStatus(ctx, jobID, model.JobStatusFailed,
		repository.WithErrorMessage(msg),
		repository.WithRetryCount(attempts),
	); err != nil {
		log.Printf("Failed to record retry exhaustion for job %s: %v (cause: %v)", jobID, err, cause)
		return
	}
	if w.notifier != nil {
		w.notifier.BroadcastError(jobID, msg)
	}
}

// Mux wires the worker's task types onto an asynq mux
func (w *AudioWorker) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeAudioProcess, w.ProcessTask)
	return mux
}
