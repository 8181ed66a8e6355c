// Package worker drains queued cover generations in the background.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lthibault/jitterbug/v2"

	"github.com/mamette/mamette/internal/generate"
	"github.com/mamette/mamette/internal/imagegen"
	"github.com/mamette/mamette/internal/storage"
)

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(ctx context.Context, types []string) (*storage.Job, error)
	CompleteJob(ctx context.Context, id string) error
	FailJob(ctx context.Context, id string, errMsg string) error
}

// Runner fills a started generation with images.
type Runner interface {
	Run(ctx context.Context, generationID string) (generate.Result, error)
}

// Worker processes generate_covers jobs from the job queue.
type Worker struct {
	store  JobStore
	runner Runner
	poll   time.Duration
	logger *slog.Logger
}

// New creates a Worker. If pollInterval is <= 0, it defaults to 500ms.
func New(store JobStore, runner Runner, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:  store,
		runner: runner,
		poll:   pollInterval,
		logger: slog.Default(),
	}
}

func (w *Worker) WithLogger(l *slog.Logger) *Worker {
	w.logger = l
	return w
}

// Run polls for jobs until ctx is cancelled. The queue is drained before
// waiting for the next tick.
func (w *Worker) Run(ctx context.Context) {
	ticker := jitterbug.New(w.poll, &jitterbug.Norm{Stdev: 30 * time.Millisecond})
	defer ticker.Stop()

	for {
		for ctx.Err() == nil {
			done, err := w.RunOnce(ctx)
			if err != nil {
				w.logger.Error("worker iteration failed", "error", err)
			}
			if !done {
				break
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce claims and processes a single job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob(ctx, []string{generate.JobType})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	// Jobs must not stay in the running state when ctx is cancelled mid-run.
	saveCtx := context.WithoutCancel(ctx)

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "attempt", job.Attempts+1, "error", err)
		if failErr := w.store.FailJob(saveCtx, job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(saveCtx, job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload generate.JobPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}
	if payload.GenerationID == "" {
		return errors.New("payload has no generation_id")
	}

	_, err := w.runner.Run(ctx, payload.GenerationID)
	// A run without images is already recorded as failed on the generation.
	// Missing provider credentials will not fix themselves between retries.
	if errors.Is(err, generate.ErrNoImages) || errors.Is(err, imagegen.ErrNotConfigured) {
		w.logger.Info("generation finished without images", "job_id", job.ID, "generation_id", payload.GenerationID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("running generation %s: %w", payload.GenerationID, err)
	}
	return nil
}
