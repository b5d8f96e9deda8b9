// Package worker executes queued comparison runs from the SQL job queue.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/icebreaker/internal/collect"
	"github.com/kalambet/icebreaker/internal/pipeline"
	"github.com/kalambet/icebreaker/internal/storage"
)

// JobType is the queue type for asynchronous pipeline runs.
const JobType = "pipeline_run"

// StatusQueued is the run state recorded before a worker picks the job up.
const StatusQueued = "queued"

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
}

// Queue accepts new asynchronous runs.
type Queue interface {
	EnqueueJob(job storage.Job) error
	SaveRun(r storage.Run) error
}

// Runner executes one pipeline run under a caller-chosen ID.
type Runner interface {
	RunWithID(ctx context.Context, id string, refs []collect.ProfileRef) (*pipeline.Run, error)
}

type runPayload struct {
	RunID string               `json:"run_id"`
	URLs  []collect.ProfileRef `json:"urls"`
}

// Enqueue validates refs, records a queued run and schedules it for a
// worker. It returns the run ID.
func Enqueue(q Queue, refs []collect.ProfileRef) (string, error) {
	if err := collect.ValidateRefs(refs); err != nil {
		return "", err
	}

	runID := uuid.NewString()
	payload, err := json.Marshal(runPayload{RunID: runID, URLs: refs})
	if err != nil {
		return "", fmt.Errorf("marshaling run payload: %w", err)
	}
	refsJSON, _ := json.Marshal(refs)

	ts := time.Now().UTC()
	if err := q.SaveRun(storage.Run{
		ID:          runID,
		ProfileRefs: string(refsJSON),
		State:       StatusQueued,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}); err != nil {
		return "", fmt.Errorf("recording queued run: %w", err)
	}
	if err := q.EnqueueJob(storage.Job{
		ID:          uuid.NewString(),
		Type:        JobType,
		PayloadJSON: string(payload),
		MaxAttempts: 1,
	}); err != nil {
		return "", fmt.Errorf("enqueueing run: %w", err)
	}
	return runID, nil
}

// Worker processes pipeline_run jobs.
type Worker struct {
	store  JobStore
	runner Runner
	poll   time.Duration
	logger *slog.Logger
}

// NewWorker creates a Worker. If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, runner Runner, pollInterval time.Duration, logger *slog.Logger) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		store:  store,
		runner: runner,
		poll:   pollInterval,
		logger: logger,
	}
}

// Start runs n claim loops until ctx is cancelled.
func (w *Worker) Start(ctx context.Context, n int) error {
	if n <= 0 {
		n = 1
	}
	g, gCtx := errgroup.WithContext(ctx)
	for range n {
		g.Go(func() error {
			w.Run(gCtx)
			return nil
		})
	}
	return g.Wait()
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single pipeline_run job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobType})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload runPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}
	if payload.RunID == "" {
		return fmt.Errorf("payload has no run_id")
	}

	run, err := w.runner.RunWithID(ctx, payload.RunID, payload.URLs)
	if err != nil {
		return fmt.Errorf("run %s: %w", payload.RunID, err)
	}
	w.logger.Info("queued run finished", "run_id", run.ID, "job_id", run.JobID, "state", run.State)
	return nil
}
