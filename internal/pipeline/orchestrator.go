// Package pipeline sequences collection, staging and analysis for a pair of
// profiles. Each run is an explicit state machine; the staged artifact is
// deleted whenever a run leaves the staged state, whatever comes next.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/kalambet/icebreaker/internal/apperr"
	"github.com/kalambet/icebreaker/internal/collect"
	"github.com/kalambet/icebreaker/internal/staging"
	"github.com/kalambet/icebreaker/internal/storage"
)

// Collector submits collection jobs and waits for their results.
type Collector interface {
	Submit(ctx context.Context, refs []collect.ProfileRef) (string, error)
	PollUntilReady(ctx context.Context, jobID string) ([]byte, error)
}

// Analyzer turns a collected payload into insight text.
type Analyzer interface {
	Analyze(ctx context.Context, payload []byte) (string, error)
}

// Recorder persists run snapshots after every transition.
type Recorder interface {
	SaveRun(r storage.Run) error
}

type Deps struct {
	Collector Collector
	Staging   staging.Store
	Analyzer  Analyzer
	Recorder  Recorder // optional
	Logger    *slog.Logger
}

// Orchestrator drives runs and serves the individual pipeline steps.
type Orchestrator struct {
	collector Collector
	staging   staging.Store
	analyzer  Analyzer
	recorder  Recorder
	logger    *slog.Logger

	polls singleflight.Group
}

func New(d Deps) *Orchestrator {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		collector: d.Collector,
		staging:   d.Staging,
		analyzer:  d.Analyzer,
		recorder:  d.Recorder,
		logger:    logger,
	}
}

// Submit starts a collection job for refs and returns its job ID.
func (o *Orchestrator) Submit(ctx context.Context, refs []collect.ProfileRef) (string, error) {
	jobID, err := o.collector.Submit(ctx, refs)
	if err != nil {
		return "", err
	}
	o.logger.Info("job submitted", "job_id", jobID)
	return jobID, nil
}

// FetchResult returns the collected payload for jobID, polling the provider
// and staging the payload if it is not staged yet. Concurrent calls for the
// same job share one poller.
func (o *Orchestrator) FetchResult(ctx context.Context, jobID string) ([]byte, error) {
	if err := checkJobID("pipeline.fetch", jobID); err != nil {
		return nil, err
	}
	if payload, err := o.staged(ctx, jobID); payload != nil || err != nil {
		return payload, err
	}

	// The poll belongs to the job, not to the caller that happened to start
	// it: it runs until Ready, Failed or the attempt ceiling, and each caller
	// stops waiting when its own context ends.
	pollCtx := context.WithoutCancel(ctx)
	ch := o.polls.DoChan(jobID, func() (any, error) {
		// A poller that finished between our check and DoChan has already staged.
		if payload, err := o.staged(pollCtx, jobID); payload != nil || err != nil {
			return payload, err
		}
		payload, err := o.collector.PollUntilReady(pollCtx, jobID)
		if err != nil {
			return nil, err
		}
		if err := o.staging.Put(pollCtx, jobID, payload); err != nil {
			return nil, err
		}
		o.logger.Info("artifact staged", "job_id", jobID, "bytes", len(payload))
		return payload, nil
	})

	select {
	case <-ctx.Done():
		o.logger.Debug("stopped waiting for poll", "job_id", jobID, "error", ctx.Err())
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			o.logger.Debug("joined in-flight poll", "job_id", jobID)
		}
		return res.Val.([]byte), nil
	}
}

// staged returns the staged payload, or nil with no error when nothing is
// staged under jobID.
func (o *Orchestrator) staged(ctx context.Context, jobID string) ([]byte, error) {
	payload, err := o.staging.Get(ctx, jobID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	return payload, err
}

// Analyze consumes the artifact staged for jobID. The artifact is deleted
// whether or not analysis succeeds.
func (o *Orchestrator) Analyze(ctx context.Context, jobID string) (string, error) {
	if err := checkJobID("pipeline.analyze", jobID); err != nil {
		return "", err
	}
	payload, err := o.staging.Get(ctx, jobID)
	if err != nil {
		return "", err
	}
	defer o.cleanup(ctx, jobID)

	return o.analyzer.Analyze(ctx, payload)
}

// Run executes a full pipeline under a fresh run ID.
func (o *Orchestrator) Run(ctx context.Context, refs []collect.ProfileRef) (*Run, error) {
	return o.RunWithID(ctx, uuid.NewString(), refs)
}

// RunWithID executes submit, poll, stage and analyze in order. The returned
// Run is terminal and carries the failure reason when err is non-nil.
func (o *Orchestrator) RunWithID(ctx context.Context, id string, refs []collect.ProfileRef) (*Run, error) {
	run := newRun(id, refs)
	o.record(run)

	jobID, err := o.collector.Submit(ctx, refs)
	if err != nil {
		return run, o.fail(ctx, run, err)
	}
	run.JobID = jobID
	if err := o.advance(ctx, run, StateSubmitted); err != nil {
		return run, err
	}

	if err := o.advance(ctx, run, StatePolling); err != nil {
		return run, err
	}
	if _, err := o.FetchResult(ctx, jobID); err != nil {
		return run, o.fail(ctx, run, err)
	}
	if err := o.advance(ctx, run, StateStaged); err != nil {
		return run, err
	}

	payload, err := o.staging.Get(ctx, jobID)
	if err != nil {
		return run, o.fail(ctx, run, err)
	}
	insight, err := o.analyzer.Analyze(ctx, payload)
	if err != nil {
		return run, o.fail(ctx, run, err)
	}
	run.Insight = insight
	if err := o.advance(ctx, run, StateAnalyzed); err != nil {
		return run, err
	}

	if err := o.advance(ctx, run, StateDone); err != nil {
		return run, err
	}
	return run, nil
}

// advance moves run to the next state, deleting the staged artifact when the
// run leaves StateStaged.
func (o *Orchestrator) advance(ctx context.Context, run *Run, to State) error {
	from := run.State
	if err := run.transition(to); err != nil {
		o.logger.Error("pipeline transition rejected", "run_id", run.ID, "from", from, "to", to)
		return err
	}
	if from == StateStaged {
		o.cleanup(ctx, run.JobID)
	}
	o.logger.Info("pipeline transition", "run_id", run.ID, "job_id", run.JobID, "from", from, "state", to)
	o.record(run)
	return nil
}

// fail moves run to StateFailed and returns cause.
func (o *Orchestrator) fail(ctx context.Context, run *Run, cause error) error {
	run.Err = cause
	if err := o.advance(ctx, run, StateFailed); err != nil {
		return errors.Join(cause, err)
	}
	o.logger.Warn("pipeline failed", "run_id", run.ID, "job_id", run.JobID, "kind", apperr.Name(cause), "error", cause)
	return cause
}

func (o *Orchestrator) cleanup(ctx context.Context, jobID string) {
	if err := o.staging.Delete(context.WithoutCancel(ctx), jobID); err != nil {
		o.logger.Error("failed to delete staged artifact", "job_id", jobID, "error", err)
	}
}

func (o *Orchestrator) record(run *Run) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.SaveRun(run.Record()); err != nil {
		o.logger.Warn("failed to record run", "run_id", run.ID, "state", run.State, "error", err)
	}
}

func checkJobID(op, jobID string) error {
	if strings.TrimSpace(jobID) == "" {
		return apperr.InvalidInput(op, "job id is required")
	}
	return nil
}
