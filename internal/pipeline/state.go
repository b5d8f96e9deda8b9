package pipeline

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kalambet/icebreaker/internal/apperr"
	"github.com/kalambet/icebreaker/internal/collect"
	"github.com/kalambet/icebreaker/internal/storage"
)

// State is a step of a single comparison run.
type State string

const (
	StateIdle      State = "idle"
	StateSubmitted State = "submitted"
	StatePolling   State = "polling"
	StateStaged    State = "staged"
	StateAnalyzed  State = "analyzed"
	StateDone      State = "done"
	StateFailed    State = "failed"
)

var transitions = map[State][]State{
	StateIdle:      {StateSubmitted, StateFailed},
	StateSubmitted: {StatePolling, StateFailed},
	StatePolling:   {StateStaged, StateFailed},
	StateStaged:    {StateAnalyzed, StateFailed},
	StateAnalyzed:  {StateDone, StateFailed},
}

// CanTransition reports whether a run may move from one state to another.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible from s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Run tracks one pass through the pipeline.
type Run struct {
	ID        string
	Refs      []collect.ProfileRef
	JobID     string
	State     State
	Err       error
	Insight   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func newRun(id string, refs []collect.ProfileRef) *Run {
	ts := time.Now().UTC()
	return &Run{ID: id, Refs: refs, State: StateIdle, CreatedAt: ts, UpdatedAt: ts}
}

func (r *Run) transition(to State) error {
	if !CanTransition(r.State, to) {
		return fmt.Errorf("run %s: illegal transition %s -> %s", r.ID, r.State, to)
	}
	r.State = to
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// Record converts the run into its persisted form.
func (r *Run) Record() storage.Run {
	refs, _ := json.Marshal(r.Refs)
	rec := storage.Run{
		ID:          r.ID,
		JobID:       r.JobID,
		ProfileRefs: string(refs),
		State:       string(r.State),
		Insight:     r.Insight,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.Err != nil {
		rec.ErrorKind = apperr.Name(r.Err)
		rec.Error = r.Err.Error()
	}
	return rec
}
