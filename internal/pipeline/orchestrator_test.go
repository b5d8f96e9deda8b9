package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/icebreaker/internal/apperr"
	"github.com/kalambet/icebreaker/internal/collect"
	"github.com/kalambet/icebreaker/internal/staging"
	"github.com/kalambet/icebreaker/internal/storage"
)

var pair = []collect.ProfileRef{
	{URL: "https://www.linkedin.com/in/ada"},
	{URL: "https://www.linkedin.com/in/grace"},
}

type fakeCollector struct {
	jobID     string
	submitErr error
	payload   []byte
	pollErr   error
	release   chan struct{} // when set, polls block until closed

	submits atomic.Int32
	polls   atomic.Int32
}

func (f *fakeCollector) Submit(ctx context.Context, refs []collect.ProfileRef) (string, error) {
	f.submits.Add(1)
	if err := collect.ValidateRefs(refs); err != nil {
		return "", err
	}
	return f.jobID, f.submitErr
}

func (f *fakeCollector) PollUntilReady(ctx context.Context, jobID string) ([]byte, error) {
	f.polls.Add(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.pollErr != nil {
		return nil, f.pollErr
	}
	return f.payload, nil
}

type fakeAnalyzer struct {
	text  string
	err   error
	calls atomic.Int32
	seen  []byte
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, payload []byte) (string, error) {
	f.calls.Add(1)
	f.seen = payload
	return f.text, f.err
}

type fakeRecorder struct {
	mu     sync.Mutex
	states []string
	last   storage.Run
}

func (f *fakeRecorder) SaveRun(r storage.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, r.State)
	f.last = r
	return nil
}

type harness struct {
	orch     *Orchestrator
	coll     *fakeCollector
	analyzer *fakeAnalyzer
	store    *staging.MemoryStore
	rec      *fakeRecorder
}

func newHarness(t *testing.T, coll *fakeCollector, an *fakeAnalyzer) *harness {
	t.Helper()
	store, err := staging.NewMemoryStore(16)
	require.NoError(t, err)
	rec := &fakeRecorder{}
	return &harness{
		orch: New(Deps{
			Collector: coll,
			Staging:   store,
			Analyzer:  an,
			Recorder:  rec,
		}),
		coll:     coll,
		analyzer: an,
		store:    store,
		rec:      rec,
	}
}

func TestRun_HappyPath(t *testing.T) {
	h := newHarness(t,
		&fakeCollector{jobID: "job1", payload: []byte(`{"a":1}`)},
		&fakeAnalyzer{text: "Shared interest: X"},
	)
	ctx := context.Background()

	run, err := h.orch.Run(ctx, pair)
	require.NoError(t, err)
	assert.Equal(t, StateDone, run.State)
	assert.Equal(t, "job1", run.JobID)
	assert.Equal(t, "Shared interest: X", run.Insight)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, `{"a":1}`, string(h.analyzer.seen))

	_, err = h.store.Get(ctx, "job1")
	assert.ErrorIs(t, err, apperr.ErrNotFound, "artifact must be removed after analysis")

	assert.Equal(t, []string{"idle", "submitted", "polling", "staged", "analyzed", "done"}, h.rec.states)
	assert.Equal(t, "Shared interest: X", h.rec.last.Insight)
}

func TestRun_SubmitInvalidInput(t *testing.T) {
	h := newHarness(t, &fakeCollector{jobID: "job1"}, &fakeAnalyzer{})

	run, err := h.orch.Run(context.Background(), pair[:1])
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	assert.Equal(t, StateFailed, run.State)
	assert.Equal(t, int32(0), h.coll.polls.Load())
	assert.Equal(t, "invalid_input", h.rec.last.ErrorKind)
}

func TestRun_PollTimeoutStagesNothing(t *testing.T) {
	timeout := apperr.New(apperr.ErrTimeout, "collect.poll", "not ready")
	h := newHarness(t,
		&fakeCollector{jobID: "job2", pollErr: timeout},
		&fakeAnalyzer{text: "unused"},
	)
	ctx := context.Background()

	run, err := h.orch.Run(ctx, pair)
	assert.ErrorIs(t, err, apperr.ErrTimeout)
	assert.Equal(t, StateFailed, run.State)
	assert.Equal(t, 0, h.store.Len())
	assert.Equal(t, int32(0), h.analyzer.calls.Load())
	assert.Equal(t, []string{"idle", "submitted", "polling", "failed"}, h.rec.states)
	assert.Equal(t, "timeout", h.rec.last.ErrorKind)
}

func TestRun_AnalysisFailureStillCleansUp(t *testing.T) {
	h := newHarness(t,
		&fakeCollector{jobID: "job3", payload: []byte(`[]`)},
		&fakeAnalyzer{err: apperr.Unavailable("insight.generate", errors.New("502"))},
	)
	ctx := context.Background()

	run, err := h.orch.Run(ctx, pair)
	assert.ErrorIs(t, err, apperr.ErrProviderUnavailable)
	assert.Equal(t, StateFailed, run.State)

	_, err = h.store.Get(ctx, "job3")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, []string{"idle", "submitted", "polling", "staged", "failed"}, h.rec.states)
}

func TestOrchestrator_SubmitFetchAnalyzeCleansUp(t *testing.T) {
	h := newHarness(t,
		&fakeCollector{jobID: "job1", payload: []byte(`{"a":1}`)},
		&fakeAnalyzer{text: "Shared interest: X"},
	)
	ctx := context.Background()

	jobID, err := h.orch.Submit(ctx, pair)
	require.NoError(t, err)
	require.Equal(t, "job1", jobID)

	payload, err := h.orch.FetchResult(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(payload))

	insight, err := h.orch.Analyze(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, "Shared interest: X", insight)

	_, err = h.store.Get(ctx, "job1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestOrchestrator_FetchTimeoutStagesNothing(t *testing.T) {
	h := newHarness(t,
		&fakeCollector{jobID: "job2", pollErr: apperr.New(apperr.ErrTimeout, "collect.poll", "not ready")},
		&fakeAnalyzer{},
	)
	ctx := context.Background()

	_, err := h.orch.FetchResult(ctx, "job2")
	assert.ErrorIs(t, err, apperr.ErrTimeout)
	assert.Equal(t, 0, h.store.Len())
}

func TestOrchestrator_AnalyzeUnknownJobSkipsAnalyzer(t *testing.T) {
	h := newHarness(t, &fakeCollector{}, &fakeAnalyzer{text: "x"})

	_, err := h.orch.Analyze(context.Background(), "never-staged")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, int32(0), h.analyzer.calls.Load())
}

func TestAnalyze_FailureDeletesArtifact(t *testing.T) {
	h := newHarness(t, &fakeCollector{}, &fakeAnalyzer{err: apperr.Unavailable("insight", errors.New("down"))})
	ctx := context.Background()
	require.NoError(t, h.store.Put(ctx, "job1", []byte(`{}`)))

	_, err := h.orch.Analyze(ctx, "job1")
	assert.ErrorIs(t, err, apperr.ErrProviderUnavailable)

	_, err = h.store.Get(ctx, "job1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestFetchResult_ReturnsStagedWithoutPolling(t *testing.T) {
	h := newHarness(t, &fakeCollector{payload: []byte(`"fresh"`)}, &fakeAnalyzer{})
	ctx := context.Background()
	require.NoError(t, h.store.Put(ctx, "job1", []byte(`"staged"`)))

	got, err := h.orch.FetchResult(ctx, "job1")
	require.NoError(t, err)
	assert.Equal(t, `"staged"`, string(got))
	assert.Equal(t, int32(0), h.coll.polls.Load())
}

func TestFetchResult_SinglePollerPerJob(t *testing.T) {
	coll := &fakeCollector{payload: []byte(`{"a":1}`), release: make(chan struct{})}
	h := newHarness(t, coll, &fakeAnalyzer{})
	ctx := context.Background()

	const callers = 8
	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := h.orch.FetchResult(ctx, "job1")
			results[i], errs[i] = string(b), err
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(coll.release)
	wg.Wait()

	assert.Equal(t, int32(1), coll.polls.Load())
	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, `{"a":1}`, results[i])
	}
}

func TestFetchResult_CancelledCallerDoesNotAbortPoll(t *testing.T) {
	coll := &fakeCollector{payload: []byte(`{"a":1}`), release: make(chan struct{})}
	h := newHarness(t, coll, &fakeAnalyzer{})

	ctx1, cancel1 := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := h.orch.FetchResult(ctx1, "job9")
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return coll.polls.Load() == 1 }, time.Second, time.Millisecond)

	type result struct {
		payload []byte
		err     error
	}
	second := make(chan result, 1)
	go func() {
		b, err := h.orch.FetchResult(context.Background(), "job9")
		second <- result{b, err}
	}()

	cancel1()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(coll.release)
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, `{"a":1}`, string(got.payload))
	assert.Equal(t, int32(1), coll.polls.Load())

	staged, err := h.store.Get(context.Background(), "job9")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(staged))
}

func TestFetchResult_EmptyJobID(t *testing.T) {
	h := newHarness(t, &fakeCollector{}, &fakeAnalyzer{})
	_, err := h.orch.FetchResult(context.Background(), " ")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = h.orch.Analyze(context.Background(), "")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}
