package app_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-proctor-service/internal/app"
	"quiz-proctor-service/internal/domain"
	"quiz-proctor-service/internal/infra/memory"
	"quiz-proctor-service/internal/proctor"
)

type steppedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *steppedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestAttempt(t *testing.T, store app.Store, cfg app.AttemptConfig, hooks app.AttemptHooks) *app.Attempt {
	t.Helper()
	session, err := app.ResumeQuizSession(context.Background(), "1001", sampleQuestionSet(), store)
	require.NoError(t, err)
	engine := app.NewSubmissionEngineWithClock(store, fixedClock)
	a := app.NewAttempt(session, engine, cfg, hooks, zerolog.Nop())
	t.Cleanup(a.Close)
	return a
}

func TestManualSubmitStoresOutcome(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	var submitted []app.SubmitOutcome
	a := newTestAttempt(t, store, testAttemptConfig(), app.AttemptHooks{
		OnSubmitted: func(o app.SubmitOutcome) { submitted = append(submitted, o) },
	})
	a.Start(ctx)

	_, err := a.SelectAnswer(ctx, 0, 1)
	require.NoError(t, err)
	_, err = a.SelectAnswer(ctx, 1, 1)
	require.NoError(t, err)

	outcome, err := a.Submit(ctx, app.ReasonManual)
	require.NoError(t, err)
	assert.Equal(t, app.ReasonManual, outcome.Reason)
	assert.Equal(t, 50, outcome.Result.Score)

	again, err := a.Submit(ctx, app.ReasonTimeout)
	require.NoError(t, err)
	assert.Equal(t, outcome, again)
	assert.Len(t, submitted, 1)

	_, err = a.SelectAnswer(ctx, 2, 2)
	assert.ErrorIs(t, err, domain.ErrAttemptClosed)
	assert.True(t, a.State().Submitted)
}

func TestViolationThresholdAutoSubmits(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	clock := &steppedClock{now: baseTime}
	cfg := testAttemptConfig()
	cfg.Clock = clock.Now

	var violations []int
	var outcome app.SubmitOutcome
	a := newTestAttempt(t, store, cfg, app.AttemptHooks{
		OnViolation: func(s proctor.State) { violations = append(violations, s.Count) },
		OnSubmitted: func(o app.SubmitOutcome) { outcome = o },
	})
	a.Start(ctx)

	for i := 0; i < 3; i++ {
		accepted, err := a.Signal(proctor.SignalWindowBlur)
		require.NoError(t, err)
		require.True(t, accepted)
		clock.Advance(1100 * time.Millisecond)
	}

	assert.Equal(t, []int{1, 2, 3}, violations)
	assert.Equal(t, app.ReasonViolations, outcome.Reason)
	assert.Equal(t, 3, outcome.Result.Submission.Violations)

	_, err := a.Signal(proctor.SignalWindowBlur)
	assert.ErrorIs(t, err, domain.ErrAttemptClosed)

	subs, _ := store.ListSubmissions(ctx)
	assert.Len(t, subs, 1)
}

func TestDebouncedSignalsDoNotSubmit(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	clock := &steppedClock{now: baseTime}
	cfg := testAttemptConfig()
	cfg.Clock = clock.Now
	a := newTestAttempt(t, store, cfg, app.AttemptHooks{})
	a.Start(ctx)

	_, _ = a.Signal(proctor.SignalVisibilityHidden)
	clock.Advance(200 * time.Millisecond)
	_, _ = a.Signal(proctor.SignalWindowBlur)
	clock.Advance(1300 * time.Millisecond)
	_, _ = a.Signal(proctor.SignalWindowBlur)

	state := a.State()
	assert.Equal(t, 2, state.Violations.Count)
	assert.False(t, state.Submitted)
	assert.Equal(t, 2, state.Session.ViolationCount)

	p, ok, _ := store.GetProgress(ctx, "1001")
	require.True(t, ok)
	assert.Equal(t, 2, p.ViolationCount)
}

func TestTimeoutAutoSubmits(t *testing.T) {
	store := memory.NewStore()
	cfg := testAttemptConfig()
	cfg.TickInterval = time.Millisecond

	done := make(chan app.SubmitOutcome, 1)
	var ticks atomic.Int32
	session, err := app.ResumeQuizSession(context.Background(), "1001", domain.QuestionSet{
		ID:              "short",
		DurationSeconds: 3,
		Questions:       sampleQuestionSet().Questions,
	}, store)
	require.NoError(t, err)
	a := app.NewAttempt(session, app.NewSubmissionEngineWithClock(store, fixedClock), cfg, app.AttemptHooks{
		OnTick:      func(int) { ticks.Add(1) },
		OnSubmitted: func(o app.SubmitOutcome) { done <- o },
	}, zerolog.Nop())
	defer a.Close()
	a.Start(context.Background())

	select {
	case outcome := <-done:
		assert.Equal(t, app.ReasonTimeout, outcome.Reason)
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout did not submit")
	}
	assert.Equal(t, int32(3), ticks.Load())
	assert.Equal(t, 0, a.State().Remaining)
}

func TestResumedAtThresholdSubmitsOnStart(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.PutProgress(ctx, domain.QuizProgress{
		StudentID:      "1001",
		Answers:        []int{1, 1, 2, 0},
		ViolationCount: 3,
	}))

	a := newTestAttempt(t, store, testAttemptConfig(), app.AttemptHooks{})
	a.Start(ctx)

	outcome, ok := a.Outcome()
	require.True(t, ok)
	assert.Equal(t, app.ReasonViolations, outcome.Reason)
	assert.Equal(t, 100, outcome.Result.Score)
}

func TestSubmitInProgressIsRejected(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	gate := make(chan struct{})
	store.set(func(s *flakyStore) { s.createGate = gate })
	a := newTestAttempt(t, store, testAttemptConfig(), app.AttemptHooks{})
	a.Start(ctx)

	first := make(chan error, 1)
	go func() {
		_, err := a.Submit(ctx, app.ReasonManual)
		first <- err
	}()
	require.Eventually(t, func() bool { return store.creates() > 0 }, time.Second, time.Millisecond)

	_, err := a.Submit(ctx, app.ReasonTimeout)
	assert.ErrorIs(t, err, domain.ErrSubmitInProgress)

	close(gate)
	require.NoError(t, <-first)
	outcome, ok := a.Outcome()
	require.True(t, ok)
	assert.Equal(t, app.ReasonManual, outcome.Reason)
}

func TestFailedSubmitCanRetry(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	store.set(func(s *flakyStore) { s.failCreate = errDiskFull })
	var failures atomic.Int32
	a := newTestAttempt(t, store, testAttemptConfig(), app.AttemptHooks{
		OnSubmitFailed: func(app.SubmitReason, error) { failures.Add(1) },
	})
	a.Start(ctx)
	_, _ = a.SelectAnswer(ctx, 0, 1)

	_, err := a.Submit(ctx, app.ReasonManual)
	require.ErrorIs(t, err, errDiskFull)
	assert.Equal(t, int32(1), failures.Load())

	// the session keeps accepting answers and checkpoints
	writes := store.progressWrites()
	_, err = a.SelectAnswer(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, writes+1, store.progressWrites())

	store.set(func(s *flakyStore) { s.failCreate = nil })
	outcome, err := a.Submit(ctx, app.ReasonManual)
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Result.CorrectCount)
}

func TestClosedAttemptIgnoresCallbacks(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	a := newTestAttempt(t, store, testAttemptConfig(), app.AttemptHooks{})
	a.Start(ctx)
	a.Close()

	_, err := a.Signal(proctor.SignalWindowBlur)
	assert.ErrorIs(t, err, domain.ErrAttemptClosed)
	_, err = a.Submit(ctx, app.ReasonManual)
	assert.ErrorIs(t, err, domain.ErrAttemptClosed)

	subs, _ := store.ListSubmissions(ctx)
	assert.Empty(t, subs)
}
