package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-proctor-service/internal/app"
	"quiz-proctor-service/internal/domain"
	"quiz-proctor-service/internal/infra/memory"
)

func TestScore(t *testing.T) {
	questions := sampleQuestionSet().Questions

	cases := []struct {
		name        string
		answers     []int
		wantScore   int
		wantCorrect int
	}{
		{"all correct", []int{1, 1, 2, 0}, 100, 4},
		{"none answered", []int{-1, -1, -1, -1}, 0, 0},
		{"three of four", []int{1, 1, 2, 1}, 75, 3},
		{"short answer slice", []int{1}, 25, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			score, correct := app.Score(tc.answers, questions)
			assert.Equal(t, tc.wantScore, score)
			assert.Equal(t, tc.wantCorrect, correct)
		})
	}
}

func TestScoreRoundsHalfUp(t *testing.T) {
	questions := make([]domain.Question, 3)
	for i := range questions {
		questions[i] = domain.Question{Options: []string{"a", "b"}, CorrectAnswer: 0}
	}
	// 1/3 = 33.3 -> 33, 2/3 = 66.7 -> 67
	score, _ := app.Score([]int{0, 1, 1}, questions)
	assert.Equal(t, 33, score)
	score, _ = app.Score([]int{0, 0, 1}, questions)
	assert.Equal(t, 67, score)

	eight := make([]domain.Question, 8)
	for i := range eight {
		eight[i] = domain.Question{Options: []string{"a", "b"}, CorrectAnswer: 0}
	}
	// 5/8 = 62.5 -> 63
	score, _ = app.Score([]int{0, 0, 0, 0, 0, 1, 1, 1}, eight)
	assert.Equal(t, 63, score)
}

func TestScoreEmptySet(t *testing.T) {
	score, correct := app.Score(nil, nil)
	assert.Zero(t, score)
	assert.Zero(t, correct)
}

func TestSubmitStoresAndClearsProgress(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	engine := app.NewSubmissionEngineWithClock(store, fixedClock)
	require.NoError(t, store.PutProgress(ctx, domain.QuizProgress{StudentID: "1001", Answers: []int{1, 1, 2, 0}}))

	res, err := engine.Submit(ctx, "1001", []int{1, 1, 2, 0}, 1, sampleQuestionSet())
	require.NoError(t, err)
	assert.False(t, res.AlreadySubmitted)
	assert.Equal(t, 100, res.Score)
	assert.Equal(t, 4, res.CorrectCount)
	assert.Equal(t, 4, res.Submission.TotalQuestions)
	assert.Equal(t, 1, res.Submission.Violations)
	assert.False(t, res.Submission.Released)
	assert.Equal(t, baseTime, res.Submission.Timestamp)

	status, ok, _ := store.GetCompletion(ctx, "1001")
	assert.True(t, ok && status.HasCompleted)
	_, ok, _ = store.GetProgress(ctx, "1001")
	assert.False(t, ok)
}

func TestDoubleSubmitReturnsFirstResult(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	engine := app.NewSubmissionEngineWithClock(store, fixedClock)

	first, err := engine.Submit(ctx, "1001", []int{1, 1, -1, -1}, 0, sampleQuestionSet())
	require.NoError(t, err)
	second, err := engine.Submit(ctx, "1001", []int{1, 1, 2, 0}, 3, sampleQuestionSet())
	require.NoError(t, err)

	assert.True(t, second.AlreadySubmitted)
	assert.Equal(t, first.Submission, second.Submission)
	assert.Equal(t, 50, second.Score)

	subs, _ := store.ListSubmissions(ctx)
	assert.Len(t, subs, 1)
}

func TestConcurrentSubmitsStoreOneRow(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	gate := make(chan struct{})
	store.set(func(s *flakyStore) { s.createGate = gate })
	engine := app.NewSubmissionEngineWithClock(store, fixedClock)

	var wg sync.WaitGroup
	results := make([]app.SubmitResult, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := engine.Submit(ctx, "1001", []int{1, 1, 2, 0}, 0, sampleQuestionSet())
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	require.Eventually(t, func() bool { return store.creates() > 0 }, time.Second, time.Millisecond)
	close(gate)
	wg.Wait()

	subs, _ := store.ListSubmissions(ctx)
	require.Len(t, subs, 1)
	for _, res := range results {
		assert.Equal(t, subs[0].ID, res.Submission.ID)
	}
}

func TestSubmitLostRaceReturnsStoredRow(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()

	winner := domain.Submission{ID: "winner", StudentID: "1001", Score: 40, CorrectAnswers: 2, TotalQuestions: 5}
	require.NoError(t, store.Store.CreateSubmission(ctx, winner))
	// hide the row from the first lookup by simulating a concurrent writer
	racing := &racingStore{flakyStore: store, hideFirstLookup: true}
	engine := app.NewSubmissionEngineWithClock(racing, fixedClock)

	res, err := engine.Submit(ctx, "1001", []int{1, 1, 2, 0}, 0, sampleQuestionSet())
	require.NoError(t, err)
	assert.True(t, res.AlreadySubmitted)
	assert.Equal(t, "winner", res.Submission.ID)
	assert.Equal(t, 40, res.Score)
}

func TestSubmitFailureIsTyped(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	store.set(func(s *flakyStore) { s.failCreate = errDiskFull })
	engine := app.NewSubmissionEngineWithClock(store, fixedClock)

	_, err := engine.Submit(ctx, "1001", []int{1, 1, 2, 0}, 0, sampleQuestionSet())
	require.Error(t, err)

	var subErr *domain.SubmissionError
	require.True(t, errors.As(err, &subErr))
	assert.Equal(t, "1001", subErr.StudentID)
	assert.Equal(t, "create submission", subErr.Op)
	assert.ErrorIs(t, err, errDiskFull)

	_, ok, _ := store.GetCompletion(ctx, "1001")
	assert.False(t, ok)
}

func TestSubmitRepairsPartialWrite(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	store.set(func(s *flakyStore) { s.failCompletion = errDiskFull })
	require.NoError(t, store.PutProgress(ctx, domain.QuizProgress{StudentID: "1001"}))
	engine := app.NewSubmissionEngineWithClock(store, fixedClock)

	_, err := engine.Submit(ctx, "1001", []int{1, 1, 2, 0}, 0, sampleQuestionSet())
	require.Error(t, err)

	store.set(func(s *flakyStore) { s.failCompletion = nil })
	res, err := engine.Submit(ctx, "1001", []int{1, 1, 2, 0}, 0, sampleQuestionSet())
	require.NoError(t, err)
	assert.True(t, res.AlreadySubmitted)

	status, ok, _ := store.GetCompletion(ctx, "1001")
	assert.True(t, ok && status.HasCompleted)
	_, ok, _ = store.GetProgress(ctx, "1001")
	assert.False(t, ok)
}

// racingStore pretends the submission is missing on the first lookup.
type racingStore struct {
	*flakyStore
	hideFirstLookup bool
}

func (s *racingStore) GetSubmission(ctx context.Context, studentID string) (domain.Submission, bool, error) {
	if s.hideFirstLookup {
		s.hideFirstLookup = false
		return domain.Submission{}, false, nil
	}
	return s.flakyStore.GetSubmission(ctx, studentID)
}
