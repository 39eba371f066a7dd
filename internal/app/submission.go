package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"quiz-proctor-service/internal/domain"
)

// SubmitResult is what a student sees after submitting.
type SubmitResult struct {
	Submission       domain.Submission `json:"submission"`
	Score            int               `json:"score"`
	CorrectCount     int               `json:"correctCount"`
	AlreadySubmitted bool              `json:"alreadySubmitted"`
}

// SubmissionEngine scores answers and persists the write-once submission.
type SubmissionEngine struct {
	store Store
	now   func() time.Time
	newID func() string
	log   zerolog.Logger
	sf    singleflight.Group
}

func NewSubmissionEngine(store Store, log zerolog.Logger) *SubmissionEngine {
	return &SubmissionEngine{
		store: store,
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
		log:   log.With().Str("component", "submission_engine").Logger(),
	}
}

// NewSubmissionEngineWithClock is test-only for deterministic timestamps.
func NewSubmissionEngineWithClock(store Store, now func() time.Time) *SubmissionEngine {
	e := NewSubmissionEngine(store, zerolog.Nop())
	e.now = now
	return e
}

// Score counts exact matches and converts them to a 0..100 percentage,
// rounding half up. An empty question list scores 0.
func Score(answers []int, questions []domain.Question) (score, correct int) {
	total := len(questions)
	if total == 0 {
		return 0, 0
	}
	for i, q := range questions {
		if i < len(answers) && answers[i] == q.CorrectAnswer {
			correct++
		}
	}
	score = (200*correct + total) / (2 * total)
	return score, correct
}

// Submit scores and stores an attempt. A student who already has a
// submission gets the stored result back with AlreadySubmitted set.
// Concurrent calls for the same student share one execution.
func (e *SubmissionEngine) Submit(ctx context.Context, studentID string, answers []int, violations int, qs domain.QuestionSet) (SubmitResult, error) {
	v, err, _ := e.sf.Do(studentID, func() (interface{}, error) {
		return e.submit(ctx, studentID, answers, violations, qs)
	})
	if err != nil {
		return SubmitResult{}, err
	}
	return v.(SubmitResult), nil
}

func (e *SubmissionEngine) submit(ctx context.Context, studentID string, answers []int, violations int, qs domain.QuestionSet) (SubmitResult, error) {
	existing, ok, err := e.store.GetSubmission(ctx, studentID)
	if err != nil {
		return SubmitResult{}, &domain.SubmissionError{StudentID: studentID, Op: "lookup submission", Err: err}
	}
	if ok {
		return e.alreadySubmitted(ctx, existing), nil
	}

	score, correct := Score(answers, qs.Questions)
	sub := domain.Submission{
		ID:             e.newID(),
		StudentID:      studentID,
		Score:          score,
		Violations:     violations,
		CorrectAnswers: correct,
		TotalQuestions: qs.Len(),
		Timestamp:      e.now().UTC(),
		Released:       false,
	}

	if err := e.store.CreateSubmission(ctx, sub); err != nil {
		if !errors.Is(err, domain.ErrSubmissionExists) {
			return SubmitResult{}, &domain.SubmissionError{StudentID: studentID, Op: "create submission", Err: err}
		}
		// Lost a race with another writer; the stored row wins.
		existing, ok, err := e.store.GetSubmission(ctx, studentID)
		if err != nil || !ok {
			if err == nil {
				err = domain.ErrSubmissionNotFound
			}
			return SubmitResult{}, &domain.SubmissionError{StudentID: studentID, Op: "lookup submission", Err: err}
		}
		return e.alreadySubmitted(ctx, existing), nil
	}

	if err := e.store.PutCompletion(ctx, domain.CompletionStatus{StudentID: studentID, HasCompleted: true}); err != nil {
		return SubmitResult{}, &domain.SubmissionError{StudentID: studentID, Op: "mark completed", Err: err}
	}
	if err := e.store.DeleteProgress(ctx, studentID); err != nil {
		return SubmitResult{}, &domain.SubmissionError{StudentID: studentID, Op: "clear progress", Err: err}
	}

	e.log.Info().
		Str("student_id", studentID).
		Int("score", score).
		Int("correct", correct).
		Int("total", sub.TotalQuestions).
		Int("violations", violations).
		Msg("submission stored")

	return SubmitResult{Submission: sub, Score: score, CorrectCount: correct}, nil
}

func (e *SubmissionEngine) alreadySubmitted(ctx context.Context, existing domain.Submission) SubmitResult {
	e.repair(ctx, existing.StudentID)
	return SubmitResult{
		Submission:       existing,
		Score:            existing.Score,
		CorrectCount:     existing.CorrectAnswers,
		AlreadySubmitted: true,
	}
}

// repair finishes the completion and progress steps of an earlier submit
// that stopped part way.
func (e *SubmissionEngine) repair(ctx context.Context, studentID string) {
	if err := e.store.PutCompletion(ctx, domain.CompletionStatus{StudentID: studentID, HasCompleted: true}); err != nil {
		e.log.Warn().Err(err).Str("student_id", studentID).Msg("repair completion failed")
	}
	if err := e.store.DeleteProgress(ctx, studentID); err != nil {
		e.log.Warn().Err(err).Str("student_id", studentID).Msg("repair progress failed")
	}
}
