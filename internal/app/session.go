package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"quiz-proctor-service/internal/domain"
)

// Snapshot is an immutable copy of a session.
type Snapshot struct {
	StudentID            string    `json:"studentId"`
	CurrentQuestionIndex int       `json:"currentQuestionIndex"`
	Answers              []int     `json:"answers"`
	ViolationCount       int       `json:"violationCount"`
	Answered             int       `json:"answered"`
	Unanswered           int       `json:"unanswered"`
	Total                int       `json:"total"`
	Submitting           bool      `json:"submitting"`
	LastUpdated          time.Time `json:"lastUpdated"`
}

// SessionOption configures a QuizSession.
type SessionOption func(*QuizSession)

// WithSessionClock is used by tests for deterministic timestamps.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *QuizSession) { s.now = now }
}

// WithSessionLogger attaches a logger.
func WithSessionLogger(log zerolog.Logger) SessionOption {
	return func(s *QuizSession) { s.log = log.With().Str("component", "quiz_session").Logger() }
}

// WithSubmissionGuard makes checkpoints skip students who already have a
// submission, so a stale session cannot recreate a deleted progress row.
func WithSubmissionGuard(subs SubmissionRepository) SessionOption {
	return func(s *QuizSession) { s.submissions = subs }
}

// QuizSession holds one student's in-progress answers. Every mutation writes a
// checkpoint through the ProgressRepository until BeginSubmit is called.
type QuizSession struct {
	studentID   string
	questions   domain.QuestionSet
	progress    ProgressRepository
	submissions SubmissionRepository
	now         func() time.Time
	log         zerolog.Logger

	mu         sync.Mutex
	current    int
	answers    []int
	violations int
	submitting bool
	updated    time.Time
}

// NewQuizSession starts a fresh session with every answer unset.
func NewQuizSession(studentID string, qs domain.QuestionSet, progress ProgressRepository, opts ...SessionOption) *QuizSession {
	s := &QuizSession{
		studentID: studentID,
		questions: qs,
		progress:  progress,
		now:       time.Now,
		log:       zerolog.Nop(),
		answers:   domain.EmptyAnswers(qs.Len()),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.updated = s.now()
	return s
}

// ResumeQuizSession restores the last checkpoint for studentID, or starts a
// fresh session when there is none.
func ResumeQuizSession(ctx context.Context, studentID string, qs domain.QuestionSet, progress ProgressRepository, opts ...SessionOption) (*QuizSession, error) {
	s := NewQuizSession(studentID, qs, progress, opts...)

	saved, ok, err := progress.GetProgress(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return s, nil
	}

	// Content may have changed since the checkpoint; keep the overlapping slots.
	copy(s.answers, saved.Answers)
	s.current = clampIndex(saved.CurrentQuestionIndex, qs.Len())
	if saved.ViolationCount > 0 {
		s.violations = saved.ViolationCount
	}
	if !saved.LastUpdated.IsZero() {
		s.updated = saved.LastUpdated
	}
	s.log.Info().
		Str("student_id", studentID).
		Int("question", s.current).
		Int("violations", s.violations).
		Msg("session resumed from checkpoint")
	return s, nil
}

// SelectAnswer records optionIndex for questionIndex, replacing any previous
// choice. The option index itself is not range-checked.
func (s *QuizSession) SelectAnswer(ctx context.Context, questionIndex, optionIndex int) (Snapshot, error) {
	return s.mutate(ctx, func() error {
		if !s.inRange(questionIndex) {
			return domain.ErrQuestionOutOfRange
		}
		s.answers[questionIndex] = optionIndex
		return nil
	})
}

// ClearAnswer resets one slot to unanswered.
func (s *QuizSession) ClearAnswer(ctx context.Context, questionIndex int) (Snapshot, error) {
	return s.mutate(ctx, func() error {
		if !s.inRange(questionIndex) {
			return domain.ErrQuestionOutOfRange
		}
		s.answers[questionIndex] = domain.Unanswered
		return nil
	})
}

// Navigate moves to any question.
func (s *QuizSession) Navigate(ctx context.Context, index int) (Snapshot, error) {
	return s.mutate(ctx, func() error {
		if !s.inRange(index) {
			return domain.ErrQuestionOutOfRange
		}
		s.current = index
		return nil
	})
}

// Next moves forward, staying on the last question.
func (s *QuizSession) Next(ctx context.Context) (Snapshot, error) {
	return s.mutate(ctx, func() error {
		s.current = clampIndex(s.current+1, len(s.answers))
		return nil
	})
}

// Previous moves back, staying on the first question.
func (s *QuizSession) Previous(ctx context.Context) (Snapshot, error) {
	return s.mutate(ctx, func() error {
		s.current = clampIndex(s.current-1, len(s.answers))
		return nil
	})
}

// SetViolationCount mirrors the detector count into the checkpoint.
func (s *QuizSession) SetViolationCount(ctx context.Context, n int) (Snapshot, error) {
	return s.mutate(ctx, func() error {
		if n > s.violations {
			s.violations = n
		}
		return nil
	})
}

// AnsweredCount returns the number of filled slots.
func (s *QuizSession) AnsweredCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return answeredCount(s.answers)
}

// UnansweredCount returns the number of empty slots.
func (s *QuizSession) UnansweredCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.answers) - answeredCount(s.answers)
}

// BeginSubmit stops further checkpoints and returns the state to submit.
func (s *QuizSession) BeginSubmit() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitting = true
	return s.snapshotLocked()
}

// AbortSubmit re-enables checkpoints after a failed submission.
func (s *QuizSession) AbortSubmit() {
	s.mu.Lock()
	s.submitting = false
	s.mu.Unlock()
}

// Snapshot returns a copy of the current state.
func (s *QuizSession) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// QuestionSet returns the content the session was built for.
func (s *QuizSession) QuestionSet() domain.QuestionSet {
	return s.questions
}

func (s *QuizSession) mutate(ctx context.Context, apply func() error) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := apply(); err != nil {
		return s.snapshotLocked(), err
	}
	s.updated = s.now()
	s.checkpointLocked(ctx)
	return s.snapshotLocked(), nil
}

// checkpointLocked runs under s.mu so it cannot interleave with BeginSubmit.
func (s *QuizSession) checkpointLocked(ctx context.Context) {
	if s.submitting || s.progress == nil {
		return
	}
	if s.submissions != nil {
		_, done, err := s.submissions.GetSubmission(ctx, s.studentID)
		if err != nil {
			s.log.Warn().Err(err).Str("student_id", s.studentID).Msg("checkpoint skipped, submission lookup failed")
			return
		}
		if done {
			s.log.Warn().Str("student_id", s.studentID).Msg("checkpoint skipped, student already submitted")
			return
		}
	}
	err := s.progress.PutProgress(ctx, domain.QuizProgress{
		StudentID:            s.studentID,
		CurrentQuestionIndex: s.current,
		Answers:              append([]int(nil), s.answers...),
		ViolationCount:       s.violations,
		LastUpdated:          s.updated,
	})
	if err != nil {
		s.log.Warn().Err(err).Str("student_id", s.studentID).Msg("checkpoint failed")
	}
}

func (s *QuizSession) snapshotLocked() Snapshot {
	answered := answeredCount(s.answers)
	return Snapshot{
		StudentID:            s.studentID,
		CurrentQuestionIndex: s.current,
		Answers:              append([]int(nil), s.answers...),
		ViolationCount:       s.violations,
		Answered:             answered,
		Unanswered:           len(s.answers) - answered,
		Total:                len(s.answers),
		Submitting:           s.submitting,
		LastUpdated:          s.updated,
	}
}

func (s *QuizSession) inRange(i int) bool {
	return i >= 0 && i < len(s.answers)
}

func answeredCount(answers []int) int {
	return lo.CountBy(answers, func(a int) bool { return a != domain.Unanswered })
}

func clampIndex(i, n int) int {
	if n == 0 || i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
