package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"quiz-proctor-service/internal/domain"
)

// QuizService contains the student-facing quiz use cases.
type QuizService struct {
	store     Store
	questions QuestionSetRepository
	engine    *SubmissionEngine
	quizID    string
	cfg       AttemptConfig
	now       func() time.Time
	log       zerolog.Logger

	mu     sync.Mutex
	active map[string]struct{}
}

func NewQuizService(store Store, questions QuestionSetRepository, engine *SubmissionEngine, quizID string, cfg AttemptConfig, log zerolog.Logger) *QuizService {
	return &QuizService{
		store:     store,
		questions: questions,
		engine:    engine,
		quizID:    quizID,
		cfg:       cfg,
		now:       time.Now,
		log:       log,
		active:    make(map[string]struct{}),
	}
}

// NewQuizServiceWithClock is test-only for deterministic timestamps.
func NewQuizServiceWithClock(store Store, questions QuestionSetRepository, engine *SubmissionEngine, quizID string, cfg AttemptConfig, now func() time.Time) *QuizService {
	s := NewQuizService(store, questions, engine, quizID, cfg, zerolog.Nop())
	s.now = now
	return s
}

// QuestionSet returns the configured quiz content.
func (s *QuizService) QuestionSet(ctx context.Context) (domain.QuestionSet, error) {
	return s.questions.GetQuestionSet(ctx, s.quizID)
}

// MaxViolations returns the auto-submit threshold.
func (s *QuizService) MaxViolations() int {
	return s.cfg.MaxViolations
}

// BeginAttempt admits a registered student who has not finished yet and
// restores their checkpoint. A student holds at most one live attempt until
// it is closed. The caller starts and closes the attempt.
func (s *QuizService) BeginAttempt(ctx context.Context, studentID string, hooks AttemptHooks) (attempt *Attempt, err error) {
	// Users cannot start unknown quizzes; this also warms the content cache.
	qs, err := s.QuestionSet(ctx)
	if err != nil {
		return nil, err
	}

	if _, ok, err := s.store.FindStudent(ctx, studentID); err != nil {
		return nil, err
	} else if !ok {
		return nil, domain.ErrStudentNotFound
	}
	if err := checkNotCompleted(ctx, s.store, studentID); err != nil {
		return nil, err
	}

	if !s.claim(studentID) {
		return nil, domain.ErrAttemptActive
	}
	defer func() {
		if err != nil {
			s.release(studentID)
		}
	}()

	session, err := ResumeQuizSession(ctx, studentID, qs, s.store,
		WithSessionClock(s.now),
		WithSessionLogger(s.log),
		WithSubmissionGuard(s.store),
	)
	if err != nil {
		return nil, err
	}
	attempt = NewAttempt(session, s.engine, s.cfg, hooks, s.log)
	attempt.onClose = func() { s.release(studentID) }
	return attempt, nil
}

func (s *QuizService) claim(studentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.active[studentID]; busy {
		return false
	}
	s.active[studentID] = struct{}{}
	return true
}

func (s *QuizService) release(studentID string) {
	s.mu.Lock()
	delete(s.active, studentID)
	s.mu.Unlock()
}
