package memory

import (
	"context"
	"sort"
	"sync"

	"quiz-proctor-service/internal/app"
	"quiz-proctor-service/internal/domain"
)

// Store is an in-memory implementation of app.Store.
type Store struct {
	mu          sync.RWMutex
	students    map[string]domain.Student
	progress    map[string]domain.QuizProgress
	submissions map[string]domain.Submission
	completions map[string]domain.CompletionStatus
}

var _ app.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		students:    make(map[string]domain.Student),
		progress:    make(map[string]domain.QuizProgress),
		submissions: make(map[string]domain.Submission),
		completions: make(map[string]domain.CompletionStatus),
	}
}

func (s *Store) FindStudent(_ context.Context, studentID string) (domain.Student, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.students[studentID]
	return st, ok, nil
}

func (s *Store) CreateStudent(_ context.Context, st domain.Student) (domain.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.students[st.StudentID]; ok {
		return existing, nil
	}
	s.students[st.StudentID] = st
	return st, nil
}

func (s *Store) ListStudents(_ context.Context) ([]domain.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Student, 0, len(s.students))
	for _, st := range s.students {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegisteredAt.Before(out[j].RegisteredAt) })
	return out, nil
}

func (s *Store) GetProgress(_ context.Context, studentID string) (domain.QuizProgress, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.progress[studentID]
	if !ok {
		return domain.QuizProgress{}, false, nil
	}
	p.Answers = append([]int(nil), p.Answers...)
	return p, true, nil
}

func (s *Store) PutProgress(_ context.Context, p domain.QuizProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Answers = append([]int(nil), p.Answers...)
	s.progress[p.StudentID] = p
	return nil
}

func (s *Store) DeleteProgress(_ context.Context, studentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.progress, studentID)
	return nil
}

func (s *Store) GetSubmission(_ context.Context, studentID string) (domain.Submission, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.submissions[studentID]
	return sub, ok, nil
}

func (s *Store) CreateSubmission(_ context.Context, sub domain.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.submissions[sub.StudentID]; ok {
		return domain.ErrSubmissionExists
	}
	s.submissions[sub.StudentID] = sub
	return nil
}

func (s *Store) ListSubmissions(_ context.Context) ([]domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Submission, 0, len(s.submissions))
	for _, sub := range s.submissions {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *Store) ReleaseAll(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sub := range s.submissions {
		if sub.Released {
			continue
		}
		sub.Released = true
		s.submissions[id] = sub
		n++
	}
	return n, nil
}

func (s *Store) GetCompletion(_ context.Context, studentID string) (domain.CompletionStatus, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.completions[studentID]
	return c, ok, nil
}

func (s *Store) PutCompletion(_ context.Context, c domain.CompletionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completions[c.StudentID] = c
	return nil
}
