// Package jsonfile persists the quiz tables in a single JSON document on
// local disk.
package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"quiz-proctor-service/internal/app"
	"quiz-proctor-service/internal/domain"
)

// document is the on-disk layout, one map per table keyed by StudentID.
type document struct {
	Students    map[string]domain.Student          `json:"students"`
	Progress    map[string]domain.QuizProgress     `json:"quizProgress"`
	Submissions map[string]domain.Submission       `json:"submissions"`
	Completions map[string]domain.CompletionStatus `json:"completionStatus"`
}

func emptyDocument() document {
	return document{
		Students:    make(map[string]domain.Student),
		Progress:    make(map[string]domain.QuizProgress),
		Submissions: make(map[string]domain.Submission),
		Completions: make(map[string]domain.CompletionStatus),
	}
}

// Store reads and rewrites the whole document under one mutex.
type Store struct {
	filename string
	mu       sync.Mutex
}

var _ app.Store = (*Store)(nil)

// NewStore creates the file (and its directory) when missing.
func NewStore(filename string) (*Store, error) {
	if dir := filepath.Dir(filename); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	s := &Store{filename: filename}
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		if err := s.save(emptyDocument()); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) load() (document, error) {
	data, err := os.ReadFile(s.filename)
	if err != nil {
		return document{}, fmt.Errorf("read %s: %w", s.filename, err)
	}
	doc := emptyDocument()
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return document{}, fmt.Errorf("parse %s: %w", s.filename, err)
	}
	// tables missing from an older file
	if doc.Students == nil {
		doc.Students = make(map[string]domain.Student)
	}
	if doc.Progress == nil {
		doc.Progress = make(map[string]domain.QuizProgress)
	}
	if doc.Submissions == nil {
		doc.Submissions = make(map[string]domain.Submission)
	}
	if doc.Completions == nil {
		doc.Completions = make(map[string]domain.CompletionStatus)
	}
	return doc, nil
}

// save writes through a temp file so a crash never leaves a torn document.
func (s *Store) save(doc document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}
	tmp := s.filename + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.filename); err != nil {
		return fmt.Errorf("replace %s: %w", s.filename, err)
	}
	return nil
}

func (s *Store) read(fn func(doc document)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	fn(doc)
	return nil
}

// update applies fn and saves when it reports a change.
func (s *Store) update(fn func(doc document) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	changed, err := fn(doc)
	if err != nil || !changed {
		return err
	}
	return s.save(doc)
}

func (s *Store) FindStudent(_ context.Context, studentID string) (domain.Student, bool, error) {
	var st domain.Student
	var ok bool
	err := s.read(func(doc document) { st, ok = doc.Students[studentID] })
	return st, ok, err
}

func (s *Store) CreateStudent(_ context.Context, st domain.Student) (domain.Student, error) {
	out := st
	err := s.update(func(doc document) (bool, error) {
		if existing, ok := doc.Students[st.StudentID]; ok {
			out = existing
			return false, nil
		}
		doc.Students[st.StudentID] = st
		return true, nil
	})
	return out, err
}

func (s *Store) ListStudents(_ context.Context) ([]domain.Student, error) {
	var out []domain.Student
	err := s.read(func(doc document) {
		out = make([]domain.Student, 0, len(doc.Students))
		for _, st := range doc.Students {
			out = append(out, st)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].RegisteredAt.Before(out[j].RegisteredAt) })
	return out, err
}

func (s *Store) GetProgress(_ context.Context, studentID string) (domain.QuizProgress, bool, error) {
	var p domain.QuizProgress
	var ok bool
	err := s.read(func(doc document) { p, ok = doc.Progress[studentID] })
	return p, ok, err
}

func (s *Store) PutProgress(_ context.Context, p domain.QuizProgress) error {
	return s.update(func(doc document) (bool, error) {
		doc.Progress[p.StudentID] = p
		return true, nil
	})
}

func (s *Store) DeleteProgress(_ context.Context, studentID string) error {
	return s.update(func(doc document) (bool, error) {
		if _, ok := doc.Progress[studentID]; !ok {
			return false, nil
		}
		delete(doc.Progress, studentID)
		return true, nil
	})
}

func (s *Store) GetSubmission(_ context.Context, studentID string) (domain.Submission, bool, error) {
	var sub domain.Submission
	var ok bool
	err := s.read(func(doc document) { sub, ok = doc.Submissions[studentID] })
	return sub, ok, err
}

func (s *Store) CreateSubmission(_ context.Context, sub domain.Submission) error {
	return s.update(func(doc document) (bool, error) {
		if _, ok := doc.Submissions[sub.StudentID]; ok {
			return false, domain.ErrSubmissionExists
		}
		doc.Submissions[sub.StudentID] = sub
		return true, nil
	})
}

func (s *Store) ListSubmissions(_ context.Context) ([]domain.Submission, error) {
	var out []domain.Submission
	err := s.read(func(doc document) {
		out = make([]domain.Submission, 0, len(doc.Submissions))
		for _, sub := range doc.Submissions {
			out = append(out, sub)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, err
}

func (s *Store) ReleaseAll(_ context.Context) (int, error) {
	n := 0
	err := s.update(func(doc document) (bool, error) {
		for id, sub := range doc.Submissions {
			if sub.Released {
				continue
			}
			sub.Released = true
			doc.Submissions[id] = sub
			n++
		}
		return n > 0, nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) GetCompletion(_ context.Context, studentID string) (domain.CompletionStatus, bool, error) {
	var c domain.CompletionStatus
	var ok bool
	err := s.read(func(doc document) { c, ok = doc.Completions[studentID] })
	return c, ok, err
}

func (s *Store) PutCompletion(_ context.Context, c domain.CompletionStatus) error {
	return s.update(func(doc document) (bool, error) {
		doc.Completions[c.StudentID] = c
		return true, nil
	})
}
