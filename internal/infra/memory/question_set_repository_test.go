package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"quiz-proctor-service/internal/domain"
)

func TestQuestionSetRepositoryCaches(t *testing.T) {
	loader := &countingLoader{
		QuestionSetLoader: NewStaticLoader(map[string]domain.QuestionSet{
			"quiz-1": sampleQuestionSet(),
		}),
	}
	repo := NewQuestionSetRepository(loader, time.Minute)

	if _, err := repo.GetQuestionSet(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get question set: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls.Load())
	}

	if _, err := repo.GetQuestionSet(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get question set 2: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls.Load())
	}
}

func TestQuestionSetRepositoryExpires(t *testing.T) {
	loader := &countingLoader{
		QuestionSetLoader: NewStaticLoader(map[string]domain.QuestionSet{"quiz-1": sampleQuestionSet()}),
	}
	repo := NewQuestionSetRepository(loader, time.Minute)
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	repo.clock = func() time.Time { return now }

	_, _ = repo.GetQuestionSet(context.Background(), "quiz-1")
	now = now.Add(2 * time.Minute)
	_, _ = repo.GetQuestionSet(context.Background(), "quiz-1")

	if loader.calls.Load() != 2 {
		t.Fatalf("expected reload after ttl, got %d calls", loader.calls.Load())
	}
}

func TestQuestionSetRepositoryCollapsesConcurrentLoads(t *testing.T) {
	release := make(chan struct{})
	loader := &countingLoader{
		QuestionSetLoader: NewStaticLoader(map[string]domain.QuestionSet{"quiz-1": sampleQuestionSet()}),
		gate:              release,
	}
	repo := NewQuestionSetRepository(loader, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.GetQuestionSet(context.Background(), "quiz-1"); err != nil {
				t.Errorf("get: %v", err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if loader.calls.Load() != 1 {
		t.Fatalf("expected one load, got %d", loader.calls.Load())
	}
}

func TestQuestionSetRepositoryRejectsInvalidContent(t *testing.T) {
	bad := sampleQuestionSet()
	bad.Questions[0].CorrectAnswer = 9
	repo := NewQuestionSetRepository(NewStaticLoader(map[string]domain.QuestionSet{"quiz-1": bad}), time.Minute)

	_, err := repo.GetQuestionSet(context.Background(), "quiz-1")
	if !errors.Is(err, domain.ErrInvalidQuestionSet) {
		t.Fatalf("expected invalid question set, got %v", err)
	}
}

func TestFileLoaderReadsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "questions.yaml")
	doc := `
title: Sample
duration: 300
questions:
  - prompt: What is 2 + 2?
    options: ["3", "4", "5"]
    correctAnswer: 1
  - prompt: Capital of France?
    options: [Paris, Rome]
    correctAnswer: 0
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	set, err := NewFileLoader(path).LoadQuestionSet(context.Background(), "default")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if set.ID != "default" || set.Len() != 2 || set.DurationSeconds != 300 {
		t.Fatalf("unexpected set: %+v", set)
	}
	if set.Questions[0].CorrectAnswer != 1 {
		t.Fatalf("expected correct answer 1, got %d", set.Questions[0].CorrectAnswer)
	}
}

func TestFileLoaderMissingFile(t *testing.T) {
	_, err := NewFileLoader(filepath.Join(t.TempDir(), "nope.yaml")).LoadQuestionSet(context.Background(), "default")
	if !errors.Is(err, domain.ErrQuestionSetNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

type countingLoader struct {
	QuestionSetLoader
	calls atomic.Int32
	gate  chan struct{}
}

func (l *countingLoader) LoadQuestionSet(ctx context.Context, id string) (domain.QuestionSet, error) {
	l.calls.Add(1)
	if l.gate != nil {
		<-l.gate
	}
	return l.QuestionSetLoader.LoadQuestionSet(ctx, id)
}

func sampleQuestionSet() domain.QuestionSet {
	return domain.QuestionSet{
		ID:              "quiz-1",
		Title:           "Arithmetic",
		DurationSeconds: 60,
		Questions: []domain.Question{
			{Prompt: "What is 2 + 2?", Options: []string{"3", "4"}, CorrectAnswer: 1},
		},
	}
}
