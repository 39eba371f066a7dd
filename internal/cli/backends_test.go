package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"quiz-proctor-service/internal/config"
	"quiz-proctor-service/internal/infra/jsonfile"
	"quiz-proctor-service/internal/infra/memory"
)

const questionsYAML = `id: quiz-1
title: Arithmetic
duration: 60
questions:
  - prompt: "2 + 2?"
    options: ["3", "4"]
    correctAnswer: 1
`

func TestBackendsFileDriver(t *testing.T) {
	dir := t.TempDir()
	content := filepath.Join(dir, "questions.yaml")
	if err := os.WriteFile(content, []byte(questionsYAML), 0o644); err != nil {
		t.Fatalf("write content: %v", err)
	}

	cfg := config.Default()
	cfg.Storage.Driver = config.DriverFile
	cfg.Storage.FilePath = filepath.Join(dir, "store.json")
	cfg.Quiz.ID = "quiz-1"
	cfg.Quiz.ContentPath = content

	res := newBackends(cfg, zerolog.Nop())
	defer res.Close()

	store, err := res.Store(context.Background())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if _, ok := store.(*jsonfile.Store); !ok {
		t.Fatalf("expected jsonfile store, got %T", store)
	}

	questions, err := res.Questions(context.Background())
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	if _, ok := questions.(*memory.QuestionSetRepository); !ok {
		t.Fatalf("expected in-memory cache, got %T", questions)
	}
	set, err := questions.GetQuestionSet(context.Background(), "quiz-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if set.Len() != 1 || set.DurationSeconds != 60 {
		t.Fatalf("unexpected set %+v", set)
	}
}

func TestBackendsRequireContentSource(t *testing.T) {
	cfg := config.Default()
	res := newBackends(cfg, zerolog.Nop())
	defer res.Close()

	if _, err := res.Questions(context.Background()); err == nil {
		t.Fatalf("expected error without content source")
	}
}

func TestBackendsUnknownDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Driver = "mongo"
	res := newBackends(cfg, zerolog.Nop())
	defer res.Close()

	if _, err := res.Store(context.Background()); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
