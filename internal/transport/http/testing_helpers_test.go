package http

import (
	"context"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"quiz-proctor-service/internal/app"
	"quiz-proctor-service/internal/auth"
	"quiz-proctor-service/internal/domain"
	"quiz-proctor-service/internal/infra/memory"
	"quiz-proctor-service/internal/validator"
)

const testPasscode = "letmein"

type testEnv struct {
	router *gin.Engine
	store  *memory.Store
	auth   *auth.Authenticator
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	validator.Setup()

	store := memory.NewStore()
	repo := memory.NewQuestionSetRepository(memory.NewStaticLoader(map[string]domain.QuestionSet{
		"quiz-1": sampleQuestionSet(),
	}), time.Minute)
	log := zerolog.Nop()
	engine := app.NewSubmissionEngine(store, log)
	quiz := app.NewQuizService(store, repo, engine, "quiz-1", app.AttemptConfig{
		MaxViolations: 3,
		Debounce:      time.Second,
		TickInterval:  time.Hour,
	}, log)
	release := app.NewReleaseService(store, log)

	authenticator, err := auth.New(testPasscode, "", "test-secret", time.Hour)
	if err != nil {
		t.Fatalf("auth: %v", err)
	}

	router := NewRouter(RouterConfig{GinMode: gin.TestMode}, Handlers{
		Student:    NewStudentHandler(quiz, app.NewRegistrar(store, log), release),
		Instructor: NewInstructorHandler(authenticator, app.NewDashboard(store), release, log),
		WS:         NewWSHandler(quiz, log, nil),
	}, RequireInstructor(authenticator))
	return testEnv{router: router, store: store, auth: authenticator}
}

func (e testEnv) registerStudent(t *testing.T, studentID, name string) {
	t.Helper()
	_, err := e.store.CreateStudent(context.Background(), domain.Student{
		ID:           "id-" + studentID,
		StudentID:    studentID,
		Name:         name,
		Email:        studentID + "@school.test",
		RegisteredAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("create student: %v", err)
	}
}

func sampleQuestionSet() domain.QuestionSet {
	return domain.QuestionSet{
		ID:              "quiz-1",
		Title:           "Arithmetic",
		DurationSeconds: 300,
		Questions: []domain.Question{
			{Prompt: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectAnswer: 1},
			{Prompt: "What is 3 * 3?", Options: []string{"6", "9"}, CorrectAnswer: 1},
		},
	}
}
