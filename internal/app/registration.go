package app

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"quiz-proctor-service/internal/domain"
	"quiz-proctor-service/internal/metrics"
	"quiz-proctor-service/internal/validator"
)

// RegistrationForm is the landing page input.
type RegistrationForm struct {
	StudentID string `json:"studentId" validate:"required,numeric"`
	Name      string `json:"name" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
}

// Registrar admits students to the quiz.
type Registrar struct {
	store Store
	now   func() time.Time
	log   zerolog.Logger
}

func NewRegistrar(store Store, log zerolog.Logger) *Registrar {
	return &Registrar{
		store: store,
		now:   time.Now,
		log:   log.With().Str("component", "registrar").Logger(),
	}
}

// Register validates the form, rejects students who already finished, and
// returns the stored student. Registering the same StudentID twice returns
// the first row.
func (r *Registrar) Register(ctx context.Context, form RegistrationForm) (domain.Student, error) {
	form.StudentID = strings.TrimSpace(form.StudentID)
	form.Name = strings.TrimSpace(form.Name)
	form.Email = strings.TrimSpace(form.Email)

	if fields := validator.Struct(form); fields != nil {
		return domain.Student{}, &domain.ValidationError{Fields: fields}
	}
	if err := r.CanStartQuiz(ctx, form.StudentID); err != nil {
		return domain.Student{}, err
	}

	student, err := r.store.CreateStudent(ctx, domain.Student{
		ID:           uuid.NewString(),
		StudentID:    form.StudentID,
		Name:         form.Name,
		Email:        form.Email,
		RegisteredAt: r.now().UTC(),
	})
	if err != nil {
		return domain.Student{}, err
	}
	metrics.RecordRegistration()
	r.log.Info().Str("student_id", student.StudentID).Msg("student registered")
	return student, nil
}

// CanStartQuiz returns domain.ErrDuplicateAttempt when the student has
// completed or submitted.
func (r *Registrar) CanStartQuiz(ctx context.Context, studentID string) error {
	return checkNotCompleted(ctx, r.store, studentID)
}

func checkNotCompleted(ctx context.Context, store Store, studentID string) error {
	status, ok, err := store.GetCompletion(ctx, studentID)
	if err != nil {
		return err
	}
	if ok && status.HasCompleted {
		return domain.ErrDuplicateAttempt
	}
	_, submitted, err := store.GetSubmission(ctx, studentID)
	if err != nil {
		return err
	}
	if submitted {
		return domain.ErrDuplicateAttempt
	}
	return nil
}
