package app

import (
	"context"

	"quiz-proctor-service/internal/domain"
)

// StudentRepository persists registered students keyed by StudentID.
type StudentRepository interface {
	FindStudent(ctx context.Context, studentID string) (domain.Student, bool, error)
	// CreateStudent stores s unless the StudentID already exists, in which
	// case the stored row is returned unchanged.
	CreateStudent(ctx context.Context, s domain.Student) (domain.Student, error)
	ListStudents(ctx context.Context) ([]domain.Student, error)
}

// ProgressRepository holds at most one resume checkpoint per student.
type ProgressRepository interface {
	GetProgress(ctx context.Context, studentID string) (domain.QuizProgress, bool, error)
	PutProgress(ctx context.Context, p domain.QuizProgress) error
	DeleteProgress(ctx context.Context, studentID string) error
}

// SubmissionRepository stores write-once submissions.
type SubmissionRepository interface {
	GetSubmission(ctx context.Context, studentID string) (domain.Submission, bool, error)
	// CreateSubmission returns domain.ErrSubmissionExists if the student
	// already has one.
	CreateSubmission(ctx context.Context, s domain.Submission) error
	ListSubmissions(ctx context.Context) ([]domain.Submission, error)
	// ReleaseAll marks every pending submission released and returns how many
	// changed.
	ReleaseAll(ctx context.Context) (int, error)
}

// CompletionRepository tracks which students have finished.
type CompletionRepository interface {
	GetCompletion(ctx context.Context, studentID string) (domain.CompletionStatus, bool, error)
	PutCompletion(ctx context.Context, c domain.CompletionStatus) error
}

// Store is the full persistence port; backends implement all of it.
type Store interface {
	StudentRepository
	ProgressRepository
	SubmissionRepository
	CompletionRepository
}

// QuestionSetRepository loads quiz content (from cache/backing store).
type QuestionSetRepository interface {
	GetQuestionSet(ctx context.Context, id string) (domain.QuestionSet, error)
}
