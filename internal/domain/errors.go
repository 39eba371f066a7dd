package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrStudentNotFound is returned when a student has not registered.
	ErrStudentNotFound = errors.New("student not found")
	// ErrDuplicateAttempt blocks a second attempt by a student who already submitted.
	ErrDuplicateAttempt = errors.New("student has already taken this quiz")
	// ErrQuestionSetNotFound indicates the quiz content could not be loaded.
	ErrQuestionSetNotFound = errors.New("question set not found")
	// ErrInvalidQuestionSet indicates malformed quiz content.
	ErrInvalidQuestionSet = errors.New("invalid question set")
	// ErrQuestionOutOfRange indicates a question index outside the set.
	ErrQuestionOutOfRange = errors.New("question index out of range")
	// ErrSubmissionExists is returned by stores when a student already has a submission.
	ErrSubmissionExists = errors.New("submission already exists")
	// ErrSubmissionNotFound indicates the student has not submitted.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrResultNotReleased hides a score until the instructor releases it.
	ErrResultNotReleased = errors.New("result not released yet")
	// ErrSubmitInProgress is returned to a submit that raced an in-flight one.
	ErrSubmitInProgress = errors.New("submission already in progress")
	// ErrAttemptActive rejects a second live attempt for the same student.
	ErrAttemptActive = errors.New("student already has an attempt in progress")
	// ErrAttemptClosed is returned for operations on a torn-down attempt.
	ErrAttemptClosed = errors.New("attempt closed")
	// ErrInvalidPasscode rejects an instructor login.
	ErrInvalidPasscode = errors.New("invalid passcode")
)

// ValidationError carries field-level messages for a rejected form.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %d field(s)", len(e.Fields))
}

// SubmissionError wraps a persistence failure during submit. The attempt
// state is left intact so the caller can retry.
type SubmissionError struct {
	StudentID string
	Op        string
	Err       error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit %s: %s: %v", e.StudentID, e.Op, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}
