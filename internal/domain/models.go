package domain

import (
	"fmt"
	"time"
)

// Unanswered marks an answer slot the student has not filled.
const Unanswered = -1

// PassingScore is the minimum score counted as a pass on the dashboard.
const PassingScore = 70

// Student is created once at registration and never modified afterwards.
type Student struct {
	ID           string    `json:"id"`
	StudentID    string    `json:"studentId"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// QuizProgress is the resume checkpoint for an in-progress attempt.
// There is at most one per student; it is overwritten on every change.
type QuizProgress struct {
	StudentID            string    `json:"studentId"`
	CurrentQuestionIndex int       `json:"currentQuestionIndex"`
	Answers              []int     `json:"answers"`
	ViolationCount       int       `json:"violationCount"`
	LastUpdated          time.Time `json:"lastUpdated"`
}

// Submission is the scored, write-once record of a finished attempt.
// Only Released may change after creation.
type Submission struct {
	ID             string    `json:"id"`
	StudentID      string    `json:"studentId"`
	Score          int       `json:"score"`
	Violations     int       `json:"violations"`
	CorrectAnswers int       `json:"correctAnswers"`
	TotalQuestions int       `json:"totalQuestions"`
	Timestamp      time.Time `json:"timestamp"`
	Released       bool      `json:"released"`
}

// CompletionStatus gates a second attempt.
type CompletionStatus struct {
	StudentID    string `json:"studentId"`
	HasCompleted bool   `json:"hasCompleted"`
}

// Question models an MCQ question with exactly one correct option.
type Question struct {
	Prompt        string   `json:"prompt" yaml:"prompt"`
	Options       []string `json:"options" yaml:"options"`
	CorrectAnswer int      `json:"correctAnswer" yaml:"correctAnswer"`
}

// QuestionSet is the read-only quiz content plus its duration.
type QuestionSet struct {
	ID              string     `json:"id" yaml:"id"`
	Title           string     `json:"title" yaml:"title"`
	DurationSeconds int        `json:"duration" yaml:"duration"`
	Questions       []Question `json:"questions" yaml:"questions"`
}

// Len returns the number of questions.
func (qs QuestionSet) Len() int {
	return len(qs.Questions)
}

// Validate checks the content is usable for an attempt.
func (qs QuestionSet) Validate() error {
	if len(qs.Questions) == 0 {
		return fmt.Errorf("%w: no questions", ErrInvalidQuestionSet)
	}
	if qs.DurationSeconds <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrInvalidQuestionSet)
	}
	for i, q := range qs.Questions {
		if len(q.Options) < 2 {
			return fmt.Errorf("%w: question %d needs at least two options", ErrInvalidQuestionSet, i+1)
		}
		if q.CorrectAnswer < 0 || q.CorrectAnswer >= len(q.Options) {
			return fmt.Errorf("%w: question %d correct answer out of range", ErrInvalidQuestionSet, i+1)
		}
	}
	return nil
}

// PublicQuestion is a question without its answer key.
type PublicQuestion struct {
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
}

// PublicQuestionSet is what students are allowed to see.
type PublicQuestionSet struct {
	ID              string           `json:"id"`
	Title           string           `json:"title"`
	DurationSeconds int              `json:"duration"`
	Questions       []PublicQuestion `json:"questions"`
}

// Public strips correct answers.
func (qs QuestionSet) Public() PublicQuestionSet {
	out := PublicQuestionSet{
		ID:              qs.ID,
		Title:           qs.Title,
		DurationSeconds: qs.DurationSeconds,
		Questions:       make([]PublicQuestion, 0, len(qs.Questions)),
	}
	for _, q := range qs.Questions {
		opts := make([]string, len(q.Options))
		copy(opts, q.Options)
		out.Questions = append(out.Questions, PublicQuestion{Prompt: q.Prompt, Options: opts})
	}
	return out
}

// EmptyAnswers returns n unanswered slots.
func EmptyAnswers(n int) []int {
	answers := make([]int, n)
	for i := range answers {
		answers[i] = Unanswered
	}
	return answers
}
