package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"quiz-proctor-service/internal/app"
	"quiz-proctor-service/internal/domain"
)

// OpenDB opens a bun handle over pgdriver.
func OpenDB(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

type studentModel struct {
	bun.BaseModel `bun:"table:students"`

	StudentID    string    `bun:"student_id,pk"`
	ID           string    `bun:"id,notnull"`
	Name         string    `bun:"name,notnull"`
	Email        string    `bun:"email,notnull"`
	RegisteredAt time.Time `bun:"registered_at,notnull"`
}

type progressModel struct {
	bun.BaseModel `bun:"table:quiz_progress"`

	StudentID            string    `bun:"student_id,pk"`
	CurrentQuestionIndex int       `bun:"current_question_index,notnull"`
	Answers              []int     `bun:"answers,type:jsonb,notnull"`
	ViolationCount       int       `bun:"violation_count,notnull"`
	LastUpdated          time.Time `bun:"last_updated,notnull"`
}

type submissionModel struct {
	bun.BaseModel `bun:"table:submissions"`

	StudentID      string    `bun:"student_id,pk"`
	ID             string    `bun:"id,notnull"`
	Score          int       `bun:"score,notnull"`
	Violations     int       `bun:"violations,notnull"`
	CorrectAnswers int       `bun:"correct_answers,notnull"`
	TotalQuestions int       `bun:"total_questions,notnull"`
	SubmittedAt    time.Time `bun:"submitted_at,notnull"`
	Released       bool      `bun:"released,notnull"`
}

type completionModel struct {
	bun.BaseModel `bun:"table:completion_status"`

	StudentID    string `bun:"student_id,pk"`
	HasCompleted bool   `bun:"has_completed,notnull"`
}

func (m studentModel) domain() domain.Student {
	return domain.Student{ID: m.ID, StudentID: m.StudentID, Name: m.Name, Email: m.Email, RegisteredAt: m.RegisteredAt}
}

func (m progressModel) domain() domain.QuizProgress {
	answers := m.Answers
	if answers == nil {
		answers = []int{}
	}
	return domain.QuizProgress{
		StudentID:            m.StudentID,
		CurrentQuestionIndex: m.CurrentQuestionIndex,
		Answers:              answers,
		ViolationCount:       m.ViolationCount,
		LastUpdated:          m.LastUpdated,
	}
}

func (m submissionModel) domain() domain.Submission {
	return domain.Submission{
		ID:             m.ID,
		StudentID:      m.StudentID,
		Score:          m.Score,
		Violations:     m.Violations,
		CorrectAnswers: m.CorrectAnswers,
		TotalQuestions: m.TotalQuestions,
		Timestamp:      m.SubmittedAt,
		Released:       m.Released,
	}
}

func newSubmissionModel(s domain.Submission) submissionModel {
	return submissionModel{
		StudentID:      s.StudentID,
		ID:             s.ID,
		Score:          s.Score,
		Violations:     s.Violations,
		CorrectAnswers: s.CorrectAnswers,
		TotalQuestions: s.TotalQuestions,
		SubmittedAt:    s.Timestamp,
		Released:       false,
	}
}

// Store is the bun-backed app.Store.
type Store struct {
	db *bun.DB
}

var _ app.Store = (*Store)(nil)

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) FindStudent(ctx context.Context, studentID string) (domain.Student, bool, error) {
	var m studentModel
	err := s.db.NewSelect().Model(&m).Where("student_id = ?", studentID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Student{}, false, nil
	}
	if err != nil {
		return domain.Student{}, false, err
	}
	return m.domain(), true, nil
}

func (s *Store) CreateStudent(ctx context.Context, st domain.Student) (domain.Student, error) {
	m := studentModel{StudentID: st.StudentID, ID: st.ID, Name: st.Name, Email: st.Email, RegisteredAt: st.RegisteredAt}
	res, err := s.db.NewInsert().Model(&m).On("CONFLICT (student_id) DO NOTHING").Exec(ctx)
	if err != nil {
		return domain.Student{}, err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return st, nil
	}
	existing, _, err := s.FindStudent(ctx, st.StudentID)
	return existing, err
}

func (s *Store) ListStudents(ctx context.Context) ([]domain.Student, error) {
	var rows []studentModel
	if err := s.db.NewSelect().Model(&rows).Order("registered_at ASC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]domain.Student, len(rows))
	for i, m := range rows {
		out[i] = m.domain()
	}
	return out, nil
}

func (s *Store) GetProgress(ctx context.Context, studentID string) (domain.QuizProgress, bool, error) {
	var m progressModel
	err := s.db.NewSelect().Model(&m).Where("student_id = ?", studentID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.QuizProgress{}, false, nil
	}
	if err != nil {
		return domain.QuizProgress{}, false, err
	}
	return m.domain(), true, nil
}

func (s *Store) PutProgress(ctx context.Context, p domain.QuizProgress) error {
	m := progressModel{
		StudentID:            p.StudentID,
		CurrentQuestionIndex: p.CurrentQuestionIndex,
		Answers:              p.Answers,
		ViolationCount:       p.ViolationCount,
		LastUpdated:          p.LastUpdated,
	}
	if m.Answers == nil {
		m.Answers = []int{}
	}
	_, err := s.db.NewInsert().Model(&m).
		On("CONFLICT (student_id) DO UPDATE").
		Set("current_question_index = EXCLUDED.current_question_index").
		Set("answers = EXCLUDED.answers").
		Set("violation_count = EXCLUDED.violation_count").
		Set("last_updated = EXCLUDED.last_updated").
		Exec(ctx)
	return err
}

func (s *Store) DeleteProgress(ctx context.Context, studentID string) error {
	_, err := s.db.NewDelete().Model((*progressModel)(nil)).Where("student_id = ?", studentID).Exec(ctx)
	return err
}

func (s *Store) GetSubmission(ctx context.Context, studentID string) (domain.Submission, bool, error) {
	var m submissionModel
	err := s.db.NewSelect().Model(&m).Where("student_id = ?", studentID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Submission{}, false, nil
	}
	if err != nil {
		return domain.Submission{}, false, err
	}
	return m.domain(), true, nil
}

func (s *Store) CreateSubmission(ctx context.Context, sub domain.Submission) error {
	m := newSubmissionModel(sub)
	res, err := s.db.NewInsert().Model(&m).On("CONFLICT (student_id) DO NOTHING").Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrSubmissionExists
	}
	return nil
}

func (s *Store) ListSubmissions(ctx context.Context) ([]domain.Submission, error) {
	var rows []submissionModel
	if err := s.db.NewSelect().Model(&rows).Order("submitted_at ASC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]domain.Submission, len(rows))
	for i, m := range rows {
		out[i] = m.domain()
	}
	return out, nil
}

func (s *Store) ReleaseAll(ctx context.Context) (int, error) {
	res, err := s.db.NewUpdate().
		Model((*submissionModel)(nil)).
		Set("released = TRUE").
		Where("released = FALSE").
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Store) GetCompletion(ctx context.Context, studentID string) (domain.CompletionStatus, bool, error) {
	var m completionModel
	err := s.db.NewSelect().Model(&m).Where("student_id = ?", studentID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CompletionStatus{}, false, nil
	}
	if err != nil {
		return domain.CompletionStatus{}, false, err
	}
	return domain.CompletionStatus{StudentID: m.StudentID, HasCompleted: m.HasCompleted}, true, nil
}

func (s *Store) PutCompletion(ctx context.Context, c domain.CompletionStatus) error {
	m := completionModel{StudentID: c.StudentID, HasCompleted: c.HasCompleted}
	_, err := s.db.NewInsert().Model(&m).
		On("CONFLICT (student_id) DO UPDATE").
		Set("has_completed = EXCLUDED.has_completed").
		Exec(ctx)
	return err
}
