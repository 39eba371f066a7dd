package app

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"

	"quiz-proctor-service/internal/domain"
)

// SortField names a dashboard column.
type SortField string

const (
	SortByStudentName    SortField = "studentName"
	SortByStudentID      SortField = "studentId"
	SortByScore          SortField = "score"
	SortByCorrectAnswers SortField = "correctAnswers"
	SortByViolations     SortField = "violations"
	SortByTimestamp      SortField = "timestamp"
)

// SortDirection is asc or desc.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// ParseSort validates query parameters. Empty values default to newest first.
func ParseSort(field, dir string) (SortField, SortDirection, error) {
	f := SortField(field)
	if field == "" {
		f = SortByTimestamp
	}
	switch f {
	case SortByStudentName, SortByStudentID, SortByScore, SortByCorrectAnswers, SortByViolations, SortByTimestamp:
	default:
		return "", "", fmt.Errorf("unknown sort field %q", field)
	}

	d := SortDirection(strings.ToLower(dir))
	if dir == "" {
		d = SortDesc
	}
	if d != SortAsc && d != SortDesc {
		return "", "", fmt.Errorf("unknown sort direction %q", dir)
	}
	return f, d, nil
}

// DashboardRow is one submission joined with its student.
type DashboardRow struct {
	StudentName    string    `json:"studentName"`
	StudentID      string    `json:"studentId"`
	StudentEmail   string    `json:"studentEmail"`
	Score          int       `json:"score"`
	CorrectAnswers int       `json:"correctAnswers"`
	TotalQuestions int       `json:"totalQuestions"`
	Violations     int       `json:"violations"`
	Timestamp      time.Time `json:"timestamp"`
	Released       bool      `json:"released"`
	ScoreBand      string    `json:"scoreBand"`
	ViolationBand  string    `json:"violationBand"`
}

// Stats summarises all submissions.
type Stats struct {
	Total        int `json:"total"`
	AverageScore int `json:"averageScore"`
	Passed       int `json:"passed"`
	PassRate     int `json:"passRate"`
}

// Dashboard serves the instructor views.
type Dashboard struct {
	store Store
}

func NewDashboard(store Store) *Dashboard {
	return &Dashboard{store: store}
}

// Rows lists every submission sorted by field and direction.
func (d *Dashboard) Rows(ctx context.Context, field SortField, dir SortDirection) ([]DashboardRow, error) {
	subs, err := d.store.ListSubmissions(ctx)
	if err != nil {
		return nil, err
	}
	students, err := d.store.ListStudents(ctx)
	if err != nil {
		return nil, err
	}
	byID := lo.KeyBy(students, func(s domain.Student) string { return s.StudentID })

	rows := lo.Map(subs, func(sub domain.Submission, _ int) DashboardRow {
		student, ok := byID[sub.StudentID]
		name := student.Name
		if !ok {
			name = "Unknown"
		}
		return DashboardRow{
			StudentName:    name,
			StudentID:      sub.StudentID,
			StudentEmail:   student.Email,
			Score:          sub.Score,
			CorrectAnswers: sub.CorrectAnswers,
			TotalQuestions: sub.TotalQuestions,
			Violations:     sub.Violations,
			Timestamp:      sub.Timestamp,
			Released:       sub.Released,
			ScoreBand:      ScoreBand(sub.Score),
			ViolationBand:  ViolationBand(sub.Violations),
		}
	})
	SortRows(rows, field, dir)
	return rows, nil
}

// Stats computes the summary cards.
func (d *Dashboard) Stats(ctx context.Context) (Stats, error) {
	subs, err := d.store.ListSubmissions(ctx)
	if err != nil {
		return Stats{}, err
	}
	return ComputeStats(subs), nil
}

// ComputeStats rounds the average score and pass rate half up.
func ComputeStats(subs []domain.Submission) Stats {
	total := len(subs)
	if total == 0 {
		return Stats{}
	}
	sum := lo.SumBy(subs, func(s domain.Submission) int { return s.Score })
	passed := lo.CountBy(subs, func(s domain.Submission) bool { return s.Score >= domain.PassingScore })
	return Stats{
		Total:        total,
		AverageScore: (2*sum + total) / (2 * total),
		Passed:       passed,
		PassRate:     (200*passed + total) / (2 * total),
	}
}

// SortRows orders rows in place; text columns compare case-insensitively.
func SortRows(rows []DashboardRow, field SortField, dir SortDirection) {
	compare := func(a, b DashboardRow) int {
		switch field {
		case SortByStudentName:
			return cmp.Compare(strings.ToLower(a.StudentName), strings.ToLower(b.StudentName))
		case SortByStudentID:
			return cmp.Compare(strings.ToLower(a.StudentID), strings.ToLower(b.StudentID))
		case SortByScore:
			return cmp.Compare(a.Score, b.Score)
		case SortByCorrectAnswers:
			return cmp.Compare(a.CorrectAnswers, b.CorrectAnswers)
		case SortByViolations:
			return cmp.Compare(a.Violations, b.Violations)
		default:
			return a.Timestamp.Compare(b.Timestamp)
		}
	}
	slices.SortStableFunc(rows, func(a, b DashboardRow) int {
		if dir == SortDesc {
			return compare(b, a)
		}
		return compare(a, b)
	})
}

// ScoreBand buckets a score for display.
func ScoreBand(score int) string {
	switch {
	case score >= 90:
		return "excellent"
	case score >= 80:
		return "good"
	case score >= domain.PassingScore:
		return "pass"
	default:
		return "fail"
	}
}

// ViolationBand buckets a violation count for display.
func ViolationBand(violations int) string {
	switch {
	case violations == 0:
		return "clean"
	case violations <= 2:
		return "warning"
	default:
		return "flagged"
	}
}
