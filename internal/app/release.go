package app

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"quiz-proctor-service/internal/domain"
	"quiz-proctor-service/internal/metrics"
)

// ReleaseService controls when students may see their scores.
type ReleaseService struct {
	submissions SubmissionRepository
	log         zerolog.Logger
}

func NewReleaseService(submissions SubmissionRepository, log zerolog.Logger) *ReleaseService {
	return &ReleaseService{
		submissions: submissions,
		log:         log.With().Str("component", "release").Logger(),
	}
}

// ReleaseAll publishes every pending submission. Calling it again with
// nothing pending changes nothing and returns 0.
func (s *ReleaseService) ReleaseAll(ctx context.Context) (int, error) {
	n, err := s.submissions.ReleaseAll(ctx)
	if err != nil {
		return 0, err
	}
	metrics.RecordReleased(n)
	s.log.Info().Int("released", n).Msg("scores released")
	return n, nil
}

// AreReleased reports whether any submission has been released.
func (s *ReleaseService) AreReleased(ctx context.Context) (bool, error) {
	subs, err := s.submissions.ListSubmissions(ctx)
	if err != nil {
		return false, err
	}
	return lo.SomeBy(subs, func(sub domain.Submission) bool { return sub.Released }), nil
}

// StudentResult returns a submission only once it has been released.
func (s *ReleaseService) StudentResult(ctx context.Context, studentID string) (domain.Submission, error) {
	sub, ok, err := s.submissions.GetSubmission(ctx, studentID)
	if err != nil {
		return domain.Submission{}, err
	}
	if !ok {
		return domain.Submission{}, domain.ErrSubmissionNotFound
	}
	if !sub.Released {
		return domain.Submission{}, domain.ErrResultNotReleased
	}
	return sub, nil
}
