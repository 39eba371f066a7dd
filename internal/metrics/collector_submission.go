package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"quiz-proctor-service/internal/domain"
)

var quizSubmissionsDesc = prometheus.NewDesc(
	"quiz_submissions",
	"Number of stored submissions by release status",
	[]string{"status"},
	nil,
)

// SubmissionLister is the read side of the submission store.
type SubmissionLister interface {
	ListSubmissions(ctx context.Context) ([]domain.Submission, error)
}

type SubmissionCollector struct {
	store   SubmissionLister
	timeout time.Duration
}

func NewSubmissionCollector(store SubmissionLister) *SubmissionCollector {
	return &SubmissionCollector{store: store, timeout: 5 * time.Second}
}

func (c *SubmissionCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- quizSubmissionsDesc
}

func (c *SubmissionCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	subs, err := c.store.ListSubmissions(ctx)
	if err != nil {
		ch <- prometheus.NewInvalidMetric(quizSubmissionsDesc, err)
		return
	}
	if len(subs) == 0 {
		return
	}

	var pending, released int
	for _, s := range subs {
		if s.Released {
			released++
		} else {
			pending++
		}
	}
	ch <- prometheus.MustNewConstMetric(quizSubmissionsDesc, prometheus.GaugeValue, float64(pending), "pending")
	ch <- prometheus.MustNewConstMetric(quizSubmissionsDesc, prometheus.GaugeValue, float64(released), "released")
}

var _ prometheus.Collector = (*SubmissionCollector)(nil)
