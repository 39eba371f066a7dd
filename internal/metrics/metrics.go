package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SubmissionTotal tracks successful submissions by trigger (manual, violations, timeout)
	SubmissionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_submissions_total",
			Help: "Total number of quiz submissions by trigger (manual, violations, or timeout)",
		},
		[]string{"reason"},
	)

	// SubmissionFailureTotal tracks submissions that failed to persist
	SubmissionFailureTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quiz_submission_failures_total",
			Help: "Total number of quiz submissions that failed to persist",
		},
	)

	// ViolationTotal tracks accepted focus violations by signal
	ViolationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_violations_total",
			Help: "Total number of accepted focus violations by signal",
		},
		[]string{"signal"},
	)

	// ReleasedTotal tracks submissions released to students
	ReleasedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quiz_released_total",
			Help: "Total number of submissions released to students",
		},
	)

	// RegistrationTotal tracks student registrations
	RegistrationTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quiz_registrations_total",
			Help: "Total number of student registrations",
		},
	)

	// LoginTotal tracks instructor logins by outcome
	LoginTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_instructor_login_total",
			Help: "Total number of instructor login attempts by outcome",
		},
		[]string{"outcome"},
	)
)

// RecordSubmission records a submission with the given trigger
func RecordSubmission(reason string) {
	SubmissionTotal.WithLabelValues(reason).Inc()
}

// RecordSubmissionFailure records a failed submission
func RecordSubmissionFailure() {
	SubmissionFailureTotal.Inc()
}

// RecordViolation records an accepted violation
func RecordViolation(signal string) {
	ViolationTotal.WithLabelValues(signal).Inc()
}

// RecordReleased records n newly released submissions
func RecordReleased(n int) {
	if n > 0 {
		ReleasedTotal.Add(float64(n))
	}
}

// RecordRegistration records a student registration
func RecordRegistration() {
	RegistrationTotal.Inc()
}

// RecordLogin records an instructor login attempt
func RecordLogin(success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	LoginTotal.WithLabelValues(outcome).Inc()
}
