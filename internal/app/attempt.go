package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"quiz-proctor-service/internal/countdown"
	"quiz-proctor-service/internal/domain"
	"quiz-proctor-service/internal/metrics"
	"quiz-proctor-service/internal/proctor"
)

// SubmitReason records what ended an attempt.
type SubmitReason string

const (
	ReasonManual     SubmitReason = "manual"
	ReasonViolations SubmitReason = "violations"
	ReasonTimeout    SubmitReason = "timeout"
)

// SubmitOutcome is the stored result of a finished attempt.
type SubmitOutcome struct {
	Reason SubmitReason `json:"reason"`
	Result SubmitResult `json:"result"`
}

// AttemptHooks receive attempt events. Nil hooks are skipped.
type AttemptHooks struct {
	OnTick         func(remaining int)
	OnViolation    func(state proctor.State)
	OnSubmitted    func(outcome SubmitOutcome)
	OnSubmitFailed func(reason SubmitReason, err error)
}

// AttemptConfig carries the proctoring settings.
type AttemptConfig struct {
	MaxViolations int
	Debounce      time.Duration
	TickInterval  time.Duration
	Clock         func() time.Time
}

// AttemptState is the full view pushed to the client.
type AttemptState struct {
	Session    Snapshot      `json:"session"`
	Violations proctor.State `json:"violations"`
	Remaining  int           `json:"remaining"`
	Clock      string        `json:"clock"`
	Submitted  bool          `json:"submitted"`
}

// Attempt binds one student's session to a violation detector and a countdown.
// Manual submit, the violation threshold and the timeout all funnel into
// Submit, which runs at most once at a time.
type Attempt struct {
	studentID string
	questions domain.QuestionSet
	session   *QuizSession
	detector  *proctor.Detector
	timer     *countdown.Timer
	engine    *SubmissionEngine
	hooks     AttemptHooks
	log       zerolog.Logger
	onClose   func()

	ctx        context.Context
	submitting atomic.Bool
	closed     atomic.Bool

	mu      sync.Mutex
	outcome *SubmitOutcome
}

// NewAttempt wires the detector and timer around session. Call Start to begin
// the countdown.
func NewAttempt(session *QuizSession, engine *SubmissionEngine, cfg AttemptConfig, hooks AttemptHooks, log zerolog.Logger) *Attempt {
	snap := session.Snapshot()
	a := &Attempt{
		studentID: snap.StudentID,
		questions: session.QuestionSet(),
		session:   session,
		engine:    engine,
		hooks:     hooks,
		log:       log.With().Str("component", "attempt").Str("student_id", snap.StudentID).Logger(),
		ctx:       context.Background(),
	}

	detectorOpts := []proctor.Option{
		proctor.WithInitialCount(snap.ViolationCount),
		proctor.WithOnViolation(a.onViolation),
		proctor.WithLogger(log),
	}
	if cfg.Clock != nil {
		detectorOpts = append(detectorOpts, proctor.WithClock(cfg.Clock))
	}
	if cfg.Debounce > 0 {
		detectorOpts = append(detectorOpts, proctor.WithDebounce(cfg.Debounce))
	}
	a.detector = proctor.New(cfg.MaxViolations, func(int) { a.autoSubmit(ReasonViolations) }, detectorOpts...)

	timerOpts := []countdown.Option{countdown.WithOnTick(a.onTick)}
	if cfg.TickInterval > 0 {
		timerOpts = append(timerOpts, countdown.WithInterval(cfg.TickInterval))
	}
	a.timer = countdown.New(a.questions.DurationSeconds, func() { a.autoSubmit(ReasonTimeout) }, timerOpts...)
	return a
}

// Start begins the countdown. A session resumed at or above the violation
// threshold is submitted immediately.
func (a *Attempt) Start(ctx context.Context) {
	a.ctx = ctx
	if a.detector.Reached() {
		a.log.Warn().
			Int("violations", a.detector.Count()).
			Int("max", a.detector.Max()).
			Msg("resumed at violation threshold")
		a.autoSubmit(ReasonViolations)
		return
	}
	a.timer.Start(ctx)
}

// Submit scores and stores the attempt. A call while another is in flight
// returns domain.ErrSubmitInProgress; a call after success returns the stored
// outcome. After a failure the attempt can be submitted again.
func (a *Attempt) Submit(ctx context.Context, reason SubmitReason) (SubmitOutcome, error) {
	if o, ok := a.storedOutcome(); ok {
		return o, nil
	}
	if a.closed.Load() {
		return SubmitOutcome{}, domain.ErrAttemptClosed
	}
	if !a.submitting.CompareAndSwap(false, true) {
		if o, ok := a.storedOutcome(); ok {
			return o, nil
		}
		return SubmitOutcome{}, domain.ErrSubmitInProgress
	}

	snap := a.session.BeginSubmit()
	violations := max(a.detector.Count(), snap.ViolationCount)
	result, err := a.engine.Submit(ctx, a.studentID, snap.Answers, violations, a.questions)
	if err != nil {
		a.session.AbortSubmit()
		a.submitting.Store(false)
		metrics.RecordSubmissionFailure()
		a.log.Error().Err(err).Str("reason", string(reason)).Msg("submit failed")
		if a.hooks.OnSubmitFailed != nil {
			a.hooks.OnSubmitFailed(reason, err)
		}
		return SubmitOutcome{}, err
	}

	outcome := SubmitOutcome{Reason: reason, Result: result}
	a.mu.Lock()
	a.outcome = &outcome
	a.mu.Unlock()

	a.timer.Stop()
	a.detector.Stop()
	metrics.RecordSubmission(string(reason))
	a.log.Info().
		Str("reason", string(reason)).
		Int("score", result.Score).
		Bool("already_submitted", result.AlreadySubmitted).
		Msg("attempt submitted")

	if a.hooks.OnSubmitted != nil {
		a.hooks.OnSubmitted(outcome)
	}
	return outcome, nil
}

func (a *Attempt) autoSubmit(reason SubmitReason) {
	if a.closed.Load() {
		return
	}
	if _, err := a.Submit(a.ctx, reason); err != nil && !errors.Is(err, domain.ErrSubmitInProgress) {
		a.log.Warn().Err(err).Str("reason", string(reason)).Msg("auto submit failed")
	}
}

func (a *Attempt) storedOutcome() (SubmitOutcome, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.outcome == nil {
		return SubmitOutcome{}, false
	}
	return *a.outcome, true
}

func (a *Attempt) onViolation(count int) {
	if _, err := a.session.SetViolationCount(a.ctx, count); err != nil {
		a.log.Warn().Err(err).Msg("mirror violation count failed")
	}
	if a.hooks.OnViolation != nil {
		a.hooks.OnViolation(a.detector.State())
	}
}

func (a *Attempt) onTick(remaining int) {
	if a.hooks.OnTick != nil {
		a.hooks.OnTick(remaining)
	}
}

// Signal forwards a focus event to the detector.
func (a *Attempt) Signal(sig proctor.Signal) (bool, error) {
	if err := a.active(); err != nil {
		return false, err
	}
	accepted := a.detector.Observe(sig)
	if accepted {
		metrics.RecordViolation(string(sig))
	}
	return accepted, nil
}

// DismissWarning hides the violation warning.
func (a *Attempt) DismissWarning() proctor.State {
	a.detector.DismissWarning()
	return a.detector.State()
}

func (a *Attempt) SelectAnswer(ctx context.Context, questionIndex, optionIndex int) (Snapshot, error) {
	if err := a.active(); err != nil {
		return Snapshot{}, err
	}
	return a.session.SelectAnswer(ctx, questionIndex, optionIndex)
}

func (a *Attempt) ClearAnswer(ctx context.Context, questionIndex int) (Snapshot, error) {
	if err := a.active(); err != nil {
		return Snapshot{}, err
	}
	return a.session.ClearAnswer(ctx, questionIndex)
}

func (a *Attempt) Navigate(ctx context.Context, index int) (Snapshot, error) {
	if err := a.active(); err != nil {
		return Snapshot{}, err
	}
	return a.session.Navigate(ctx, index)
}

func (a *Attempt) Next(ctx context.Context) (Snapshot, error) {
	if err := a.active(); err != nil {
		return Snapshot{}, err
	}
	return a.session.Next(ctx)
}

func (a *Attempt) Previous(ctx context.Context) (Snapshot, error) {
	if err := a.active(); err != nil {
		return Snapshot{}, err
	}
	return a.session.Previous(ctx)
}

// State returns everything the client renders.
func (a *Attempt) State() AttemptState {
	remaining := a.timer.Remaining()
	_, submitted := a.storedOutcome()
	return AttemptState{
		Session:    a.session.Snapshot(),
		Violations: a.detector.State(),
		Remaining:  remaining,
		Clock:      countdown.FormatClock(remaining),
		Submitted:  submitted,
	}
}

// Outcome returns the stored outcome once submitted.
func (a *Attempt) Outcome() (SubmitOutcome, bool) {
	return a.storedOutcome()
}

// Close tears down the timer and detector. Later callbacks are ignored.
func (a *Attempt) Close() {
	if !a.closed.CompareAndSwap(false, true) {
		return
	}
	a.timer.Stop()
	a.detector.Stop()
	if a.onClose != nil {
		a.onClose()
	}
}

// active rejects mutations once the attempt has finished.
func (a *Attempt) active() error {
	if a.closed.Load() {
		return domain.ErrAttemptClosed
	}
	if _, done := a.storedOutcome(); done {
		return domain.ErrAttemptClosed
	}
	return nil
}
