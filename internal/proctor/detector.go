// Package proctor counts focus violations reported by the quiz client.
package proctor

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Signal is a raw focus event forwarded by the browser.
type Signal string

const (
	// SignalVisibilityHidden is sent when document.hidden becomes true.
	SignalVisibilityHidden Signal = "visibility_hidden"
	// SignalWindowBlur is sent when the window loses focus.
	SignalWindowBlur Signal = "window_blur"
)

// DefaultDebounce is the minimum gap between two accepted violations.
const DefaultDebounce = time.Second

// ParseSignal validates a client supplied signal name.
func ParseSignal(raw string) (Signal, error) {
	switch s := Signal(raw); s {
	case SignalVisibilityHidden, SignalWindowBlur:
		return s, nil
	default:
		return "", fmt.Errorf("unknown signal %q", raw)
	}
}

// State is a point-in-time view of the detector.
type State struct {
	Count       int  `json:"count"`
	Max         int  `json:"max"`
	ShowWarning bool `json:"showWarning"`
}

// Detector debounces focus signals and fires onMaxReached exactly once when
// the accepted count first reaches the threshold. Both signal sources share
// one debounce window, so a blur and a visibility change caused by the same
// tab switch count once.
type Detector struct {
	max          int
	debounce     time.Duration
	now          func() time.Time
	onMaxReached func(count int)
	onViolation  func(count int)
	log          zerolog.Logger

	mu           sync.Mutex
	count        int
	showWarning  bool
	lastAccepted time.Time
	hasAccepted  bool
	fired        bool
	stopped      bool
}

// Option configures a Detector.
type Option func(*Detector)

// WithClock replaces time.Now, used by tests to place signals on a timeline.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// WithDebounce overrides DefaultDebounce.
func WithDebounce(window time.Duration) Option {
	return func(d *Detector) { d.debounce = window }
}

// WithOnViolation registers a callback invoked after every accepted violation.
func WithOnViolation(fn func(count int)) Option {
	return func(d *Detector) { d.onViolation = fn }
}

// WithInitialCount resumes counting from a checkpoint.
func WithInitialCount(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.count = n
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(log zerolog.Logger) Option {
	return func(d *Detector) { d.log = log.With().Str("component", "violation_detector").Logger() }
}

// New starts a detector. A resumed count already at the threshold does not
// fire the callback; the caller decides what to do with it (see Reached).
func New(maxViolations int, onMaxReached func(count int), opts ...Option) *Detector {
	d := &Detector{
		max:          maxViolations,
		debounce:     DefaultDebounce,
		now:          time.Now,
		onMaxReached: onMaxReached,
		log:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.max > 0 && d.count >= d.max {
		d.fired = true
	}
	return d
}

// Observe records a signal. It returns true when the signal was accepted as
// a new violation.
func (d *Detector) Observe(sig Signal) bool {
	if _, err := ParseSignal(string(sig)); err != nil {
		return false
	}

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return false
	}
	now := d.now()
	if d.hasAccepted && now.Sub(d.lastAccepted) < d.debounce {
		d.mu.Unlock()
		d.log.Debug().Str("signal", string(sig)).Msg("ignoring violation inside debounce window")
		return false
	}
	d.lastAccepted = now
	d.hasAccepted = true
	d.count++
	d.showWarning = true
	count := d.count

	fire := false
	if d.max > 0 && count >= d.max && !d.fired {
		d.fired = true
		fire = true
	}
	onViolation, onMax := d.onViolation, d.onMaxReached
	d.mu.Unlock()

	d.log.Info().Str("signal", string(sig)).Int("count", count).Int("max", d.max).Msg("violation recorded")

	if onViolation != nil {
		onViolation(count)
	}
	if fire && onMax != nil {
		d.log.Warn().Int("count", count).Msg("violation threshold reached")
		onMax(count)
	}
	return true
}

// DismissWarning clears the warning flag. The count is never reset.
func (d *Detector) DismissWarning() {
	d.mu.Lock()
	d.showWarning = false
	d.mu.Unlock()
}

// Count returns the number of accepted violations.
func (d *Detector) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}

// Max returns the configured threshold.
func (d *Detector) Max() int {
	return d.max
}

// ShowWarning reports whether a warning is pending dismissal.
func (d *Detector) ShowWarning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.showWarning
}

// Reached reports whether the count is at or above the threshold.
func (d *Detector) Reached() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.max > 0 && d.count >= d.max
}

// State returns a snapshot.
func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return State{Count: d.count, Max: d.max, ShowWarning: d.showWarning}
}

// Stop detaches the detector; later signals are ignored.
func (d *Detector) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
}
