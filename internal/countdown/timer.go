// Package countdown implements the quiz clock.
package countdown

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Timer counts whole seconds down to zero and calls onTimeout exactly once.
type Timer struct {
	interval  time.Duration
	onTimeout func()
	onTick    func(remaining int)

	mu        sync.Mutex
	remaining int
	paused    bool
	expired   bool
	stopped   bool
	started   bool

	resumed chan struct{}
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// Option configures a Timer.
type Option func(*Timer)

// WithInterval changes the tick length; tests use milliseconds.
func WithInterval(d time.Duration) Option {
	return func(t *Timer) { t.interval = d }
}

// WithOnTick registers a callback that receives the remaining seconds after
// every decrement.
func WithOnTick(fn func(remaining int)) Option {
	return func(t *Timer) { t.onTick = fn }
}

// New creates a stopped timer holding totalSeconds.
func New(totalSeconds int, onTimeout func(), opts ...Option) *Timer {
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	t := &Timer{
		interval:  time.Second,
		onTimeout: onTimeout,
		remaining: totalSeconds,
		resumed:   make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start launches the ticking goroutine. It returns immediately. A timer with
// nothing left expires on start.
func (t *Timer) Start(ctx context.Context) {
	t.mu.Lock()
	if t.started || t.stopped {
		t.mu.Unlock()
		return
	}
	t.started = true
	zero := t.remaining == 0 && !t.expired
	if zero {
		t.expired = true
	}
	t.mu.Unlock()

	if zero {
		t.fireTimeout()
		t.finish()
		return
	}
	go t.run(ctx)
}

func (t *Timer) run(ctx context.Context) {
	defer t.finish()
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-t.resumed:
			ticker.Reset(t.interval)
		case <-ticker.C:
			t.Tick()
			if t.Expired() {
				return
			}
		}
	}
}

// Tick performs one decrement. It is a no-op while paused, stopped, or
// expired, and returns the remaining seconds.
func (t *Timer) Tick() int {
	t.mu.Lock()
	if t.paused || t.stopped || t.expired || t.remaining <= 0 {
		r := t.remaining
		t.mu.Unlock()
		return r
	}
	t.remaining--
	remaining := t.remaining
	timedOut := remaining == 0
	if timedOut {
		t.expired = true
	}
	onTick := t.onTick
	t.mu.Unlock()

	if onTick != nil {
		onTick(remaining)
	}
	if timedOut {
		t.fireTimeout()
	}
	return remaining
}

func (t *Timer) fireTimeout() {
	if t.onTimeout != nil {
		t.onTimeout()
	}
}

// Pause halts decrementing without resetting.
func (t *Timer) Pause() {
	t.mu.Lock()
	t.paused = true
	t.mu.Unlock()
}

// Resume continues from the paused value; the next decrement is one full
// interval away.
func (t *Timer) Resume() {
	t.mu.Lock()
	wasPaused := t.paused
	t.paused = false
	t.mu.Unlock()
	if !wasPaused {
		return
	}
	select {
	case t.resumed <- struct{}{}:
	default:
	}
}

// Stop tears the timer down. Safe to call more than once.
func (t *Timer) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	started := t.started
	t.mu.Unlock()

	close(t.stop)
	if !started {
		t.finish()
	}
}

func (t *Timer) finish() {
	t.once.Do(func() { close(t.done) })
}

// Done is closed once the timer has expired or been stopped.
func (t *Timer) Done() <-chan struct{} {
	return t.done
}

// Remaining returns the seconds left.
func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// Paused reports whether the timer is paused.
func (t *Timer) Paused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused
}

// Expired reports whether the timer reached zero.
func (t *Timer) Expired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expired
}

// FormatClock renders seconds as zero-padded MM:SS.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
