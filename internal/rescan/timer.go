// Package rescan debounces full-tree rescan requests.
package rescan

import (
	"sync"
	"time"
)

// DefaultDelay is the cooldown between the first request of a window and the
// moment the window expires.
const DefaultDelay = time.Second

// Timer coalesces bursts of rescan requests. The first ScheduleScan of an
// idle timer opens a window; later calls inside the window are absorbed.
// Expired reports true once the window's cooldown has elapsed, and Reset
// returns the timer to idle. Safe for concurrent use.
type Timer struct {
	mu    sync.Mutex
	delay time.Duration
	due   time.Time
	now   func() time.Time
}

// NewTimer returns an idle timer. A non-positive delay means DefaultDelay.
func NewTimer(delay time.Duration) *Timer {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Timer{delay: delay, now: time.Now}
}

// SetClock overrides the clock, for tests.
func (t *Timer) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// ScheduleScan requests a rescan.
func (t *Timer) ScheduleScan() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.due.IsZero() {
		t.due = t.now().Add(t.delay)
	}
}

// Expired reports whether a requested rescan is due.
func (t *Timer) Expired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.due.IsZero() && !t.now().Before(t.due)
}

// Pending reports whether a rescan has been requested and not yet reset.
func (t *Timer) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.due.IsZero()
}

// Reset returns the timer to idle.
func (t *Timer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.due = time.Time{}
}

// Delay returns the configured cooldown.
func (t *Timer) Delay() time.Duration {
	return t.delay
}
