package rescan

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestTimer() (*Timer, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	timer := NewTimer(time.Second)
	timer.SetClock(clock.Now)
	return timer, clock
}

func TestTimerIdleNeverExpires(t *testing.T) {
	timer, clock := newTestTimer()
	clock.Advance(time.Hour)
	if timer.Expired() || timer.Pending() {
		t.Fatalf("idle timer must not be expired or pending")
	}
}

func TestTimerExpiresAfterCooldown(t *testing.T) {
	timer, clock := newTestTimer()
	timer.ScheduleScan()

	if timer.Expired() {
		t.Fatalf("expired before cooldown")
	}
	clock.Advance(999 * time.Millisecond)
	if timer.Expired() {
		t.Fatalf("expired before cooldown")
	}
	clock.Advance(time.Millisecond)
	if !timer.Expired() {
		t.Fatalf("expected expired after cooldown")
	}
}

func TestTimerCoalescesRequests(t *testing.T) {
	timer, clock := newTestTimer()
	timer.ScheduleScan()
	for range 10 {
		clock.Advance(200 * time.Millisecond)
		timer.ScheduleScan()
	}
	// Later requests must not push the window out.
	if !timer.Expired() {
		t.Fatalf("expected window opened by the first request to be expired")
	}

	timer.Reset()
	if timer.Expired() || timer.Pending() {
		t.Fatalf("expected idle after reset")
	}
}

func TestTimerConcurrentSchedulesOpenOneWindow(t *testing.T) {
	timer, clock := newTestTimer()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			timer.ScheduleScan()
		}()
	}
	wg.Wait()

	clock.Advance(time.Second)
	if !timer.Expired() {
		t.Fatalf("expected expired window")
	}
	timer.Reset()
	clock.Advance(time.Hour)
	if timer.Expired() {
		t.Fatalf("expected exactly one window")
	}
}

func TestNewTimerDefaultsDelay(t *testing.T) {
	if got := NewTimer(0).Delay(); got != DefaultDelay {
		t.Fatalf("expected default delay, got %v", got)
	}
}
