package security

import (
	"sync"
	"time"
)

// LoginTracker counts failed login attempts per client IP inside a sliding
// window. State lives behind a mutex with an explicit sweep and an injected
// clock, never in ambient package globals.
type LoginTracker struct {
	mu       sync.Mutex
	failures map[string][]time.Time
	max      int
	window   time.Duration
	now      func() time.Time
}

func NewLoginTracker(max int, window time.Duration) *LoginTracker {
	return &LoginTracker{
		failures: make(map[string][]time.Time),
		max:      max,
		window:   window,
		now:      time.Now,
	}
}

// Fail records a failed attempt and returns the count inside the window.
func (t *LoginTracker) Fail(ip string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	recent := t.recentLocked(ip, now)
	recent = append(recent, now)
	t.failures[ip] = recent
	return len(recent)
}

// Blocked reports whether the IP has reached the failure threshold.
func (t *LoginTracker) Blocked(ip string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.recentLocked(ip, t.now())) >= t.max
}

// Reset clears tracking for an IP, called after a successful login.
func (t *LoginTracker) Reset(ip string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.failures, ip)
}

// Sweep drops entries whose every attempt has aged out of the window.
// Called from the periodic cleanup task.
func (t *LoginTracker) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	removed := 0
	for ip := range t.failures {
		if len(t.recentLocked(ip, now)) == 0 {
			delete(t.failures, ip)
			removed++
		}
	}
	return removed
}

// recentLocked filters attempts inside the window. Caller holds the lock.
func (t *LoginTracker) recentLocked(ip string, now time.Time) []time.Time {
	cut := now.Add(-t.window)
	var recent []time.Time
	for _, at := range t.failures[ip] {
		if at.After(cut) {
			recent = append(recent, at)
		}
	}
	return recent
}
