package auth

import (
	"sync"
	"time"
)

// lockoutEntry is the failure history of one account.
type lockoutEntry struct {
	failures    []time.Time // within the current window, ascending
	lockedUntil time.Time
}

// LockoutTracker locks an account after threshold failed logins within one
// lockout duration. Keys are normalized emails. State is in memory and
// resets on restart.
type LockoutTracker struct {
	mu        sync.Mutex
	entries   map[string]*lockoutEntry
	threshold int
	duration  time.Duration
	now       func() time.Time
	done      chan struct{}
	stopOnce  sync.Once
}

// NewLockoutTracker creates a new lockout tracker.
func NewLockoutTracker(threshold int, duration time.Duration) *LockoutTracker {
	tracker := &LockoutTracker{
		entries:   make(map[string]*lockoutEntry),
		threshold: threshold,
		duration:  duration,
		now:       time.Now,
		done:      make(chan struct{}),
	}

	go tracker.cleanupLoop()

	return tracker
}

// RecordFailure records a failed login attempt and reports whether the
// account is now locked.
func (t *LockoutTracker) RecordFailure(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	entry, ok := t.entries[key]
	if !ok {
		entry = &lockoutEntry{}
		t.entries[key] = entry
	}
	if now.Before(entry.lockedUntil) {
		return true
	}

	entry.failures = append(pruneBefore(entry.failures, now.Add(-t.duration)), now)
	if len(entry.failures) >= t.threshold {
		entry.lockedUntil = now.Add(t.duration)
		entry.failures = entry.failures[:0]
		return true
	}
	return false
}

// Check reports whether key is locked and for how much longer.
func (t *LockoutTracker) Check(key string) (locked bool, remaining time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[key]
	if !ok {
		return false, 0
	}
	remaining = entry.lockedUntil.Sub(t.now())
	if remaining <= 0 {
		return false, 0
	}
	return true, remaining
}

// IsLocked returns true if the account is currently locked.
func (t *LockoutTracker) IsLocked(key string) bool {
	locked, _ := t.Check(key)
	return locked
}

// ClearFailures forgets the failure history after a successful login.
func (t *LockoutTracker) ClearFailures(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.entries, key)
}

func (t *LockoutTracker) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.cleanup()
		case <-t.done:
			return
		}
	}
}

// Stop ends the background cleanup.
func (t *LockoutTracker) Stop() {
	t.stopOnce.Do(func() { close(t.done) })
}

// cleanup removes entries with no live lock and no failure in the window.
func (t *LockoutTracker) cleanup() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for key, entry := range t.entries {
		entry.failures = pruneBefore(entry.failures, now.Add(-t.duration))
		if len(entry.failures) == 0 && !now.Before(entry.lockedUntil) {
			delete(t.entries, key)
		}
	}
}

func pruneBefore(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && ts[i].Before(cutoff) {
		i++
	}
	return ts[i:]
}
