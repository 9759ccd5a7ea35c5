package auth

import (
	"testing"
	"time"
)

func newTestTracker(threshold int, d time.Duration) (*LockoutTracker, *time.Time) {
	now := time.Date(2025, 6, 30, 9, 0, 0, 0, time.UTC)
	tracker := NewLockoutTracker(threshold, d)
	tracker.now = func() time.Time { return now }
	return tracker, &now
}

func TestLockoutTracker_Threshold(t *testing.T) {
	tracker, _ := newTestTracker(3, time.Minute)
	defer tracker.Stop()
	email := "vendor@example.com"

	if tracker.IsLocked(email) {
		t.Error("account should not be locked initially")
	}
	if tracker.RecordFailure(email) || tracker.RecordFailure(email) {
		t.Error("two failures should not lock (threshold=3)")
	}
	if !tracker.RecordFailure(email) {
		t.Error("third failure should lock")
	}
	if !tracker.IsLocked(email) {
		t.Error("account should be locked")
	}
	if tracker.IsLocked("other@example.com") {
		t.Error("accounts are tracked independently")
	}
}

func TestLockoutTracker_Expires(t *testing.T) {
	tracker, now := newTestTracker(2, 30*time.Minute)
	defer tracker.Stop()
	email := "vendor@example.com"

	tracker.RecordFailure(email)
	tracker.RecordFailure(email)

	locked, remaining := tracker.Check(email)
	if !locked || remaining != 30*time.Minute {
		t.Fatalf("Check = %v, %v; want locked for 30m", locked, remaining)
	}

	*now = now.Add(10 * time.Minute)
	if _, remaining := tracker.Check(email); remaining != 20*time.Minute {
		t.Errorf("remaining = %v, want 20m", remaining)
	}

	*now = now.Add(20 * time.Minute)
	if tracker.IsLocked(email) {
		t.Error("lockout should have expired")
	}
	if tracker.RecordFailure(email) {
		t.Error("a fresh failure after expiry should not lock again")
	}
}

func TestLockoutTracker_FailuresOutsideWindow(t *testing.T) {
	tracker, now := newTestTracker(3, 10*time.Minute)
	defer tracker.Stop()
	email := "vendor@example.com"

	tracker.RecordFailure(email)
	tracker.RecordFailure(email)
	*now = now.Add(11 * time.Minute)

	if tracker.RecordFailure(email) {
		t.Error("failures older than the window should not count")
	}
}

func TestLockoutTracker_ClearFailures(t *testing.T) {
	tracker, _ := newTestTracker(2, time.Hour)
	defer tracker.Stop()
	email := "vendor@example.com"

	tracker.RecordFailure(email)
	tracker.ClearFailures(email)
	if tracker.RecordFailure(email) {
		t.Error("cleared history should need the full threshold again")
	}

	tracker.RecordFailure(email)
	tracker.ClearFailures(email)
	if tracker.IsLocked(email) {
		t.Error("clear should lift the lock")
	}
}

func TestLockoutTracker_Cleanup(t *testing.T) {
	tracker, now := newTestTracker(2, time.Minute)
	defer tracker.Stop()

	tracker.RecordFailure("stale@example.com")
	tracker.RecordFailure("locked@example.com")
	tracker.RecordFailure("locked@example.com")

	*now = now.Add(90 * time.Second)
	tracker.RecordFailure("fresh@example.com")
	tracker.cleanup()

	if _, ok := tracker.entries["stale@example.com"]; ok {
		t.Error("stale entry should be removed")
	}
	if _, ok := tracker.entries["locked@example.com"]; ok {
		t.Error("expired lock should be removed")
	}
	if _, ok := tracker.entries["fresh@example.com"]; !ok {
		t.Error("fresh entry should be kept")
	}
}

func TestLockoutTracker_Stop(t *testing.T) {
	tracker := NewLockoutTracker(3, time.Minute)
	tracker.Stop()
	tracker.Stop()

	tracker.RecordFailure("vendor@example.com")
	if tracker.IsLocked("vendor@example.com") {
		t.Error("one failure should not lock")
	}
}
