package engine

import (
	"testing"
	"time"

	"github.com/nerrad567/dkn-cloud-bridge/internal/hvac"
)

const (
	testStale    = 10 * time.Minute
	testDebounce = 90 * time.Second
)

func snapSeenAt(ts time.Time) hvac.Snapshot {
	return hvac.Snapshot{ConnectionDate: ts.UTC().Format(time.RFC3339)}
}

func TestConnTracker_FreshIsOnlineImmediately(t *testing.T) {
	now := time.Unix(100000, 0)
	var tr connTracker

	status, changed := tr.observe(snapSeenAt(now.Add(-time.Minute)), now, testStale, testDebounce)
	if status != StatusOnline || !changed {
		t.Fatalf("status = %v changed = %v, want online transition", status, changed)
	}
}

func TestConnTracker_StaleNeedsDebounce(t *testing.T) {
	now := time.Unix(100000, 0)
	var tr connTracker
	stale := snapSeenAt(now.Add(-time.Hour))

	// First stale observation starts the clock but does not flip.
	status, _ := tr.observe(stale, now, testStale, testDebounce)
	if status == StatusOffline {
		t.Fatal("single stale observation must not mark offline")
	}

	// Evidence persists past the debounce window.
	status, changed := tr.observe(stale, now.Add(2*time.Minute), testStale, testDebounce)
	if status != StatusOffline || !changed {
		t.Fatalf("status = %v changed = %v, want offline transition", status, changed)
	}
}

func TestConnTracker_FreshTimestampCancelsDebounce(t *testing.T) {
	now := time.Unix(100000, 0)
	var tr connTracker

	tr.observe(snapSeenAt(now.Add(-time.Hour)), now, testStale, testDebounce)
	status, _ := tr.observe(snapSeenAt(now.Add(30*time.Second)), now.Add(time.Minute), testStale, testDebounce)
	if status != StatusOnline {
		t.Fatalf("status = %v, want online after fresh heartbeat", status)
	}

	// Debounce must restart from scratch on the next stale stretch.
	status, _ = tr.observe(snapSeenAt(now.Add(-time.Hour)), now.Add(2*time.Minute), testStale, testDebounce)
	if status == StatusOffline {
		t.Error("debounce clock must reset after an online observation")
	}
}

func TestConnTracker_OfflineFlipsBackImmediately(t *testing.T) {
	now := time.Unix(100000, 0)
	var tr connTracker
	stale := snapSeenAt(now.Add(-time.Hour))

	tr.observe(stale, now, testStale, testDebounce)
	tr.observe(stale, now.Add(2*time.Minute), testStale, testDebounce)

	status, changed := tr.observe(snapSeenAt(now.Add(3*time.Minute)), now.Add(3*time.Minute), testStale, testDebounce)
	if status != StatusOnline || !changed {
		t.Fatalf("status = %v changed = %v, want immediate online", status, changed)
	}
}

func TestConnTracker_UnparseableTimestampCountsAsOnline(t *testing.T) {
	now := time.Unix(100000, 0)
	var tr connTracker

	status, _ := tr.observe(hvac.Snapshot{ConnectionDate: "garbage"}, now, testStale, testDebounce)
	if status != StatusOnline {
		t.Fatalf("status = %v, want online for unparseable heartbeat", status)
	}
}

func TestConnTracker_AbsentTimestampIsOfflineEvidence(t *testing.T) {
	now := time.Unix(100000, 0)
	var tr connTracker

	status, _ := tr.observe(hvac.Snapshot{}, now, testStale, testDebounce)
	if status == StatusOffline {
		t.Fatal("absent heartbeat must still be debounced")
	}
	status, _ = tr.observe(hvac.Snapshot{}, now.Add(2*time.Minute), testStale, testDebounce)
	if status != StatusOffline {
		t.Fatalf("status = %v, want offline after debounce", status)
	}
}
