package engine

import (
	"time"

	"github.com/nerrad567/dkn-cloud-bridge/internal/hvac"
)

// Status is a device's connectivity state as judged from snapshot
// freshness. Devices start Unknown until the first snapshot is evaluated.
type Status int

const (
	StatusUnknown Status = iota
	StatusOnline
	StatusOffline
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusOnline:
		return "online"
	case StatusOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// connTracker decides a device's connectivity from its snapshots.
//
// A fresh last-seen timestamp flips the device Online immediately. Evidence
// of offline (stale or absent timestamp) must persist for the debounce
// window before the device is marked Offline, so one late heartbeat never
// flaps the state. A present-but-unparseable timestamp counts as online:
// the backend does emit malformed dates for healthy units.
type connTracker struct {
	status           Status
	offlineCandidate time.Time // zero when no offline evidence is pending
}

// observe evaluates one snapshot and returns the (possibly unchanged)
// status along with whether it transitioned.
func (t *connTracker) observe(snap hvac.Snapshot, now time.Time, staleAfter, debounce time.Duration) (Status, bool) {
	online := false
	switch {
	case !snap.HasConnectionDate():
		// No heartbeat at all: offline evidence.
	default:
		lastSeen, ok := snap.LastSeen()
		if !ok {
			// Present but unparseable: assume the unit is fine.
			online = true
		} else {
			online = now.Sub(lastSeen) <= staleAfter
		}
	}

	prev := t.status
	if online {
		t.offlineCandidate = time.Time{}
		t.status = StatusOnline
		return t.status, prev != StatusOnline
	}

	if t.offlineCandidate.IsZero() {
		t.offlineCandidate = now
	}
	if now.Sub(t.offlineCandidate) >= debounce {
		t.status = StatusOffline
	}
	return t.status, t.status != prev
}
