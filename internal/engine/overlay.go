package engine

import (
	"time"

	"github.com/nerrad567/dkn-cloud-bridge/internal/hvac"
)

// overlayEntry is one optimistic guess for a writable field.
type overlayEntry struct {
	value string
	setAt time.Time
}

// overlay holds the per-field optimistic guesses for one device. Not safe
// for concurrent use; the engine mutex guards it.
type overlay map[string]overlayEntry

// set records a guess for a field, replacing any previous one.
func (o overlay) set(field, value string, now time.Time) {
	o[field] = overlayEntry{value: value, setAt: now}
}

// merge applies unexpired entries over the snapshot and returns the
// merged copy plus the field names still pending confirmation. Expired
// entries are removed as a side effect.
func (o overlay) merge(snap hvac.Snapshot, now time.Time, ttl time.Duration) (hvac.Snapshot, []string) {
	var pending []string
	for field, entry := range o {
		if now.Sub(entry.setAt) > ttl {
			delete(o, field)
			continue
		}
		snap = snap.WithField(field, entry.value)
		pending = append(pending, field)
	}
	return snap, pending
}

// reconcile validates entries against an authoritative snapshot. An entry
// the snapshot agrees with is confirmed and cleared early. An entry the
// snapshot contradicts is kept only within its grace period; past that the
// authoritative value wins and the entry is dropped.
func (o overlay) reconcile(snap hvac.Snapshot, now time.Time, grace time.Duration) {
	for field, entry := range o {
		authoritative, ok := snap.Field(field)
		if !ok {
			delete(o, field)
			continue
		}
		if authoritative == entry.value {
			delete(o, field)
			continue
		}
		if now.Sub(entry.setAt) > grace {
			delete(o, field)
		}
	}
}
