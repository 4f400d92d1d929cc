package engine

import (
	"testing"
	"time"

	"github.com/nerrad567/dkn-cloud-bridge/internal/hvac"
)

func TestOverlay_MergeAppliesUnexpired(t *testing.T) {
	base := time.Unix(1000, 0)
	ttl := 2500 * time.Millisecond

	ov := make(overlay)
	ov.set(hvac.FieldPower, "1", base)
	ov.set(hvac.FieldMode, "3", base)

	snap := hvac.Snapshot{Power: "0", Mode: "1"}
	merged, pending := ov.merge(snap, base.Add(time.Second), ttl)

	if !merged.PowerOn() || merged.ModeCode() != 3 {
		t.Errorf("merged = power %q mode %q, want overlay values", merged.Power, merged.Mode)
	}
	if len(pending) != 2 {
		t.Errorf("pending = %v, want both fields", pending)
	}
}

func TestOverlay_MergeExpiresEntries(t *testing.T) {
	base := time.Unix(1000, 0)
	ttl := 2500 * time.Millisecond

	ov := make(overlay)
	ov.set(hvac.FieldPower, "1", base)

	snap := hvac.Snapshot{Power: "0"}
	merged, pending := ov.merge(snap, base.Add(3*time.Second), ttl)

	if merged.PowerOn() {
		t.Error("expired overlay must not shadow the snapshot")
	}
	if len(pending) != 0 {
		t.Errorf("pending = %v, want none", pending)
	}
	if len(ov) != 0 {
		t.Error("expired entries should be removed")
	}
}

func TestOverlay_ReconcileConfirmsEarly(t *testing.T) {
	base := time.Unix(1000, 0)
	grace := 2500 * time.Millisecond

	ov := make(overlay)
	ov.set(hvac.FieldPower, "1", base)

	// Backend already agrees well before the TTL.
	ov.reconcile(hvac.Snapshot{Power: "1"}, base.Add(500*time.Millisecond), grace)

	if len(ov) != 0 {
		t.Error("confirmed entry should be cleared early")
	}
}

func TestOverlay_ReconcileKeepsContradictionWithinGrace(t *testing.T) {
	base := time.Unix(1000, 0)
	grace := 2500 * time.Millisecond

	ov := make(overlay)
	ov.set(hvac.FieldPower, "1", base)

	// A stale snapshot may simply predate the write.
	ov.reconcile(hvac.Snapshot{Power: "0"}, base.Add(time.Second), grace)
	if len(ov) != 1 {
		t.Fatal("contradiction within grace must keep the overlay")
	}

	// Past the grace period the backend wins.
	ov.reconcile(hvac.Snapshot{Power: "0"}, base.Add(3*time.Second), grace)
	if len(ov) != 0 {
		t.Error("contradiction past grace must drop the overlay")
	}
}
