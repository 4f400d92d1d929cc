package hvac

import (
	"encoding/json"
	"testing"
	"time"
)

func TestSnapshot_DecodeMixedTypes(t *testing.T) {
	raw := `{
		"id": "dev-1",
		"mac": "AA:BB:CC:DD:EE:FF",
		"name": "Living Room",
		"power": 1,
		"mode": "3",
		"cold_consign": "25,5",
		"heat_consign": 21.0,
		"cold_speed": "2",
		"heat_speed": 1,
		"availables_speeds": "3",
		"modes": "11101000",
		"scenary": "occupied",
		"sleep_time": 60,
		"min_temp_unoccupied": "16",
		"max_temp_unoccupied": "28",
		"local_temp": "23.4",
		"connection_date": "2026-08-30T11:12:13Z"
	}`

	var s Snapshot
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if !s.PowerOn() {
		t.Error("expected power on for numeric 1")
	}
	if s.ModeCode() != 3 {
		t.Errorf("ModeCode() = %d, want 3", s.ModeCode())
	}
	if v, ok := s.ColdSetpoint.Float(); !ok || v != 25.5 {
		t.Errorf("cold setpoint = %v (ok=%v), want 25.5", v, ok)
	}
	if v, ok := s.HeatSetpoint.Float(); !ok || v != 21.0 {
		t.Errorf("heat setpoint = %v (ok=%v), want 21.0", v, ok)
	}
	if v, ok := s.SleepTime.Int(); !ok || v != 60 {
		t.Errorf("sleep time = %v (ok=%v), want 60", v, ok)
	}
	if !s.Capabilities().Supports(ModeVentilate) {
		t.Error("expected ventilate supported from bitmask")
	}
}

func TestSnapshot_LastSeen(t *testing.T) {
	tests := []struct {
		name   string
		value  string
		wantOK bool
	}{
		{"rfc3339", "2026-08-30T11:12:13Z", true},
		{"rfc3339 nano", "2026-08-30T11:12:13.456Z", true},
		{"no zone", "2026-08-30T11:12:13", true},
		{"space separated", "2026-08-30 11:12:13", true},
		{"garbage", "not-a-date", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Snapshot{ConnectionDate: tt.value}
			ts, ok := s.LastSeen()
			if ok != tt.wantOK {
				t.Fatalf("LastSeen() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && ts.IsZero() {
				t.Error("parseable timestamp should be non-zero")
			}
		})
	}
}

func TestSnapshot_HasConnectionDate(t *testing.T) {
	if (Snapshot{ConnectionDate: "garbage"}).HasConnectionDate() == false {
		t.Error("unparseable but present timestamp should still count as present")
	}
	if (Snapshot{}).HasConnectionDate() {
		t.Error("absent timestamp should report not present")
	}
	if (Snapshot{ConnectionDate: "  "}).HasConnectionDate() {
		t.Error("whitespace-only timestamp should report not present")
	}
}

func TestSnapshot_FieldRoundTrip(t *testing.T) {
	s := Snapshot{
		Power:        "1",
		Mode:         "1",
		ColdSetpoint: "24.0",
		Scene:        SceneOccupied,
	}

	got, ok := s.Field(FieldColdSetpoint)
	if !ok || got != "24.0" {
		t.Fatalf("Field(cold_consign) = %q (ok=%v), want 24.0", got, ok)
	}

	s2 := s.WithField(FieldColdSetpoint, "26.0")
	if got, _ := s2.Field(FieldColdSetpoint); got != "26.0" {
		t.Errorf("WithField did not apply: got %q", got)
	}
	if got, _ := s.Field(FieldColdSetpoint); got != "24.0" {
		t.Error("WithField must not mutate the receiver")
	}

	if _, ok := s.Field("local_temp"); ok {
		t.Error("read-only fields must not be addressable by Field")
	}
}

func TestClampQuantize(t *testing.T) {
	tests := []struct {
		name                  string
		value, min, max, step float64
		want                  float64
	}{
		{"in range on step", 24.5, 18, 30, 0.5, 24.5},
		{"snaps down", 24.2, 18, 30, 0.5, 24.0},
		{"snaps up", 24.3, 18, 30, 0.5, 24.5},
		{"clamps low", 10, 18, 30, 0.5, 18},
		{"clamps high", 40, 18, 30, 0.5, 30},
		{"sleep timer step", 47, 30, 120, 10, 50},
		{"no step", 24.37, 18, 30, 0, 24.37},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClampQuantize(tt.value, tt.min, tt.max, tt.step); got != tt.want {
				t.Errorf("ClampQuantize(%v) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestFlexString_Bool(t *testing.T) {
	if !(FlexString("1")).Bool() || !(FlexString("true")).Bool() || !(FlexString("ON")).Bool() {
		t.Error("truthy values should report true")
	}
	if (FlexString("0")).Bool() || (FlexString("")).Bool() || (FlexString("off")).Bool() {
		t.Error("falsy values should report false")
	}
}

func TestSnapshot_LastSeenUTC(t *testing.T) {
	s := Snapshot{ConnectionDate: "2026-08-30T11:12:13+02:00"}
	ts, ok := s.LastSeen()
	if !ok {
		t.Fatal("expected parseable timestamp")
	}
	want := time.Date(2026, 8, 30, 9, 12, 13, 0, time.UTC)
	if !ts.Equal(want) {
		t.Errorf("LastSeen() = %v, want %v", ts, want)
	}
}
