package hvac

import "testing"

func TestDecodeModes(t *testing.T) {
	tests := []struct {
		name    string
		bitmask string
		want    []int
		wantErr bool
	}{
		{
			name:    "cool heat ventilate dry",
			bitmask: "11101000",
			want:    []int{1, 2, 3, 5},
		},
		{
			name:    "all modes",
			bitmask: "11111111",
			want:    []int{1, 2, 3, 4, 5, 6, 7, 8},
		},
		{
			name:    "no modes",
			bitmask: "00000000",
			want:    nil,
		},
		{
			name:    "heat type ventilate only",
			bitmask: "00000001",
			want:    []int{8},
		},
		{
			name:    "too short",
			bitmask: "1110",
			wantErr: true,
		},
		{
			name:    "too long",
			bitmask: "111010001",
			wantErr: true,
		},
		{
			name:    "invalid characters",
			bitmask: "1110x000",
			wantErr: true,
		},
		{
			name:    "empty",
			bitmask: "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := DecodeModes(tt.bitmask)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("DecodeModes(%q): expected error, got nil", tt.bitmask)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeModes(%q): unexpected error: %v", tt.bitmask, err)
			}
			got := set.SupportedModes()
			if len(got) != len(tt.want) {
				t.Fatalf("SupportedModes() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("SupportedModes() = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestCapabilitySet_Supports(t *testing.T) {
	set, err := DecodeModes("11101000")
	if err != nil {
		t.Fatalf("DecodeModes: %v", err)
	}
	if !set.Supports(ModeCool) || !set.Supports(ModeHeat) || !set.Supports(ModeVentilate) || !set.Supports(ModeDry) {
		t.Error("expected modes 1,2,3,5 supported")
	}
	if set.Supports(ModeHeatCool) {
		t.Error("mode 4 should not be supported by 11101000")
	}
	if set.Supports(0) || set.Supports(9) {
		t.Error("out-of-range modes must report unsupported")
	}
}

func TestCapabilitySet_VentilateCode(t *testing.T) {
	tests := []struct {
		bitmask string
		want    int
	}{
		{"11101000", 3}, // standard ventilate present
		{"00000001", 8}, // heat-type fallback
		{"10100001", 3}, // both present, standard wins
		{"11000000", 0}, // neither
	}
	for _, tt := range tests {
		set, err := DecodeModes(tt.bitmask)
		if err != nil {
			t.Fatalf("DecodeModes(%q): %v", tt.bitmask, err)
		}
		if got := set.VentilateCode(); got != tt.want {
			t.Errorf("VentilateCode(%q) = %d, want %d", tt.bitmask, got, tt.want)
		}
	}
}

func TestModeChannel(t *testing.T) {
	heatModes := map[int]bool{2: true, 7: true, 8: true}
	for mode := 1; mode <= 8; mode++ {
		got := ModeChannel(mode)
		if heatModes[mode] && got != ChannelHeat {
			t.Errorf("ModeChannel(%d) = %v, want heat", mode, got)
		}
		if !heatModes[mode] && got != ChannelCold {
			t.Errorf("ModeChannel(%d) = %v, want cold", mode, got)
		}
	}
}

func TestModeExposesTemperature(t *testing.T) {
	want := map[int]bool{1: true, 2: true, 4: true}
	for mode := 1; mode <= 8; mode++ {
		if got := ModeExposesTemperature(mode); got != want[mode] {
			t.Errorf("ModeExposesTemperature(%d) = %v, want %v", mode, got, want[mode])
		}
	}
}

func TestModeExposesFan(t *testing.T) {
	want := map[int]bool{1: true, 2: true, 3: true, 4: true, 8: true}
	for mode := 1; mode <= 8; mode++ {
		if got := ModeExposesFan(mode); got != want[mode] {
			t.Errorf("ModeExposesFan(%d) = %v, want %v", mode, got, want[mode])
		}
	}
}

func TestCapabilitySet_SupportsDualSetpoint(t *testing.T) {
	with, _ := DecodeModes("00010000")
	without, _ := DecodeModes("11101000")
	if !with.SupportsDualSetpoint() {
		t.Error("bitmask with bit 4 set should report dual setpoint support")
	}
	if without.SupportsDualSetpoint() {
		t.Error("bitmask without bit 4 should not report dual setpoint support")
	}
}
