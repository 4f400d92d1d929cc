package hvac

import (
	"fmt"
	"strings"
)

// Mode codes as used by the cloud command endpoint (P2 values).
const (
	ModeCool          = 1
	ModeHeat          = 2
	ModeVentilate     = 3
	ModeHeatCool      = 4
	ModeDry           = 5
	ModeCoolAir       = 6
	ModeHeatAir       = 7
	ModeVentilateHeat = 8
)

// BitmaskLength is the fixed width of the mode-support bitmask.
const BitmaskLength = 8

// Channel identifies which member of a cold/heat field pair a mode
// routes setpoint and fan writes to.
type Channel int

const (
	// ChannelCold routes writes to cold_consign / cold_speed.
	ChannelCold Channel = iota

	// ChannelHeat routes writes to heat_consign / heat_speed.
	ChannelHeat
)

// String returns the channel name for logging.
func (c Channel) String() string {
	if c == ChannelHeat {
		return "heat"
	}
	return "cold"
}

// CapabilitySet is the decoded form of a unit's mode-support bitmask.
// It is derived, never stored; decode again from each fresh snapshot.
type CapabilitySet struct {
	bits [BitmaskLength]bool
}

// DecodeModes decodes a fixed-width mode-support bitmask into a CapabilitySet.
//
// Bit i (0-indexed) set means mode code i+1 is supported. The bitmask must
// be exactly 8 characters of '0'/'1'; anything else is rejected rather than
// guessed at.
//
// Parameters:
//   - bitmask: The raw "modes" field from a device snapshot
//
// Returns:
//   - CapabilitySet: Decoded capabilities
//   - error: If the bitmask has the wrong width or contains other characters
func DecodeModes(bitmask string) (CapabilitySet, error) {
	var set CapabilitySet

	if len(bitmask) != BitmaskLength {
		return set, fmt.Errorf("mode bitmask %q: want %d characters, got %d", bitmask, BitmaskLength, len(bitmask))
	}
	if strings.Trim(bitmask, "01") != "" {
		return set, fmt.Errorf("mode bitmask %q: contains characters other than 0/1", bitmask)
	}

	for i := 0; i < BitmaskLength; i++ {
		set.bits[i] = bitmask[i] == '1'
	}
	return set, nil
}

// Supports reports whether the given mode code is supported.
// Mode codes outside 1..8 are never supported.
func (c CapabilitySet) Supports(mode int) bool {
	if mode < 1 || mode > BitmaskLength {
		return false
	}
	return c.bits[mode-1]
}

// SupportedModes returns the supported mode codes in ascending order.
func (c CapabilitySet) SupportedModes() []int {
	modes := make([]int, 0, BitmaskLength)
	for i, set := range c.bits {
		if set {
			modes = append(modes, i+1)
		}
	}
	return modes
}

// VentilateCode resolves the duplicate ventilate enumerants (3 and 8).
// Mode 3 wins when supported, else mode 8. Zero means ventilation is
// unavailable on this unit.
func (c CapabilitySet) VentilateCode() int {
	if c.Supports(ModeVentilate) {
		return ModeVentilate
	}
	if c.Supports(ModeVentilateHeat) {
		return ModeVentilateHeat
	}
	return 0
}

// SupportsDualSetpoint reports whether mode 4 (heat-cool) is advertised.
// Backend semantics for this mode are unvalidated across firmware; callers
// should additionally gate exposure behind configuration.
func (c CapabilitySet) SupportsDualSetpoint() bool {
	return c.Supports(ModeHeatCool)
}

// ModeChannel returns the field channel a mode routes fan and temperature
// writes to. Modes 1, 3, 4, 5, 6 use the cold channel; 2, 7, 8 the heat
// channel. Unknown modes default to the cold channel.
func ModeChannel(mode int) Channel {
	switch mode {
	case ModeHeat, ModeHeatAir, ModeVentilateHeat:
		return ChannelHeat
	default:
		return ChannelCold
	}
}

// ModeExposesTemperature reports whether a setpoint control is meaningful
// in the given mode. Only cool, heat, and heat-cool take setpoints.
func ModeExposesTemperature(mode int) bool {
	switch mode {
	case ModeCool, ModeHeat, ModeHeatCool:
		return true
	default:
		return false
	}
}

// ModeExposesFan reports whether fan-speed control is meaningful in the
// given mode. Dry mode exposes neither fan nor temperature. Mode 8 is the
// heat-type duplicate of ventilate and takes fan writes on the heat channel.
func ModeExposesFan(mode int) bool {
	switch mode {
	case ModeCool, ModeHeat, ModeVentilate, ModeHeatCool, ModeVentilateHeat:
		return true
	default:
		return false
	}
}
