package hvac

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Writable snapshot field names. These double as optimistic overlay keys
// and as the field names accepted by the cloud field-update endpoint.
const (
	FieldPower         = "power"
	FieldMode          = "mode"
	FieldColdSetpoint  = "cold_consign"
	FieldHeatSetpoint  = "heat_consign"
	FieldColdSpeed     = "cold_speed"
	FieldHeatSpeed     = "heat_speed"
	FieldScene         = "scenary"
	FieldSleepTime     = "sleep_time"
	FieldUnoccupiedMin = "min_temp_unoccupied"
	FieldUnoccupiedMax = "max_temp_unoccupied"
)

// Machine parameter codes for the event endpoint. Each immediate control
// write maps to one of these "modmaquina" options.
const (
	ParamPower        = "P1" // power ("0"/"1")
	ParamMode         = "P2" // mode code ("1".."8")
	ParamColdSpeed    = "P3" // fan speed, cold channel
	ParamHeatSpeed    = "P4" // fan speed, heat channel
	ParamColdSetpoint = "P7" // target temperature, cold channel
	ParamHeatSetpoint = "P8" // target temperature, heat channel
)

// Occupancy scenes as accepted by the field-update endpoint.
const (
	SceneOccupied = "occupied"
	SceneVacant   = "vacant"
	SceneSleep    = "sleep"
)

// FlexString is a string that tolerates number, boolean, and null JSON
// encodings. The cloud backend is inconsistent about value types across
// firmware revisions ("power":"1" vs "power":1), so every loosely typed
// snapshot field decodes through this.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	// Number or boolean: keep the literal text.
	*f = FlexString(data)
	return nil
}

// String returns the underlying string.
func (f FlexString) String() string { return string(f) }

// Float parses the value as a float, tolerating comma decimal separators
// ("25,5") seen on some firmware locales.
func (f FlexString) Float() (float64, bool) {
	s := strings.TrimSpace(strings.ReplaceAll(string(f), ",", "."))
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Int parses the value as an integer, accepting float renderings ("2.0").
func (f FlexString) Int() (int, bool) {
	v, ok := f.Float()
	if !ok {
		return 0, false
	}
	return int(v), true
}

// Bool normalises backend power-style flags to a boolean.
func (f FlexString) Bool() bool {
	switch strings.ToLower(strings.TrimSpace(string(f))) {
	case "1", "true", "on", "yes":
		return true
	default:
		return false
	}
}

// Snapshot is an immutable device state value as fetched from the cloud
// snapshot endpoint. Setpoints and fan speeds are meaningful only where the
// capability model marks the control as applicable for the active mode.
type Snapshot struct {
	ID              string          `json:"id"`
	MAC             string          `json:"mac"`
	Name            string          `json:"name"`
	Power           FlexString      `json:"power"`
	Mode            FlexString      `json:"mode"`
	ColdSetpoint    FlexString      `json:"cold_consign"`
	HeatSetpoint    FlexString      `json:"heat_consign"`
	ColdSpeed       FlexString      `json:"cold_speed"`
	HeatSpeed       FlexString      `json:"heat_speed"`
	AvailableSpeeds FlexString      `json:"availables_speeds"`
	Modes           string          `json:"modes"`
	Scene           string          `json:"scenary"`
	SleepTime       FlexString      `json:"sleep_time"`
	UnoccupiedMin   FlexString      `json:"min_temp_unoccupied"`
	UnoccupiedMax   FlexString      `json:"max_temp_unoccupied"`
	LocalTemp       FlexString      `json:"local_temp"`
	MinLimitCold    FlexString      `json:"min_limit_cold"`
	MaxLimitCold    FlexString      `json:"max_limit_cold"`
	MinLimitHeat    FlexString      `json:"min_limit_heat"`
	MaxLimitHeat    FlexString      `json:"max_limit_heat"`
	ConnectionDate  string          `json:"connection_date"`
	MachineErrors   json.RawMessage `json:"machine_errors,omitempty"`
	Firmware        string          `json:"firmware"`
	Brand           string          `json:"brand"`
	Units           FlexString      `json:"units"`
}

// PowerOn reports whether the unit is switched on.
func (s Snapshot) PowerOn() bool { return s.Power.Bool() }

// ModeCode returns the active mode code, or 0 if absent/unparseable.
func (s Snapshot) ModeCode() int {
	code, ok := s.Mode.Int()
	if !ok {
		return 0
	}
	return code
}

// Capabilities decodes the unit's mode-support bitmask. The zero
// CapabilitySet (nothing supported) is returned for malformed bitmasks.
func (s Snapshot) Capabilities() CapabilitySet {
	set, err := DecodeModes(s.Modes)
	if err != nil {
		return CapabilitySet{}
	}
	return set
}

// Field returns the snapshot's value for a writable field name. Used by the
// optimistic overlay to compare guesses against authoritative values.
func (s Snapshot) Field(name string) (string, bool) {
	switch name {
	case FieldPower:
		return s.Power.String(), true
	case FieldMode:
		return s.Mode.String(), true
	case FieldColdSetpoint:
		return s.ColdSetpoint.String(), true
	case FieldHeatSetpoint:
		return s.HeatSetpoint.String(), true
	case FieldColdSpeed:
		return s.ColdSpeed.String(), true
	case FieldHeatSpeed:
		return s.HeatSpeed.String(), true
	case FieldScene:
		return s.Scene, true
	case FieldSleepTime:
		return s.SleepTime.String(), true
	case FieldUnoccupiedMin:
		return s.UnoccupiedMin.String(), true
	case FieldUnoccupiedMax:
		return s.UnoccupiedMax.String(), true
	default:
		return "", false
	}
}

// WithField returns a copy of the snapshot with the named writable field
// replaced. This is how the optimistic overlay merges over a snapshot
// without mutating the authoritative value.
func (s Snapshot) WithField(name, value string) Snapshot {
	switch name {
	case FieldPower:
		s.Power = FlexString(value)
	case FieldMode:
		s.Mode = FlexString(value)
	case FieldColdSetpoint:
		s.ColdSetpoint = FlexString(value)
	case FieldHeatSetpoint:
		s.HeatSetpoint = FlexString(value)
	case FieldColdSpeed:
		s.ColdSpeed = FlexString(value)
	case FieldHeatSpeed:
		s.HeatSpeed = FlexString(value)
	case FieldScene:
		s.Scene = value
	case FieldSleepTime:
		s.SleepTime = FlexString(value)
	case FieldUnoccupiedMin:
		s.UnoccupiedMin = FlexString(value)
	case FieldUnoccupiedMax:
		s.UnoccupiedMax = FlexString(value)
	}
	return s
}

// timestampLayouts are the shapes connection_date has been observed in.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// LastSeen parses the unit's connection_date.
//
// Returns:
//   - time.Time: The parsed timestamp (UTC), zero when unavailable
//   - bool: Whether a timestamp was present and parseable
func (s Snapshot) LastSeen() (time.Time, bool) {
	raw := strings.TrimSpace(s.ConnectionDate)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// HasConnectionDate reports whether the backend supplied any last-seen
// value at all, parseable or not. An unparseable-but-present timestamp is
// treated as evidence of connectivity to avoid false offline alarms.
func (s Snapshot) HasConnectionDate() bool {
	return strings.TrimSpace(s.ConnectionDate) != ""
}
