package engine

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/nerrad567/dkn-cloud-bridge/internal/hvac"
)

// Fallback setpoint bounds when a snapshot carries no limits.
const (
	defaultMinTemp = 16.0
	defaultMaxTemp = 32.0
)

// Sleep timer and unoccupied-limit bounds, backend-defined.
const (
	sleepTimeMin  = 30
	sleepTimeMax  = 120
	sleepTimeStep = 10

	unoccupiedMinLow  = 12.0
	unoccupiedMinHigh = 22.0
	unoccupiedMaxLow  = 24.0
	unoccupiedMaxHigh = 34.0
)

type commandKind int

const (
	cmdPower commandKind = iota
	cmdMode
	cmdSetpoint
	cmdFanSpeed
	cmdScene
	cmdSleepTime
	cmdUnoccupiedMin
	cmdUnoccupiedMax
)

// Command is one requested device change. Build with the constructor
// functions; the zero value is invalid.
type Command struct {
	kind     commandKind
	boolVal  bool
	intVal   int
	floatVal float64
	strVal   string
	channel  *hvac.Channel
}

// PowerCommand switches the unit on or off.
func PowerCommand(on bool) Command { return Command{kind: cmdPower, boolVal: on} }

// ModeCommand selects an operating mode by code (1..8). Requesting
// ventilate resolves to whichever ventilate code the unit supports.
func ModeCommand(code int) Command { return Command{kind: cmdMode, intVal: code} }

// SetpointCommand sets the target temperature on the active mode's channel.
func SetpointCommand(temp float64) Command { return Command{kind: cmdSetpoint, floatVal: temp} }

// ChannelSetpointCommand sets the target temperature on an explicit
// channel. Only valid on heat-cool units with dual setpoint enabled.
func ChannelSetpointCommand(ch hvac.Channel, temp float64) Command {
	return Command{kind: cmdSetpoint, floatVal: temp, channel: &ch}
}

// FanSpeedCommand sets the fan speed on the active mode's channel.
func FanSpeedCommand(speed int) Command { return Command{kind: cmdFanSpeed, intVal: speed} }

// SceneCommand selects an occupancy scene (occupied, vacant, sleep).
func SceneCommand(scene string) Command { return Command{kind: cmdScene, strVal: scene} }

// SleepTimeCommand sets the sleep timer in minutes (30..120, step 10).
func SleepTimeCommand(minutes int) Command { return Command{kind: cmdSleepTime, intVal: minutes} }

// UnoccupiedMinCommand sets the vacant-scene heating floor.
func UnoccupiedMinCommand(temp float64) Command {
	return Command{kind: cmdUnoccupiedMin, floatVal: temp}
}

// UnoccupiedMaxCommand sets the vacant-scene cooling ceiling.
func UnoccupiedMaxCommand(temp float64) Command {
	return Command{kind: cmdUnoccupiedMax, floatVal: temp}
}

// CommandResult reports what a submitted command did.
type CommandResult struct {
	ID      string            // correlation id
	Applied bool              // false when the state already matched
	Fields  map[string]string // optimistic values recorded, by field name
}

// write is one wire operation a command plans: either an immediate
// machine-parameter event or a configuration field update.
type write struct {
	param string // event param (P1..P8); empty for field updates
	field string // field-update name; empty for events
	value string // wire value for events, overlay value always
	raw   any    // field-update payload value
}

// plan is a fully resolved command: the wire writes in order and the
// overlay entries to record once they all succeed.
type plan struct {
	writes  []write
	overlay map[string]string
}

// SubmitCommand executes one command against a device. Commands to the
// same device run strictly in submission order, one at a time; different
// devices proceed in parallel. A command whose target state already holds
// returns Applied=false without touching the network. A failed write
// records nothing optimistic and surfaces the transport's typed error.
func (e *Engine) SubmitCommand(ctx context.Context, deviceID string, cmd Command) (CommandResult, error) {
	release, err := e.acquireDevice(ctx, deviceID)
	if err != nil {
		return CommandResult{}, err
	}
	defer release()

	e.mu.Lock()
	st, ok := e.devices[deviceID]
	if !ok {
		e.mu.Unlock()
		return CommandResult{}, fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}
	effective := e.effectiveLocked(st)
	e.mu.Unlock()

	p, err := e.planCommand(effective, cmd)
	if err != nil {
		return CommandResult{}, err
	}

	result := CommandResult{ID: uuid.New().String(), Fields: p.overlay}

	if len(p.writes) == 0 {
		e.logger.Debug("command already satisfied, skipping",
			"device_id", deviceID, "command_id", result.ID)
		return result, nil
	}

	for _, w := range p.writes {
		if w.param != "" {
			err = e.client.SendEvent(ctx, deviceID, w.param, w.value)
		} else {
			err = e.client.UpdateField(ctx, deviceID, w.field, w.raw)
		}
		if err != nil {
			e.logger.Warn("command write failed",
				"device_id", deviceID, "command_id", result.ID, "error", err)
			return CommandResult{}, err
		}
	}
	result.Applied = true

	now := e.now()
	e.mu.Lock()
	for field, value := range p.overlay {
		st.ov.set(field, value, now)
	}
	state := e.effectiveLocked(st)
	e.mu.Unlock()

	e.notify([]Event{{
		Type:      EventState,
		DeviceID:  deviceID,
		State:     state,
		Source:    SourceCommand,
		CommandID: result.ID,
	}})
	e.refresh.schedule(deviceID)

	return result, nil
}

// acquireDevice takes the device's FIFO slot. Each caller chains behind
// the previous tail and exposes its own completion channel; order of
// execution is exactly order of submission. On cancellation while queued,
// the slot is forwarded so successors never deadlock.
func (e *Engine) acquireDevice(ctx context.Context, deviceID string) (func(), error) {
	e.mu.Lock()
	st, ok := e.devices[deviceID]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}
	prev := st.tail
	mine := make(chan struct{})
	st.tail = mine
	e.mu.Unlock()

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			go func() {
				<-prev
				close(mine)
			}()
			return nil, ctx.Err()
		}
	}
	return func() { close(mine) }, nil
}

// planCommand resolves a command against the device's effective state and
// capabilities into wire writes. An empty write list means the state
// already matches.
func (e *Engine) planCommand(state EffectiveState, cmd Command) (plan, error) {
	snap := state.Snapshot
	caps := snap.Capabilities()

	p := plan{overlay: make(map[string]string)}

	// Active control commands pull the unit out of an away scene first.
	exitAway := func() {
		if snap.Scene != "" && snap.Scene != hvac.SceneOccupied {
			p.writes = append(p.writes, write{field: hvac.FieldScene, value: hvac.SceneOccupied, raw: hvac.SceneOccupied})
			p.overlay[hvac.FieldScene] = hvac.SceneOccupied
		}
	}

	switch cmd.kind {
	case cmdPower:
		target := "0"
		if cmd.boolVal {
			target = "1"
		}
		if snap.PowerOn() == cmd.boolVal {
			return plan{overlay: map[string]string{}}, nil
		}
		if cmd.boolVal {
			exitAway()
		}
		p.writes = append(p.writes, write{param: hvac.ParamPower, value: target})
		p.overlay[hvac.FieldPower] = target

	case cmdMode:
		code, err := e.resolveMode(caps, cmd.intVal)
		if err != nil {
			return plan{}, err
		}
		target := strconv.Itoa(code)
		if snap.PowerOn() && snap.Mode.String() == target {
			return plan{overlay: map[string]string{}}, nil
		}
		exitAway()
		if !snap.PowerOn() {
			p.writes = append(p.writes, write{param: hvac.ParamPower, value: "1"})
			p.overlay[hvac.FieldPower] = "1"
		}
		if snap.Mode.String() != target {
			p.writes = append(p.writes, write{param: hvac.ParamMode, value: target})
			p.overlay[hvac.FieldMode] = target
		}

	case cmdSetpoint:
		mode := snap.ModeCode()
		ch := hvac.ModeChannel(mode)
		if cmd.channel != nil {
			if mode != hvac.ModeHeatCool || !e.opts.EnableDualSetpoint {
				return plan{}, fmt.Errorf("%w: explicit channel requires heat-cool with dual setpoint enabled", ErrInvalidCommand)
			}
			ch = *cmd.channel
		} else if !hvac.ModeExposesTemperature(mode) {
			return plan{}, fmt.Errorf("%w: no temperature control in mode %d", ErrControlUnavailable, mode)
		}

		lo, hi := e.setpointLimits(snap, ch)
		// Backend quantises to whole degrees and expects "N.0".
		temp := hvac.ClampQuantize(cmd.floatVal, lo, hi, 1)
		wire := fmt.Sprintf("%d.0", int(temp))

		param, field := hvac.ParamColdSetpoint, hvac.FieldColdSetpoint
		if ch == hvac.ChannelHeat {
			param, field = hvac.ParamHeatSetpoint, hvac.FieldHeatSetpoint
		}
		if cur, _ := snap.Field(field); sameTemp(cur, wire) {
			return plan{overlay: map[string]string{}}, nil
		}
		exitAway()
		p.writes = append(p.writes, write{param: param, value: wire})
		p.overlay[field] = wire

	case cmdFanSpeed:
		mode := snap.ModeCode()
		if !hvac.ModeExposesFan(mode) {
			return plan{}, fmt.Errorf("%w: no fan control in mode %d", ErrControlUnavailable, mode)
		}
		max := fanSpeedMax(snap)
		if cmd.intVal < 1 || cmd.intVal > max {
			return plan{}, fmt.Errorf("%w: fan speed %d out of range 1..%d", ErrInvalidCommand, cmd.intVal, max)
		}
		target := strconv.Itoa(cmd.intVal)

		param, field := hvac.ParamColdSpeed, hvac.FieldColdSpeed
		if hvac.ModeChannel(mode) == hvac.ChannelHeat {
			param, field = hvac.ParamHeatSpeed, hvac.FieldHeatSpeed
		}
		if cur, _ := snap.Field(field); normalizeNumeric(cur) == target {
			return plan{overlay: map[string]string{}}, nil
		}
		exitAway()
		p.writes = append(p.writes, write{param: param, value: target})
		p.overlay[field] = target

	case cmdScene:
		switch cmd.strVal {
		case hvac.SceneOccupied, hvac.SceneVacant, hvac.SceneSleep:
		default:
			return plan{}, fmt.Errorf("%w: unknown scene %q", ErrInvalidCommand, cmd.strVal)
		}
		if snap.Scene == cmd.strVal {
			return plan{overlay: map[string]string{}}, nil
		}
		p.writes = append(p.writes, write{field: hvac.FieldScene, value: cmd.strVal, raw: cmd.strVal})
		p.overlay[hvac.FieldScene] = cmd.strVal

	case cmdSleepTime:
		minutes := int(hvac.ClampQuantize(float64(cmd.intVal), sleepTimeMin, sleepTimeMax, sleepTimeStep))
		target := strconv.Itoa(minutes)
		if cur, _ := snap.Field(hvac.FieldSleepTime); normalizeNumeric(cur) == target {
			return plan{overlay: map[string]string{}}, nil
		}
		p.writes = append(p.writes, write{field: hvac.FieldSleepTime, value: target, raw: minutes})
		p.overlay[hvac.FieldSleepTime] = target

	case cmdUnoccupiedMin:
		return e.planUnoccupied(snap, hvac.FieldUnoccupiedMin, cmd.floatVal, unoccupiedMinLow, unoccupiedMinHigh)

	case cmdUnoccupiedMax:
		return e.planUnoccupied(snap, hvac.FieldUnoccupiedMax, cmd.floatVal, unoccupiedMaxLow, unoccupiedMaxHigh)

	default:
		return plan{}, fmt.Errorf("%w: unknown command kind", ErrInvalidCommand)
	}

	return p, nil
}

func (e *Engine) planUnoccupied(snap hvac.Snapshot, field string, requested, lo, hi float64) (plan, error) {
	value := int(hvac.ClampQuantize(requested, lo, hi, 1))
	target := strconv.Itoa(value)
	if cur, _ := snap.Field(field); normalizeNumeric(cur) == target {
		return plan{overlay: map[string]string{}}, nil
	}
	return plan{
		writes:  []write{{field: field, value: target, raw: value}},
		overlay: map[string]string{field: target},
	}, nil
}

// resolveMode validates a requested mode against capabilities, applying
// the ventilate tie-break and the heat-cool opt-in gate.
func (e *Engine) resolveMode(caps hvac.CapabilitySet, requested int) (int, error) {
	switch requested {
	case hvac.ModeVentilate, hvac.ModeVentilateHeat:
		code := caps.VentilateCode()
		if code == 0 {
			return 0, fmt.Errorf("%w: ventilate", ErrUnsupportedMode)
		}
		return code, nil
	case hvac.ModeHeatCool:
		if !e.opts.EnableDualSetpoint {
			return 0, fmt.Errorf("%w: heat-cool requires dual-setpoint opt-in", ErrUnsupportedMode)
		}
	}
	if requested < hvac.ModeCool || requested > hvac.ModeVentilateHeat {
		return 0, fmt.Errorf("%w: code %d", ErrUnsupportedMode, requested)
	}
	if !caps.Supports(requested) {
		return 0, fmt.Errorf("%w: code %d", ErrUnsupportedMode, requested)
	}
	return requested, nil
}

// setpointLimits picks the channel's limits from the snapshot, falling
// back to conservative defaults when absent.
func (e *Engine) setpointLimits(snap hvac.Snapshot, ch hvac.Channel) (float64, float64) {
	var loRaw, hiRaw hvac.FlexString
	if ch == hvac.ChannelHeat {
		loRaw, hiRaw = snap.MinLimitHeat, snap.MaxLimitHeat
	} else {
		loRaw, hiRaw = snap.MinLimitCold, snap.MaxLimitCold
	}
	lo, ok := loRaw.Float()
	if !ok {
		lo = defaultMinTemp
	}
	hi, ok := hiRaw.Float()
	if !ok {
		hi = defaultMaxTemp
	}
	return lo, hi
}

// fanSpeedMax reads the advertised speed count, defaulting to 3.
func fanSpeedMax(snap hvac.Snapshot) int {
	n, ok := snap.AvailableSpeeds.Int()
	if !ok || n < 1 {
		return 3
	}
	return n
}

// sameTemp compares two temperature renderings numerically so "24",
// "24.0" and "24,0" all match.
func sameTemp(a, b string) bool {
	fa, oka := hvac.FlexString(a).Float()
	fb, okb := hvac.FlexString(b).Float()
	return oka && okb && fa == fb
}

// normalizeNumeric renders a backend numeric string canonically for
// equality checks ("2.0" == "2"). Non-numeric input passes through.
func normalizeNumeric(s string) string {
	if n, ok := hvac.FlexString(s).Int(); ok {
		return strconv.Itoa(n)
	}
	return s
}
