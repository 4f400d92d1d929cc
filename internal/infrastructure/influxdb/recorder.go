package influxdb

import (
	"time"

	"github.com/nerrad567/dkn-cloud-bridge/internal/engine"
	"github.com/nerrad567/dkn-cloud-bridge/internal/hvac"
)

// Measurement names.
const (
	// MeasurementState holds climate telemetry per state change.
	MeasurementState = "hvac_state"

	// MeasurementConnectivity holds online/offline transitions.
	MeasurementConnectivity = "hvac_connectivity"
)

// pointWriter is the write surface the Recorder needs from Client.
type pointWriter interface {
	WritePoint(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time)
}

// Recorder turns engine events into InfluxDB points.
//
// State changes become hvac_state points tagged by device and source,
// carrying whatever numeric fields the snapshot could supply. Missing
// or unparseable values are simply omitted; the backend's loose typing
// must not poison the series. Connectivity transitions become
// hvac_connectivity points with a 0/1 online field for easy graphing.
type Recorder struct {
	writer pointWriter
	now    func() time.Time
}

// NewRecorder creates a Recorder writing through the given client.
// Async write failures surface through the client's SetOnError callback,
// not here.
func NewRecorder(writer pointWriter) *Recorder {
	return &Recorder{
		writer: writer,
		now:    time.Now,
	}
}

// Subscriber returns the engine event callback. Wire it with
// eng.Subscribe(rec.Subscriber()).
func (r *Recorder) Subscriber() func(engine.Event) {
	return func(ev engine.Event) {
		switch ev.Type {
		case engine.EventState:
			r.recordState(ev)
		case engine.EventConnectivity:
			r.recordConnectivity(ev)
		}
	}
}

func (r *Recorder) recordState(ev engine.Event) {
	snap := ev.State.Snapshot

	tags := map[string]string{
		"device_id": ev.DeviceID,
	}
	if ev.Source != "" {
		tags["source"] = ev.Source
	}

	fields := map[string]interface{}{
		"power": boolField(snap.PowerOn()),
		"mode":  snap.ModeCode(),
	}
	addFloat(fields, "local_temp", snap.LocalTemp)
	addFloat(fields, "cold_setpoint", snap.ColdSetpoint)
	addFloat(fields, "heat_setpoint", snap.HeatSetpoint)
	addInt(fields, "cold_speed", snap.ColdSpeed)
	addInt(fields, "heat_speed", snap.HeatSpeed)

	r.writer.WritePoint(MeasurementState, tags, fields, r.pointTime(ev))
}

func (r *Recorder) recordConnectivity(ev engine.Event) {
	online := 0
	if ev.State.Connectivity == engine.StatusOnline {
		online = 1
	}

	r.writer.WritePoint(MeasurementConnectivity,
		map[string]string{"device_id": ev.DeviceID},
		map[string]interface{}{"online": online},
		r.pointTime(ev),
	)
}

// pointTime prefers the snapshot arrival time so points line up with what
// the cloud reported rather than when we processed it.
func (r *Recorder) pointTime(ev engine.Event) time.Time {
	if !ev.State.ReceivedAt.IsZero() {
		return ev.State.ReceivedAt
	}
	return r.now()
}

func addFloat(fields map[string]interface{}, name string, f hvac.FlexString) {
	if v, ok := f.Float(); ok {
		fields[name] = v
	}
}

func addInt(fields map[string]interface{}, name string, f hvac.FlexString) {
	if v, ok := f.Int(); ok {
		fields[name] = v
	}
}

func boolField(b bool) int {
	if b {
		return 1
	}
	return 0
}
