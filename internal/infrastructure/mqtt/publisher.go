package mqtt

import (
	"encoding/json"
	"time"

	"github.com/nerrad567/dkn-cloud-bridge/internal/engine"
	"github.com/nerrad567/dkn-cloud-bridge/internal/hvac"
	"github.com/nerrad567/dkn-cloud-bridge/internal/infrastructure/logging"
)

// broker is the publishing surface the Publisher needs from Client.
type broker interface {
	PublishRetained(topic string, payload []byte) error
	SetOnConnect(callback func())
}

// stateSource is the engine surface used to republish after reconnect.
type stateSource interface {
	Devices() []string
	EffectiveState(deviceID string) (engine.EffectiveState, error)
}

// statePayload is the JSON document published to a unit's state topic.
// Loosely typed snapshot fields are normalised to proper JSON types so
// consumers never see the backend's string/number inconsistencies.
type statePayload struct {
	DeviceID     string   `json:"device_id"`
	Name         string   `json:"name,omitempty"`
	Power        bool     `json:"power"`
	Mode         int      `json:"mode"`
	ColdSetpoint *float64 `json:"cold_setpoint,omitempty"`
	HeatSetpoint *float64 `json:"heat_setpoint,omitempty"`
	ColdSpeed    *int     `json:"cold_speed,omitempty"`
	HeatSpeed    *int     `json:"heat_speed,omitempty"`
	Scene        string   `json:"scene,omitempty"`
	LocalTemp    *float64 `json:"local_temp,omitempty"`
	Connectivity string   `json:"connectivity"`
	Pending      []string `json:"pending,omitempty"`
	Source       string   `json:"source,omitempty"`
	CommandID    string   `json:"command_id,omitempty"`
	ReceivedAt   string   `json:"received_at,omitempty"`
	PublishedAt  string   `json:"published_at"`
}

// connectivityPayload is the JSON document published to a unit's
// connectivity topic.
type connectivityPayload struct {
	DeviceID     string `json:"device_id"`
	Connectivity string `json:"connectivity"`
	PublishedAt  string `json:"published_at"`
}

// Publisher mirrors engine events onto retained MQTT topics.
//
// State changes land on dknbridge/state/dkn/{id}, connectivity
// transitions on dknbridge/connectivity/dkn/{id}. Both are retained so
// late subscribers immediately see the current picture. After a broker
// reconnect, every known unit is republished in case retained messages
// were lost to broker restart.
type Publisher struct {
	client broker
	source stateSource
	logger *logging.Logger
	now    func() time.Time
}

// NewPublisher creates a Publisher and registers the reconnect hook on
// the client.
//
// Parameters:
//   - client: Connected MQTT client
//   - source: Engine to read state from when republishing
//   - logger: Structured logger
//
// Returns:
//   - *Publisher: Ready to be wired via Subscriber()
func NewPublisher(client broker, source stateSource, logger *logging.Logger) *Publisher {
	p := &Publisher{
		client: client,
		source: source,
		logger: logger.With("component", "mqtt_publisher"),
		now:    time.Now,
	}
	client.SetOnConnect(p.republishAll)
	return p
}

// Subscriber returns the engine event callback. Wire it with
// eng.Subscribe(pub.Subscriber()).
//
// Publish failures are logged and dropped: the broker being down must
// never stall the sync engine, and retained republish on reconnect
// repairs the gap.
func (p *Publisher) Subscriber() func(engine.Event) {
	return func(ev engine.Event) {
		switch ev.Type {
		case engine.EventState:
			p.publishState(ev.DeviceID, ev.State, ev.Source, ev.CommandID)
		case engine.EventConnectivity:
			p.publishConnectivity(ev.DeviceID, ev.State.Connectivity)
		}
	}
}

// republishAll pushes current state for every known unit. Called on every
// broker (re)connect.
func (p *Publisher) republishAll() {
	for _, id := range p.source.Devices() {
		state, err := p.source.EffectiveState(id)
		if err != nil {
			continue
		}
		p.publishState(id, state, "", "")
		p.publishConnectivity(id, state.Connectivity)
	}
}

func (p *Publisher) publishState(deviceID string, state engine.EffectiveState, source, commandID string) {
	payload, err := json.Marshal(p.buildState(deviceID, state, source, commandID))
	if err != nil {
		p.logger.Error("marshal state payload", "device_id", deviceID, "error", err)
		return
	}
	topic := Topics{}.DeviceState(deviceID)
	if err := p.client.PublishRetained(topic, payload); err != nil {
		p.logger.Warn("state publish dropped", "topic", topic, "error", err)
	}
}

func (p *Publisher) publishConnectivity(deviceID string, status engine.Status) {
	payload, err := json.Marshal(connectivityPayload{
		DeviceID:     deviceID,
		Connectivity: status.String(),
		PublishedAt:  p.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		p.logger.Error("marshal connectivity payload", "device_id", deviceID, "error", err)
		return
	}
	topic := Topics{}.DeviceConnectivity(deviceID)
	if err := p.client.PublishRetained(topic, payload); err != nil {
		p.logger.Warn("connectivity publish dropped", "topic", topic, "error", err)
	}
}

func (p *Publisher) buildState(deviceID string, state engine.EffectiveState, source, commandID string) statePayload {
	snap := state.Snapshot
	out := statePayload{
		DeviceID:     deviceID,
		Name:         snap.Name,
		Power:        snap.PowerOn(),
		Mode:         snap.ModeCode(),
		Scene:        snap.Scene,
		Connectivity: state.Connectivity.String(),
		Pending:      state.Pending,
		Source:       source,
		CommandID:    commandID,
		PublishedAt:  p.now().UTC().Format(time.RFC3339),
	}
	if !state.ReceivedAt.IsZero() {
		out.ReceivedAt = state.ReceivedAt.UTC().Format(time.RFC3339)
	}
	out.ColdSetpoint = floatField(snap.ColdSetpoint)
	out.HeatSetpoint = floatField(snap.HeatSetpoint)
	out.ColdSpeed = intField(snap.ColdSpeed)
	out.HeatSpeed = intField(snap.HeatSpeed)
	out.LocalTemp = floatField(snap.LocalTemp)
	return out
}

func floatField(f hvac.FlexString) *float64 {
	v, ok := f.Float()
	if !ok {
		return nil
	}
	return &v
}

func intField(f hvac.FlexString) *int {
	v, ok := f.Int()
	if !ok {
		return nil
	}
	return &v
}
