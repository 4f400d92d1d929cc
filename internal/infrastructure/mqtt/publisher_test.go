package mqtt

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nerrad567/dkn-cloud-bridge/internal/engine"
	"github.com/nerrad567/dkn-cloud-bridge/internal/hvac"
	"github.com/nerrad567/dkn-cloud-bridge/internal/infrastructure/logging"
)

type publishCall struct {
	topic   string
	payload []byte
}

// fakeBroker records retained publishes and captures the reconnect hook.
type fakeBroker struct {
	calls     []publishCall
	failWith  error
	onConnect func()
}

func (f *fakeBroker) PublishRetained(topic string, payload []byte) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.calls = append(f.calls, publishCall{topic: topic, payload: payload})
	return nil
}

func (f *fakeBroker) SetOnConnect(callback func()) { f.onConnect = callback }

// fakeSource serves canned effective states for republishing.
type fakeSource struct {
	states map[string]engine.EffectiveState
}

func (f *fakeSource) Devices() []string {
	ids := make([]string, 0, len(f.states))
	for id := range f.states {
		ids = append(ids, id)
	}
	return ids
}

func (f *fakeSource) EffectiveState(deviceID string) (engine.EffectiveState, error) {
	st, ok := f.states[deviceID]
	if !ok {
		return engine.EffectiveState{}, errors.New("unknown device")
	}
	return st, nil
}

func discardLogger() *logging.Logger {
	return &logging.Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func testState() engine.EffectiveState {
	return engine.EffectiveState{
		Snapshot: hvac.Snapshot{
			ID:           "dev-1",
			Name:         "Living Room",
			Power:        "1",
			Mode:         "2",
			HeatSetpoint: "21.0",
			HeatSpeed:    "2",
			LocalTemp:    "19,5",
			Scene:        hvac.SceneOccupied,
		},
		Pending:      []string{hvac.FieldPower},
		Connectivity: engine.StatusOnline,
		ReceivedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestPublisher_StateEvent(t *testing.T) {
	fb := &fakeBroker{}
	pub := NewPublisher(fb, &fakeSource{}, discardLogger())

	sub := pub.Subscriber()
	sub(engine.Event{
		Type:      engine.EventState,
		DeviceID:  "dev-1",
		State:     testState(),
		Source:    engine.SourceCommand,
		CommandID: "cmd-42",
	})

	if len(fb.calls) != 1 {
		t.Fatalf("publishes = %d, want 1", len(fb.calls))
	}
	if fb.calls[0].topic != "dknbridge/state/dkn/dev-1" {
		t.Errorf("topic = %q", fb.calls[0].topic)
	}

	var got statePayload
	if err := json.Unmarshal(fb.calls[0].payload, &got); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if !got.Power {
		t.Error("power not normalised to bool")
	}
	if got.Mode != 2 {
		t.Errorf("mode = %d, want 2", got.Mode)
	}
	if got.HeatSetpoint == nil || *got.HeatSetpoint != 21.0 {
		t.Errorf("heat_setpoint = %v, want 21", got.HeatSetpoint)
	}
	if got.LocalTemp == nil || *got.LocalTemp != 19.5 {
		t.Errorf("local_temp = %v, want 19.5 (comma decimal)", got.LocalTemp)
	}
	if got.CommandID != "cmd-42" || got.Source != engine.SourceCommand {
		t.Errorf("command attribution lost: %+v", got)
	}
	if got.Connectivity != "online" {
		t.Errorf("connectivity = %q", got.Connectivity)
	}
	if len(got.Pending) != 1 || got.Pending[0] != hvac.FieldPower {
		t.Errorf("pending = %v", got.Pending)
	}
}

func TestPublisher_ConnectivityEvent(t *testing.T) {
	fb := &fakeBroker{}
	pub := NewPublisher(fb, &fakeSource{}, discardLogger())

	state := testState()
	state.Connectivity = engine.StatusOffline
	pub.Subscriber()(engine.Event{
		Type:     engine.EventConnectivity,
		DeviceID: "dev-1",
		State:    state,
		Source:   engine.SourcePoll,
	})

	if len(fb.calls) != 1 {
		t.Fatalf("publishes = %d, want 1", len(fb.calls))
	}
	if fb.calls[0].topic != "dknbridge/connectivity/dkn/dev-1" {
		t.Errorf("topic = %q", fb.calls[0].topic)
	}

	var got connectivityPayload
	if err := json.Unmarshal(fb.calls[0].payload, &got); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if got.Connectivity != "offline" {
		t.Errorf("connectivity = %q, want offline", got.Connectivity)
	}
}

func TestPublisher_RepublishOnReconnect(t *testing.T) {
	fb := &fakeBroker{}
	source := &fakeSource{states: map[string]engine.EffectiveState{
		"dev-1": testState(),
	}}
	NewPublisher(fb, source, discardLogger())

	if fb.onConnect == nil {
		t.Fatal("reconnect hook not registered")
	}
	fb.onConnect()

	// One state plus one connectivity publish per device.
	if len(fb.calls) != 2 {
		t.Fatalf("publishes = %d, want 2", len(fb.calls))
	}
	topics := map[string]bool{}
	for _, call := range fb.calls {
		topics[call.topic] = true
	}
	if !topics["dknbridge/state/dkn/dev-1"] || !topics["dknbridge/connectivity/dkn/dev-1"] {
		t.Errorf("unexpected topics: %v", topics)
	}
}

func TestPublisher_BrokerFailureIsSwallowed(t *testing.T) {
	fb := &fakeBroker{failWith: ErrNotConnected}
	pub := NewPublisher(fb, &fakeSource{}, discardLogger())

	// Must not panic or propagate; the engine's dispatch is synchronous.
	pub.Subscriber()(engine.Event{
		Type:     engine.EventState,
		DeviceID: "dev-1",
		State:    testState(),
		Source:   engine.SourcePoll,
	})
}
