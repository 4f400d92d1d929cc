package mqtt

import "fmt"

// Topic prefixes for all bridge traffic.
//
// The scheme is flat: dknbridge/{category}/dkn/{device_id}. The fixed
// "dkn" protocol segment leaves room for other cloud backends to share a
// broker without topic collisions.
const (
	// TopicPrefix is the base for all bridge topics.
	TopicPrefix = "dknbridge"

	// ProtocolSegment identifies the DKN cloud backend in device topics.
	ProtocolSegment = "dkn"
)

// Topics provides builders for bridge MQTT topics.
// Using these helpers keeps topic naming consistent across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.DeviceState("12345")
//	// Returns: "dknbridge/state/dkn/12345"
type Topics struct{}

// DeviceState returns the retained topic carrying a unit's effective state.
//
// Example: dknbridge/state/dkn/12345
func (Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, ProtocolSegment, deviceID)
}

// DeviceConnectivity returns the retained topic carrying a unit's
// online/offline status.
//
// Example: dknbridge/connectivity/dkn/12345
func (Topics) DeviceConnectivity(deviceID string) string {
	return fmt.Sprintf("%s/connectivity/%s/%s", TopicPrefix, ProtocolSegment, deviceID)
}

// BridgeStatus returns the bridge availability topic. The LWT publishes
// here on unexpected disconnect.
//
// Example: dknbridge/status
func (Topics) BridgeStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefix)
}

// AllDeviceStates returns a pattern matching every unit's state topic.
//
// Pattern: dknbridge/state/dkn/+
func (Topics) AllDeviceStates() string {
	return fmt.Sprintf("%s/state/%s/+", TopicPrefix, ProtocolSegment)
}

// AllDeviceConnectivity returns a pattern matching every unit's
// connectivity topic.
//
// Pattern: dknbridge/connectivity/dkn/+
func (Topics) AllDeviceConnectivity() string {
	return fmt.Sprintf("%s/connectivity/%s/+", TopicPrefix, ProtocolSegment)
}
