// Package engine is the synchronization core between the cloud backend and
// everything downstream (MQTT, HTTP API, history, telemetry).
//
// The backend is poll-only and eventually consistent: a write acknowledged
// by the cloud takes a while to show up in snapshots, and snapshots arrive
// on a slow schedule. The engine bridges that gap with three cooperating
// pieces:
//
//   - An optimistic overlay: every successful write records the guessed
//     value per field with a timestamp. Reads merge the overlay over the
//     last authoritative snapshot; entries expire on a short TTL and are
//     confirmed or dropped when fresh snapshots arrive.
//
//   - A per-device command serializer: writes to one device execute
//     strictly in submission order, one in flight at a time, while
//     different devices proceed in parallel. Redundant commands
//     short-circuit without touching the network.
//
//   - A poll coordinator: fetches all snapshots on a fixed interval and on
//     demand, reconciles the overlay, and tracks per-device connectivity
//     with a staleness threshold and an offline debounce so a single
//     missed heartbeat never flaps the state.
//
// Downstream consumers subscribe to change events; the engine never knows
// who is listening.
package engine
