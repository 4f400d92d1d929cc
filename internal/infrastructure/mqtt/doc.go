// Package mqtt provides MQTT connectivity for the DKN cloud bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Last Will and Testament (LWT) for bridge offline detection
//   - Connection health monitoring
//
// # Architecture
//
// The bridge is a publish-only MQTT participant. It mirrors the sync
// engine's view of each unit onto retained topics so that consumers
// (automations, dashboards, Home Assistant) see current state the moment
// they subscribe, without touching the cloud API themselves.
//
//	Cloud API ↔ Sync Engine → MQTT Broker → Consumers
//
// State and connectivity are published retained. The bridge's own
// availability is covered by the LWT on the status topic: a crash or
// network loss makes the broker flip it to offline without bridge
// involvement.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	pub := mqtt.NewPublisher(client, eng, logger)
//	eng.Subscribe(pub.Subscriber())
package mqtt
