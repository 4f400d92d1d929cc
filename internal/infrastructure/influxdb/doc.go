// Package influxdb provides time-series telemetry recording for the
// DKN cloud bridge.
//
// This package manages:
//   - Connection to InfluxDB v2 with token authentication
//   - Non-blocking batched writes of climate telemetry
//   - Health monitoring
//
// # Architecture
//
// Telemetry is strictly write-only and best-effort. The Recorder
// subscribes to engine events and turns each state change into a point
// in the hvac_state measurement, each connectivity transition into a
// point in hvac_connectivity. Writes are batched by the client library
// and flushed asynchronously; a slow or absent InfluxDB never stalls
// the sync engine.
//
// Recent-history queries are served from SQLite, not from here. InfluxDB
// exists for long-term trends and dashboards (Grafana), where retention
// and downsampling are the server's problem.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	rec := influxdb.NewRecorder(client)
//	eng.Subscribe(rec.Subscriber())
package influxdb
