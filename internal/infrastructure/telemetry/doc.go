// Package telemetry provides InfluxDB connectivity for Gatewise Core.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, domain-specific write helpers and health monitoring.
//
// # Purpose
//
// This package handles time-series data storage for:
//   - Barrier command outcomes and actuation latency
//   - Plate capture confidence
//   - Device connectivity transitions
//
// # Usage
//
//	cfg := config.TelemetryConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "gatewise",
//	    Bucket: "metrics",
//	}
//
//	client, err := telemetry.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.ObserveCapture("cam-entry-01", 0.94)
//
// The Client satisfies both the hardware manager's and the LPR
// manager's Observer interfaces, so a single instance is wired into
// both at startup.
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a
// callback. Connection and health check errors are returned directly.
package telemetry
