// Package api implements the HTTP REST API and WebSocket server for Gatewise Core.
//
// This package provides:
//   - REST endpoints for device listing, barrier commands, and ledger queries
//   - WebSocket hub for real-time barrier state and plate capture broadcasts
//   - Middleware stack (request ID, logging, recovery, body size limit)
//
// # Architecture
//
// The API server sits between operator interfaces (lane consoles, the
// facility dashboard) and the hardware and LPR managers. Commands flow
// from the API into the managers, which own all device communication;
// state changes and plate captures flow back through manager callbacks
// and are broadcast to WebSocket clients.
//
// # Graceful Degradation
//
// The server operates without MQTT and without telemetry. Reads,
// commands and WebSocket connections work regardless; only the optional
// bus and metrics fan-outs are skipped.
package api
