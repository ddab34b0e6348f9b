// Package api implements the operator HTTP API and WebSocket server for
// NovaCloud Core.
//
// This package provides:
//   - REST endpoints for device inventory, sensor data queries, strategy
//     trigger logs, and command dispatch
//   - WebSocket hub for real-time ingestion and rule engine event streams
//   - Static bearer-token authentication with constant-time comparison
//   - Middleware stack (request ID, logging, recovery, body size limit)
//
// # Architecture
//
// The API server is a read-mostly surface over the device registry and
// the SQLite repositories. The only writes it performs are command
// publications: POST command/ping endpoints forward payloads to the MQTT
// bridge, which owns the device command topics. Ingestion events reach
// WebSocket clients through the Hub, which the telemetry normalizer and
// the strategy engine call as broadcasters.
//
// # Graceful Degradation
//
// The server operates without a command publisher — reads and WebSocket
// connections work, only command dispatch returns 503. This enables
// testing and partial operation when MQTT is down.
package api
