// Package api implements the HTTP REST API and WebSocket server for the
// Limitimer bridge.
//
// This package provides:
//   - REST endpoints for device state, actions, resync and the journal
//   - WebSocket hub streaming field changes and beep pulses
//   - Middleware stack (request ID, logging, recovery, body limit)
//
// # Routes
//
//	GET  /api/v1/health
//	GET  /api/v1/devices
//	GET  /api/v1/devices/{key}
//	GET  /api/v1/devices/{key}/state
//	POST /api/v1/devices/{key}/actions/{action}
//	POST /api/v1/devices/{key}/text
//	POST /api/v1/devices/{key}/resync
//	GET  /api/v1/journal
//	GET  /ws
//
// # Graceful Degradation
//
// The server operates without a journal; GET /api/v1/journal then answers
// 503. Commands to a device whose link is down answer 503 as well, while
// reads keep returning the last known state.
package api
