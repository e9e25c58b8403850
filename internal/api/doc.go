// Package api implements the HTTP REST API and WebSocket server of the
// Victron flow bridge.
//
// This package provides:
//   - Read endpoints for the value cache, services on the bus and nodes
//   - Flow deployment, node input injection and notification injection
//   - Virtual device reconciliation on demand
//   - A WebSocket hub pushing node outputs and status changes
//   - Prometheus metrics on /metrics
//
// # Security
//
// When security.jwt.secret is set, every mutating route requires an HS256
// bearer token signed with it, and WebSocket connections require a
// single-use ticket obtained with such a token. Without a secret the API
// is open and should be bound to localhost.
//
// # Graceful Degradation
//
// The server runs while the bus is disconnected; reads return the cached
// state and node status shows the outage.
package api
