// Package api serves the HTTP REST API and WebSocket stream for que-core.
//
// Endpoints live under /api/v1:
//   - POST /auth/token exchanges an API key for a short-lived JWT
//   - GET /systems and /systems/{serial} describe the synced air conditioners
//   - GET /systems/{serial}/zones and /attributes expose the attribute tree
//   - POST /systems/{serial}/commands sends a settings change to the cloud
//   - GET /systems/{serial}/history and /commands read the local history
//   - GET /ws streams attribute.changed and system.refreshed events
//
// # Authentication
//
// Every route except health, token and ws requires a Bearer token. The
// WebSocket endpoint takes the same token in ?token= because browsers cannot
// set headers on the upgrade request.
//
// # Graceful Degradation
//
// Without a history store the history routes answer 503; everything else
// keeps working.
package api
