// Package auth authenticates HTTP API clients.
//
// Clients hold an API key. Keys are configured as Argon2id PHC hashes with
// a role (viewer or operator). A client exchanges its key for a short-lived
// HS256 JWT, which then authorises every request by signature alone.
//
// The role-permission mapping is static: viewers read, operators may also
// send commands.
package auth
