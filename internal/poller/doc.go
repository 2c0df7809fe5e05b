// Package poller drives Systems from a que.Source.
//
// Sync discovers the account's systems, Refresh fetches and populates one
// system, RefreshAll refreshes every system concurrently and Run repeats
// that on a ticker. Attribute changes and refresh results fan out to
// registered Listeners (MQTT, InfluxDB, history, WebSocket).
//
// Commands arrive as CommandRequest values and are resolved, coerced and
// sent through Execute.
package poller
