// Package history keeps a local SQLite record of attribute transitions and
// of the commands sent to each system.
//
// Recorder is a poller listener that batches changes off the polling path.
// Repository is also used directly by the HTTP API for queries and for the
// command log.
package history
