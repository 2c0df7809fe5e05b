package que

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/tidwall/jsonc"
)

// DefaultReplaySerial is the serial reported by a ReplaySource when none is configured.
const DefaultReplaySerial = "REPLAY"

// SentCommand is a command captured by a ReplaySource.
type SentCommand struct {
	Serial  string
	Payload map[string]any
}

// ReplaySource serves a status document from a local file instead of the
// cloud API. The file may contain comments and trailing commas. It is
// re-read on every LatestStatus call so edits show up on the next poll.
//
// Commands are recorded rather than sent.
type ReplaySource struct {
	path   string
	serial string

	mu   sync.Mutex
	sent []SentCommand
}

// Ensure ReplaySource implements Source and Sender.
var (
	_ Source = (*ReplaySource)(nil)
	_ Sender = (*ReplaySource)(nil)
)

// NewReplaySource creates a source that replays the document at path as
// the status of a single system.
func NewReplaySource(path, serial string) *ReplaySource {
	if serial == "" {
		serial = DefaultReplaySerial
	}
	return &ReplaySource{path: path, serial: serial}
}

// ListSystems returns the single replayed system.
func (r *ReplaySource) ListSystems(context.Context) ([]ACSystem, error) {
	return []ACSystem{{
		Serial:      r.serial,
		Description: "replay " + r.path,
		Type:        "replay",
	}}, nil
}

// LatestStatus reads and decodes the replay file.
func (r *ReplaySource) LatestStatus(ctx context.Context, serial string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if serial != r.serial {
		return nil, fmt.Errorf("%w: %s", ErrSystemNotFound, serial)
	}

	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("reading replay file: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidResponse, r.path, err)
	}
	return doc, nil
}

// SendCommand records the payload.
func (r *ReplaySource) SendCommand(_ context.Context, serial string, payload map[string]any) error {
	if serial != r.serial {
		return fmt.Errorf("%w: %s", ErrSystemNotFound, serial)
	}
	r.mu.Lock()
	r.sent = append(r.sent, SentCommand{Serial: serial, Payload: payload})
	r.mu.Unlock()
	return nil
}

// Sent returns a copy of the commands recorded so far.
func (r *ReplaySource) Sent() []SentCommand {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SentCommand, len(r.sent))
	copy(out, r.sent)
	return out
}
