package system

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/que-core/internal/attribute"
	"github.com/nerrad567/que-core/internal/attrpath"
	"github.com/nerrad567/que-core/internal/schema"
)

// CommandType is the envelope type of a settings change.
const CommandType = "set-settings"

// Command is a single settings change for one system.
type Command struct {
	ID        string          `json:"id"`
	Serial    string          `json:"serial"`
	Path      string          `json:"path"`
	Key       string          `json:"key"`
	Value     attribute.Value `json:"value"`
	CreatedAt time.Time       `json:"created_at"`
}

// Payload returns the request body for the command endpoint:
//
//	{"command": {"type": "set-settings", "<key>": <value>}}
//
// A new map is built on every call.
func (c Command) Payload() map[string]any {
	return map[string]any{
		"command": map[string]any{
			"type": CommandType,
			c.Key:  c.Value.Interface(),
		},
	}
}

func (c Command) String() string {
	return fmt.Sprintf("%s: %s", c.Key, c.Value)
}

// BuildCommand builds a command setting path to value.
//
// The value is coerced to the kind of the attribute's current value, or to
// the catalog's declared kind when the current value is null. Fractional
// values are rejected for int attributes.
//
// Returns ErrAttributeNotFound if the path has not been populated,
// ErrImmutableAttribute if the attribute is read-only, and an error
// wrapping attribute.ErrTypeCoercion if the value does not fit.
func (s *System) BuildCommand(path string, value any) (Command, error) {
	a, ok := s.registry.Get(path)
	if !ok {
		return Command{}, fmt.Errorf("%w: %s", ErrAttributeNotFound, path)
	}
	if !a.Mutable() {
		return Command{}, fmt.Errorf("%w: %s", ErrImmutableAttribute, path)
	}

	kind := a.Value().Kind()
	if kind == attribute.KindNull {
		if e, ok := s.catalog.Lookup(path); ok {
			kind = e.Kind
		}
	}
	v, err := attribute.CoerceExact(value, kind)
	if err != nil {
		return Command{}, fmt.Errorf("%s: %w", path, err)
	}

	return Command{
		ID:        uuid.NewString(),
		Serial:    s.info.Serial,
		Path:      path,
		Key:       attrpath.CommandKey(path),
		Value:     v,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// BuildNamedCommand builds a command from a logical name such as "power".
func (s *System) BuildNamedCommand(name string, value any) (Command, error) {
	path, err := schema.CommandPath(name)
	if err != nil {
		return Command{}, err
	}
	return s.BuildCommand(path, value)
}

// BuildZoneCommand builds a zone-scoped command such as "cool_setpoint".
func (s *System) BuildZoneCommand(index int, name string, value any) (Command, error) {
	if index < 0 || index >= len(s.zones) {
		return Command{}, fmt.Errorf("%w: %d", ErrZoneOutOfRange, index)
	}
	path, err := schema.ZoneCommandPath(name, index)
	if err != nil {
		return Command{}, err
	}
	return s.BuildCommand(path, value)
}

// Send delivers a command through the configured sender.
// Returns ErrNoCommandSink if none is set.
func (s *System) Send(ctx context.Context, cmd Command) error {
	s.mu.RLock()
	sender := s.sender
	s.mu.RUnlock()
	if sender == nil {
		return ErrNoCommandSink
	}

	if err := sender.SendCommand(ctx, s.info.Serial, cmd.Payload()); err != nil {
		s.logger.Error("command failed", "serial", s.info.Serial, "command_id", cmd.ID, "key", cmd.Key, "error", err)
		return fmt.Errorf("sending command %s: %w", cmd.ID, err)
	}
	s.logger.Info("command sent", "serial", s.info.Serial, "command_id", cmd.ID, "key", cmd.Key, "value", cmd.Value.String())
	return nil
}
