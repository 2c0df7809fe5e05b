package poller

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/que-core/internal/system"
)

var (
	// ErrUnknownSystem is returned for a serial the poller has not synced.
	ErrUnknownSystem = errors.New("poller: unknown system")

	// ErrInvalidRequest is returned when a CommandRequest names no target.
	ErrInvalidRequest = errors.New("poller: invalid command request")
)

// CommandRequest is a settings change as received from MQTT or the HTTP API.
//
// Exactly one target form is used, checked in this order:
//   - Path: a concrete attribute path
//   - Zone with Command: a per-zone command name (enabled, cool_setpoint, heat_setpoint)
//   - Command: a system command name (power, mode, fan_mode, ...)
type CommandRequest struct {
	Path    string `json:"path,omitempty"`
	Command string `json:"command,omitempty"`
	Zone    *int   `json:"zone,omitempty"`
	Value   any    `json:"value"`
}

// Build resolves the request against sys.
func (r CommandRequest) Build(sys *system.System) (system.Command, error) {
	switch {
	case r.Path != "":
		return sys.BuildCommand(r.Path, r.Value)
	case r.Command != "" && r.Zone != nil:
		return sys.BuildZoneCommand(*r.Zone, r.Command, r.Value)
	case r.Command != "":
		return sys.BuildNamedCommand(r.Command, r.Value)
	}
	return system.Command{}, ErrInvalidRequest
}

// Execute builds the command for serial and sends it.
func (p *Poller) Execute(ctx context.Context, serial string, req CommandRequest) (system.Command, error) {
	e, err := p.entry(serial)
	if err != nil {
		return system.Command{}, err
	}

	cmd, err := req.Build(e.sys)
	if err != nil {
		return system.Command{}, fmt.Errorf("building command for %s: %w", serial, err)
	}
	if err := e.sys.Send(ctx, cmd); err != nil {
		return cmd, err
	}
	return cmd, nil
}

// Executor runs command requests against synced systems. *Poller is an
// Executor.
type Executor interface {
	Execute(ctx context.Context, serial string, req CommandRequest) (system.Command, error)
}

// CommandLog persists executed commands.
type CommandLog interface {
	RecordCommand(ctx context.Context, cmd system.Command, sendErr error, source string) error
}

type loggedExecutor struct {
	next   Executor
	log    CommandLog
	source string
	logger Logger
}

// WithCommandLog wraps next so that every built command, sent or failed,
// is written to log tagged with source. Requests that fail to build are
// not recorded. A failing log write is logged and does not change the
// result.
func WithCommandLog(next Executor, log CommandLog, source string, logger Logger) Executor {
	if logger == nil {
		logger = noopLogger{}
	}
	return &loggedExecutor{next: next, log: log, source: source, logger: logger}
}

func (l *loggedExecutor) Execute(ctx context.Context, serial string, req CommandRequest) (system.Command, error) {
	cmd, err := l.next.Execute(ctx, serial, req)
	if cmd.ID == "" {
		return cmd, err
	}
	if logErr := l.log.RecordCommand(ctx, cmd, err, l.source); logErr != nil {
		l.logger.Warn("recording command failed",
			"serial", serial,
			"command_id", cmd.ID,
			"error", logErr,
		)
	}
	return cmd, err
}
