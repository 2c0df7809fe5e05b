package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/que-core/internal/attribute"
	"github.com/nerrad567/que-core/internal/poller"
	"github.com/nerrad567/que-core/internal/system"
)

// defaultCommandTimeout bounds one command received over MQTT.
const defaultCommandTimeout = 30 * time.Second

// Ack statuses.
const (
	AckSent   = "sent"
	AckFailed = "failed"
)

// Broker is the part of *Client the bridge needs.
type Broker interface {
	Topics() Topics
	QoS() byte
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler MessageHandler) error
}

// StateMessage is the retained payload of a state topic.
type StateMessage struct {
	Serial    string          `json:"serial"`
	Path      string          `json:"path"`
	Kind      string          `json:"kind"`
	Value     attribute.Value `json:"value"`
	ChangedAt time.Time       `json:"changed_at"`
}

// RefreshMessage is published after every completed refresh.
type RefreshMessage struct {
	Serial     string      `json:"serial"`
	Mode       system.Mode `json:"mode"`
	Created    int         `json:"created"`
	Changed    int         `json:"changed"`
	Applied    int         `json:"applied"`
	Missing    int         `json:"missing"`
	Failed     int         `json:"failed"`
	Evicted    int         `json:"evicted"`
	DurationMS int64       `json:"duration_ms"`
}

// AckMessage reports the result of a command received on a command topic.
type AckMessage struct {
	Serial    string `json:"serial"`
	Status    string `json:"status"`
	CommandID string `json:"command_id,omitempty"`
	Key       string `json:"key,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Bridge publishes attribute state and refresh statistics, and executes
// command requests received on {prefix}/command/{serial}.
//
// Bridge implements poller.Listener.
type Bridge struct {
	broker  Broker
	topics  Topics
	logger  Logger
	timeout time.Duration

	mu   sync.RWMutex
	exec poller.Executor
	base context.Context
}

// NewBridge creates a Bridge publishing through broker.
func NewBridge(broker Broker, logger Logger) *Bridge {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Bridge{
		broker:  broker,
		topics:  broker.Topics(),
		logger:  logger,
		timeout: defaultCommandTimeout,
		base:    context.Background(),
	}
}

// AttributeChanged publishes the new value to the retained state topic.
func (b *Bridge) AttributeChanged(serial string, ch attribute.Change) {
	payload, err := json.Marshal(StateMessage{
		Serial:    serial,
		Path:      ch.Path,
		Kind:      ch.New.Kind().String(),
		Value:     ch.New,
		ChangedAt: ch.At.UTC(),
	})
	if err != nil {
		b.logger.Error("encoding state message", "serial", serial, "path", ch.Path, "error", err)
		return
	}
	if err := b.broker.Publish(b.topics.State(serial, ch.Path), payload, b.broker.QoS(), true); err != nil {
		b.logger.Warn("publishing attribute state failed", "serial", serial, "path", ch.Path, "error", err)
	}
}

// SystemRefreshed publishes refresh statistics (not retained).
func (b *Bridge) SystemRefreshed(serial string, stats system.PopulateStats, took time.Duration) {
	payload, err := json.Marshal(RefreshMessage{
		Serial:     serial,
		Mode:       stats.Mode,
		Created:    stats.Created,
		Changed:    stats.Changed,
		Applied:    stats.Applied,
		Missing:    stats.Missing,
		Failed:     len(stats.Failed),
		Evicted:    len(stats.Evicted),
		DurationMS: took.Milliseconds(),
	})
	if err != nil {
		b.logger.Error("encoding refresh message", "serial", serial, "error", err)
		return
	}
	if err := b.broker.Publish(b.topics.Refresh(serial), payload, 0, false); err != nil {
		b.logger.Warn("publishing refresh stats failed", "serial", serial, "error", err)
	}
}

// ServeCommands subscribes to every system's command topic and runs
// requests through exec. Commands inherit ctx; cancelling it aborts
// in-flight sends.
func (b *Bridge) ServeCommands(ctx context.Context, exec poller.Executor) error {
	b.mu.Lock()
	b.exec = exec
	b.base = ctx
	b.mu.Unlock()

	if err := b.broker.Subscribe(b.topics.AllCommands(), b.broker.QoS(), b.handleCommand); err != nil {
		return fmt.Errorf("subscribing to commands: %w", err)
	}
	return nil
}

// handleCommand decodes a poller.CommandRequest, executes it and publishes
// an ack. Undecodable messages are acked as failed when the serial is known.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	serial, ok := b.topics.CommandSerial(topic)
	if !ok {
		return fmt.Errorf("%w: topic %q", ErrInvalidCommand, topic)
	}

	var req poller.CommandRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		err = fmt.Errorf("%w: %w", ErrInvalidCommand, err)
		b.ack(AckMessage{Serial: serial, Status: AckFailed, Error: err.Error()})
		return err
	}

	b.mu.RLock()
	exec, base := b.exec, b.base
	b.mu.RUnlock()
	if exec == nil {
		return fmt.Errorf("%w: no executor", ErrInvalidCommand)
	}

	ctx, cancel := context.WithTimeout(base, b.timeout)
	defer cancel()

	cmd, err := exec.Execute(ctx, serial, req)
	msg := AckMessage{Serial: serial, Status: AckSent, CommandID: cmd.ID, Key: cmd.Key}
	if err != nil {
		msg.Status, msg.Error = AckFailed, err.Error()
	}
	b.ack(msg)
	return err
}

func (b *Bridge) ack(msg AckMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("encoding ack", "serial", msg.Serial, "error", err)
		return
	}
	if err := b.broker.Publish(b.topics.Ack(msg.Serial), payload, b.broker.QoS(), false); err != nil {
		b.logger.Warn("publishing ack failed", "serial", msg.Serial, "error", err)
	}
}
