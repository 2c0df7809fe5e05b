package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/que-core/internal/attribute"
	"github.com/nerrad567/que-core/internal/poller"
	"github.com/nerrad567/que-core/internal/schema"
	"github.com/nerrad567/que-core/internal/system"
)

type published struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// fakeBroker records publishes and captures subscription handlers.
type fakeBroker struct {
	mu       sync.Mutex
	topics   Topics
	messages []published
	handlers map[string]MessageHandler
	pubErr   error
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{topics: NewTopics("que"), handlers: map[string]MessageHandler{}}
}

func (f *fakeBroker) Topics() Topics { return f.topics }
func (f *fakeBroker) QoS() byte      { return 1 }

func (f *fakeBroker) Publish(topic string, payload []byte, qos byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pubErr != nil {
		return f.pubErr
	}
	f.messages = append(f.messages, published{topic, payload, qos, retained})
	return nil
}

func (f *fakeBroker) Subscribe(topic string, _ byte, handler MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

func (f *fakeBroker) last(t *testing.T) published {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		t.Fatal("nothing published")
	}
	return f.messages[len(f.messages)-1]
}

type fakeExecutor struct {
	mu     sync.Mutex
	cmd    system.Command
	err    error
	serial string
	req    poller.CommandRequest
}

func (f *fakeExecutor) Execute(_ context.Context, serial string, req poller.CommandRequest) (system.Command, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.serial, f.req = serial, req
	return f.cmd, f.err
}

func TestBridge_AttributeChanged(t *testing.T) {
	broker := newFakeBroker()
	bridge := NewBridge(broker, nil)

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	bridge.AttributeChanged("ABC123", attribute.Change{
		Path: "RemoteZoneInfo.[0].LiveTemp_oC",
		Old:  attribute.Float(21),
		New:  attribute.Float(21.5),
		At:   at,
	})

	msg := broker.last(t)
	if msg.topic != "que/state/ABC123/RemoteZoneInfo.[0].LiveTemp_oC" {
		t.Errorf("topic = %q", msg.topic)
	}
	if !msg.retained || msg.qos != 1 {
		t.Errorf("retained = %v, qos = %d; want retained qos 1", msg.retained, msg.qos)
	}

	var state StateMessage
	if err := json.Unmarshal(msg.payload, &state); err != nil {
		t.Fatalf("decoding state: %v", err)
	}
	if state.Serial != "ABC123" || state.Kind != "float" || !state.ChangedAt.Equal(at) {
		t.Errorf("state = %+v", state)
	}
	if !state.Value.Equal(attribute.Float(21.5)) {
		t.Errorf("value = %v, want 21.5", state.Value)
	}
}

func TestBridge_SystemRefreshed(t *testing.T) {
	broker := newFakeBroker()
	bridge := NewBridge(broker, nil)

	bridge.SystemRefreshed("ABC123", system.PopulateStats{
		Mode:    system.ModeSchema,
		Changed: 3,
		Applied: 40,
		Failed:  []schema.FieldError{{Path: "x"}},
	}, 120*time.Millisecond)

	msg := broker.last(t)
	if msg.topic != "que/refresh/ABC123" || msg.retained {
		t.Errorf("topic = %q retained = %v", msg.topic, msg.retained)
	}
	var stats RefreshMessage
	if err := json.Unmarshal(msg.payload, &stats); err != nil {
		t.Fatalf("decoding stats: %v", err)
	}
	if stats.Changed != 3 || stats.Applied != 40 || stats.Failed != 1 || stats.DurationMS != 120 || stats.Mode != system.ModeSchema {
		t.Errorf("stats = %+v", stats)
	}
}

func TestBridge_PublishErrorIsSwallowed(t *testing.T) {
	broker := newFakeBroker()
	broker.pubErr = ErrNotConnected
	bridge := NewBridge(broker, nil)

	// Must not panic or block.
	bridge.AttributeChanged("ABC123", attribute.Change{Path: "a", New: attribute.Int(1)})
	bridge.SystemRefreshed("ABC123", system.PopulateStats{}, time.Second)
}

func TestBridge_Commands(t *testing.T) {
	errImmutable := system.ErrImmutableAttribute

	tests := []struct {
		name       string
		topic      string
		payload    string
		execErr    error
		wantErr    error
		wantAck    string
		wantSerial string
	}{
		{
			name:       "sent",
			topic:      "que/command/ABC123",
			payload:    `{"command":"power","value":true}`,
			wantAck:    AckSent,
			wantSerial: "ABC123",
		},
		{
			name:       "execute fails",
			topic:      "que/command/ABC123",
			payload:    `{"path":"SystemState.CpuTemp_oC","value":1}`,
			execErr:    errImmutable,
			wantErr:    errImmutable,
			wantAck:    AckFailed,
			wantSerial: "ABC123",
		},
		{
			name:    "bad json",
			topic:   "que/command/ABC123",
			payload: `{not json`,
			wantErr: ErrInvalidCommand,
			wantAck: AckFailed,
		},
		{
			name:    "bad topic",
			topic:   "que/command/",
			payload: `{}`,
			wantErr: ErrInvalidCommand,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			broker := newFakeBroker()
			exec := &fakeExecutor{
				cmd: system.Command{ID: "cmd-1", Serial: "ABC123", Key: "UserAirconSettings.isOn"},
				err: tt.execErr,
			}
			bridge := NewBridge(broker, nil)
			if err := bridge.ServeCommands(context.Background(), exec); err != nil {
				t.Fatalf("ServeCommands() error = %v", err)
			}
			handler := broker.handlers["que/command/+"]
			if handler == nil {
				t.Fatal("command topic not subscribed")
			}

			err := handler(tt.topic, []byte(tt.payload))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("handler error = %v, want %v", err, tt.wantErr)
			}
			if exec.serial != tt.wantSerial {
				t.Errorf("executed serial = %q, want %q", exec.serial, tt.wantSerial)
			}

			if tt.wantAck == "" {
				if len(broker.messages) != 0 {
					t.Errorf("unexpected publish: %+v", broker.messages)
				}
				return
			}
			msg := broker.last(t)
			if msg.topic != "que/ack/ABC123" || msg.retained {
				t.Errorf("ack topic = %q retained = %v", msg.topic, msg.retained)
			}
			var ack AckMessage
			if err := json.Unmarshal(msg.payload, &ack); err != nil {
				t.Fatalf("decoding ack: %v", err)
			}
			if ack.Status != tt.wantAck {
				t.Errorf("ack status = %q, want %q", ack.Status, tt.wantAck)
			}
			if tt.wantAck == AckSent && ack.CommandID != "cmd-1" {
				t.Errorf("ack command id = %q", ack.CommandID)
			}
			if tt.wantAck == AckFailed && ack.Error == "" {
				t.Error("failed ack should carry an error")
			}
		})
	}
}

func TestBridge_CommandRequestDecoding(t *testing.T) {
	broker := newFakeBroker()
	exec := &fakeExecutor{cmd: system.Command{ID: "cmd-2"}}
	bridge := NewBridge(broker, nil)
	if err := bridge.ServeCommands(context.Background(), exec); err != nil {
		t.Fatalf("ServeCommands() error = %v", err)
	}

	payload := `{"command":"cool_setpoint","zone":2,"value":24.5}`
	if err := broker.handlers["que/command/+"]("que/command/ABC123", []byte(payload)); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if exec.req.Command != "cool_setpoint" || exec.req.Zone == nil || *exec.req.Zone != 2 || exec.req.Value != 24.5 {
		t.Errorf("decoded request = %+v", exec.req)
	}
}
