package poller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/que-core/internal/attribute"
	"github.com/nerrad567/que-core/internal/que"
	"github.com/nerrad567/que-core/internal/schema"
	"github.com/nerrad567/que-core/internal/system"
)

const homeStatus = `{
	"lastKnownState": {
		"RemoteZoneInfo": [
			{"NV_Title": "Lounge", "LiveTemp_oC": 21.5, "TemperatureSetpoint_Cool_oC": 24, "NV_Exists": true},
			{"NV_Title": "Study", "LiveTemp_oC": 20, "TemperatureSetpoint_Cool_oC": 23, "NV_Exists": true}
		],
		"UserAirconSettings": {"isOn": false, "Mode": "COOL", "EnabledZones": [1, 1]},
		"SystemState": {"CpuTemp_oC": 41.5}
	}
}`

const officeStatus = `{"lastKnownState": {"RemoteZoneInfo": [{"NV_Title": "Office", "LiveTemp_oC": 22}]}}`

func decode(t *testing.T, s string) any {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		t.Fatalf("decoding fixture: %v", err)
	}
	return v
}

// fakeSource serves fixed documents and records commands.
type fakeSource struct {
	mu       sync.Mutex
	systems  []que.ACSystem
	docs     map[string]any
	errs     map[string]error
	listErr  error
	fetches  map[string]int
	commands []map[string]any
}

func newFakeSource(t *testing.T) *fakeSource {
	t.Helper()
	return &fakeSource{
		systems: []que.ACSystem{
			{Serial: "HOME", Description: "Home", ID: 1},
			{Serial: "OFFICE", Description: "Office", ID: 2},
		},
		docs: map[string]any{
			"HOME":   decode(t, homeStatus),
			"OFFICE": decode(t, officeStatus),
		},
		errs:    map[string]error{},
		fetches: map[string]int{},
	}
}

func (f *fakeSource) ListSystems(context.Context) ([]que.ACSystem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]que.ACSystem(nil), f.systems...), nil
}

func (f *fakeSource) LatestStatus(_ context.Context, serial string) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches[serial]++
	if err := f.errs[serial]; err != nil {
		return nil, err
	}
	doc, ok := f.docs[serial]
	if !ok {
		return nil, que.ErrSystemNotFound
	}
	return doc, nil
}

func (f *fakeSource) SendCommand(_ context.Context, _ string, payload map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, payload)
	return nil
}

// recordingListener captures everything the poller fans out.
type recordingListener struct {
	mu        sync.Mutex
	changes   map[string][]attribute.Change
	refreshed chan string
}

func newRecordingListener() *recordingListener {
	return &recordingListener{
		changes:   map[string][]attribute.Change{},
		refreshed: make(chan string, 64),
	}
}

func (r *recordingListener) AttributeChanged(serial string, ch attribute.Change) {
	r.mu.Lock()
	r.changes[serial] = append(r.changes[serial], ch)
	r.mu.Unlock()
}

func (r *recordingListener) SystemRefreshed(serial string, _ system.PopulateStats, _ time.Duration) {
	select {
	case r.refreshed <- serial:
	default:
	}
}

func (r *recordingListener) changeCount(serial string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.changes[serial])
}

func TestPoller_SyncAndRefresh(t *testing.T) {
	src := newFakeSource(t)
	p := New(src, src, Options{})
	l := newRecordingListener()
	p.AddListener(l)
	ctx := context.Background()

	added, err := p.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync() error: %v", err)
	}
	if len(added) != 2 {
		t.Fatalf("Sync() added %v, want 2 systems", added)
	}
	if added, _ := p.Sync(ctx); len(added) != 0 {
		t.Errorf("second Sync() added %v, want none", added)
	}

	if err := p.RefreshAll(ctx); err != nil {
		t.Fatalf("RefreshAll() error: %v", err)
	}

	home, ok := p.System("HOME")
	if !ok {
		t.Fatal("System(HOME) not found")
	}
	z, err := home.Zone(1)
	if err != nil {
		t.Fatalf("Zone(1) error: %v", err)
	}
	if title := z.Title(); title == nil || title.Value().String() != "Study" {
		t.Errorf("zone 1 title = %v, want Study", title)
	}

	if l.changeCount("HOME") == 0 || l.changeCount("OFFICE") == 0 {
		t.Errorf("changes HOME=%d OFFICE=%d, want both > 0", l.changeCount("HOME"), l.changeCount("OFFICE"))
	}
	if len(l.refreshed) != 2 {
		t.Errorf("SystemRefreshed calls = %d, want 2", len(l.refreshed))
	}

	systems := p.Systems()
	if len(systems) != 2 || systems[0].Serial() != "HOME" || systems[1].Serial() != "OFFICE" {
		t.Errorf("Systems() order wrong: %v", systems)
	}

	st, ok := p.Status("HOME")
	if !ok || st.Refreshes != 1 || st.LastError != "" {
		t.Errorf("Status(HOME) = %+v", st)
	}
}

func TestPoller_RefreshUnchangedEmitsNothing(t *testing.T) {
	src := newFakeSource(t)
	p := New(src, src, Options{})
	l := newRecordingListener()
	p.AddListener(l)
	ctx := context.Background()

	if _, err := p.Sync(ctx); err != nil {
		t.Fatalf("Sync() error: %v", err)
	}
	if _, err := p.Refresh(ctx, "HOME"); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	before := l.changeCount("HOME")

	if _, err := p.Refresh(ctx, "HOME"); err != nil {
		t.Fatalf("second Refresh() error: %v", err)
	}
	if got := l.changeCount("HOME"); got != before {
		t.Errorf("changes after identical refresh = %d, want %d", got, before)
	}
}

func TestPoller_SerialFilter(t *testing.T) {
	src := newFakeSource(t)
	p := New(src, nil, Options{Serials: []string{"OFFICE"}})

	added, err := p.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync() error: %v", err)
	}
	if len(added) != 1 || added[0] != "OFFICE" {
		t.Errorf("Sync() added %v, want [OFFICE]", added)
	}
	if _, ok := p.System("HOME"); ok {
		t.Error("HOME should be filtered out")
	}
}

func TestPoller_SyncError(t *testing.T) {
	src := newFakeSource(t)
	src.listErr = que.ErrAuthFailed
	p := New(src, nil, Options{})

	if _, err := p.Sync(context.Background()); !errors.Is(err, que.ErrAuthFailed) {
		t.Errorf("Sync() error = %v, want ErrAuthFailed", err)
	}
}

func TestPoller_RefreshAllPartialFailure(t *testing.T) {
	src := newFakeSource(t)
	src.errs["OFFICE"] = que.ErrUnexpectedStatus
	p := New(src, nil, Options{})
	ctx := context.Background()

	if _, err := p.Sync(ctx); err != nil {
		t.Fatalf("Sync() error: %v", err)
	}
	err := p.RefreshAll(ctx)
	if !errors.Is(err, que.ErrUnexpectedStatus) {
		t.Fatalf("RefreshAll() error = %v, want ErrUnexpectedStatus", err)
	}

	home, _ := p.System("HOME")
	if _, n := home.PopulatedAt(); n != 1 {
		t.Errorf("HOME populates = %d, want 1", n)
	}
	st, _ := p.Status("OFFICE")
	if st.LastError == "" || st.Refreshes != 0 {
		t.Errorf("Status(OFFICE) = %+v, want error recorded", st)
	}
}

func TestPoller_RefreshUnknown(t *testing.T) {
	p := New(newFakeSource(t), nil, Options{})
	if _, err := p.Refresh(context.Background(), "NOPE"); !errors.Is(err, ErrUnknownSystem) {
		t.Errorf("Refresh() error = %v, want ErrUnknownSystem", err)
	}
}

func TestPoller_FlattenMode(t *testing.T) {
	src := newFakeSource(t)
	p := New(src, nil, Options{Mode: system.ModeFlatten})
	ctx := context.Background()

	if _, err := p.Sync(ctx); err != nil {
		t.Fatalf("Sync() error: %v", err)
	}
	stats, err := p.Refresh(ctx, "OFFICE")
	if err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	if stats.Mode != system.ModeFlatten || stats.Created != 2 {
		t.Errorf("stats = %+v, want flatten with 2 created", stats)
	}
}

func TestPoller_Execute(t *testing.T) {
	zone0 := 0

	tests := []struct {
		name    string
		req     CommandRequest
		wantKey string
		wantVal any
		wantErr error
	}{
		{
			name:    "named power",
			req:     CommandRequest{Command: "power", Value: "true"},
			wantKey: schema.SettingPower,
			wantVal: true,
		},
		{
			name:    "zone setpoint",
			req:     CommandRequest{Command: "cool_setpoint", Zone: &zone0, Value: 25.0},
			wantKey: "RemoteZoneInfo[0].TemperatureSetpoint_Cool_oC",
			wantVal: int64(25),
		},
		{
			name:    "explicit path",
			req:     CommandRequest{Path: "UserAirconSettings.EnabledZones.[1]", Value: 0},
			wantKey: "UserAirconSettings.EnabledZones[1]",
			wantVal: int64(0),
		},
		{
			name:    "read-only attribute",
			req:     CommandRequest{Path: "SystemState.CpuTemp_oC", Value: 10},
			wantErr: system.ErrImmutableAttribute,
		},
		{
			name:    "empty request",
			req:     CommandRequest{Value: 1},
			wantErr: ErrInvalidRequest,
		},
		{
			name:    "unknown command",
			req:     CommandRequest{Command: "turbo", Value: true},
			wantErr: schema.ErrUnknownCommand,
		},
	}

	src := newFakeSource(t)
	p := New(src, src, Options{})
	ctx := context.Background()
	if _, err := p.Sync(ctx); err != nil {
		t.Fatalf("Sync() error: %v", err)
	}
	if _, err := p.Refresh(ctx, "HOME"); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src.mu.Lock()
			src.commands = nil
			src.mu.Unlock()

			cmd, err := p.Execute(ctx, "HOME", tt.req)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Execute() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Execute() error: %v", err)
			}
			if cmd.Key != tt.wantKey {
				t.Errorf("Key = %q, want %q", cmd.Key, tt.wantKey)
			}

			src.mu.Lock()
			defer src.mu.Unlock()
			if len(src.commands) != 1 {
				t.Fatalf("commands sent = %d, want 1", len(src.commands))
			}
			body := src.commands[0]["command"].(map[string]any)
			if body["type"] != system.CommandType {
				t.Errorf("type = %v", body["type"])
			}
			if body[tt.wantKey] != tt.wantVal {
				t.Errorf("value = %#v, want %#v", body[tt.wantKey], tt.wantVal)
			}
		})
	}
}

func TestPoller_ExecuteUnknownSystem(t *testing.T) {
	p := New(newFakeSource(t), nil, Options{})
	_, err := p.Execute(context.Background(), "NOPE", CommandRequest{Command: "power", Value: true})
	if !errors.Is(err, ErrUnknownSystem) {
		t.Errorf("Execute() error = %v, want ErrUnknownSystem", err)
	}
}

type recordedCommand struct {
	cmd    system.Command
	err    error
	source string
}

type fakeCommandLog struct {
	mu      sync.Mutex
	entries []recordedCommand
	fail    error
}

func (f *fakeCommandLog) RecordCommand(_ context.Context, cmd system.Command, sendErr error, source string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, recordedCommand{cmd: cmd, err: sendErr, source: source})
	return f.fail
}

type failingSender struct{ err error }

func (f failingSender) SendCommand(context.Context, string, map[string]any) error { return f.err }

func TestWithCommandLog(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(t)
	errOffline := errors.New("cloud offline")

	sent := New(src, src, Options{})
	failed := New(src, failingSender{err: errOffline}, Options{})
	for _, p := range []*Poller{sent, failed} {
		if _, err := p.Sync(ctx); err != nil {
			t.Fatalf("Sync() error: %v", err)
		}
		if _, err := p.Refresh(ctx, "HOME"); err != nil {
			t.Fatalf("Refresh() error: %v", err)
		}
	}

	log := &fakeCommandLog{}
	power := CommandRequest{Command: "power", Value: true}

	if _, err := WithCommandLog(sent, log, "mqtt", nil).Execute(ctx, "HOME", power); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if _, err := WithCommandLog(failed, log, "api", nil).Execute(ctx, "HOME", power); !errors.Is(err, errOffline) {
		t.Fatalf("Execute() error = %v, want %v", err, errOffline)
	}
	if _, err := WithCommandLog(sent, log, "api", nil).Execute(ctx, "HOME", CommandRequest{Value: 1}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("Execute() error = %v, want ErrInvalidRequest", err)
	}

	if len(log.entries) != 2 {
		t.Fatalf("recorded = %d, want 2 (unbuildable requests are not logged)", len(log.entries))
	}
	if got := log.entries[0]; got.source != "mqtt" || got.err != nil || got.cmd.Key != schema.SettingPower {
		t.Errorf("first entry = %+v", got)
	}
	if got := log.entries[1]; got.source != "api" || !errors.Is(got.err, errOffline) {
		t.Errorf("second entry = %+v", got)
	}

	log.fail = errors.New("disk full")
	if _, err := WithCommandLog(sent, log, "api", nil).Execute(ctx, "HOME", power); err != nil {
		t.Errorf("a failing log must not fail the command: %v", err)
	}
}

func TestPoller_Run(t *testing.T) {
	src := newFakeSource(t)
	p := New(src, nil, Options{Interval: 10 * time.Millisecond, Serials: []string{"HOME"}})
	l := newRecordingListener()
	p.AddListener(l)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	for i := 0; i < 3; i++ {
		select {
		case <-l.refreshed:
		case <-ctx.Done():
			t.Fatalf("timed out waiting for refresh %d", i+1)
		}
	}
	cancel()

	if err := <-done; err != nil {
		t.Errorf("Run() error = %v, want nil", err)
	}
	src.mu.Lock()
	defer src.mu.Unlock()
	if src.fetches["HOME"] < 3 {
		t.Errorf("HOME fetched %d times, want >= 3", src.fetches["HOME"])
	}
}
