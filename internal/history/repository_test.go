package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/que-core/internal/attribute"
	"github.com/nerrad567/que-core/internal/infrastructure/config"
	"github.com/nerrad567/que-core/internal/infrastructure/database"
	"github.com/nerrad567/que-core/internal/system"
	"github.com/nerrad567/que-core/migrations"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, config.DatabaseConfig{Path: database.MemoryPath, BusyTimeout: 1})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if _, err := db.Migrate(ctx, migrations.FS, migrations.Dir); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewRepository(db.DB)
}

func change(path string, oldV, newV attribute.Value, at time.Time) attribute.Change {
	return attribute.Change{Path: path, Old: oldV, New: newV, At: at}
}

func TestRepository_RecordAndQuery(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	err := repo.RecordChanges(ctx, "ABC123", []attribute.Change{
		{Path: "RemoteZoneInfo.[0].LiveTemp_oC", New: attribute.Float(21.5), At: base, Created: true},
		change("RemoteZoneInfo.[0].LiveTemp_oC", attribute.Float(21.5), attribute.Float(22), base.Add(time.Minute)),
		change("RemoteZoneInfo.[1].NV_Title", attribute.Null(), attribute.Text("Study"), base.Add(2*time.Minute)),
		change("UserAirconSettings.isOn", attribute.Bool(false), attribute.Bool(true), base.Add(3*time.Minute)),
	})
	if err != nil {
		t.Fatalf("RecordChanges() error = %v", err)
	}
	if err := repo.RecordChanges(ctx, "OTHER", []attribute.Change{
		change("UserAirconSettings.isOn", attribute.Bool(true), attribute.Bool(false), base),
	}); err != nil {
		t.Fatalf("RecordChanges(OTHER) error = %v", err)
	}

	tests := []struct {
		name      string
		query     Query
		wantPaths []string
	}{
		{
			name:      "all for serial newest first",
			query:     Query{Serial: "ABC123"},
			wantPaths: []string{"UserAirconSettings.isOn", "RemoteZoneInfo.[1].NV_Title", "RemoteZoneInfo.[0].LiveTemp_oC", "RemoteZoneInfo.[0].LiveTemp_oC"},
		},
		{
			name:      "exact path",
			query:     Query{Serial: "ABC123", Path: "RemoteZoneInfo.[0].LiveTemp_oC"},
			wantPaths: []string{"RemoteZoneInfo.[0].LiveTemp_oC", "RemoteZoneInfo.[0].LiveTemp_oC"},
		},
		{
			name:      "prefix",
			query:     Query{Serial: "ABC123", Prefix: "RemoteZoneInfo.[1]"},
			wantPaths: []string{"RemoteZoneInfo.[1].NV_Title"},
		},
		{
			name:      "since",
			query:     Query{Serial: "ABC123", Since: base.Add(2 * time.Minute)},
			wantPaths: []string{"UserAirconSettings.isOn", "RemoteZoneInfo.[1].NV_Title"},
		},
		{
			name:      "limit",
			query:     Query{Serial: "ABC123", Limit: 1},
			wantPaths: []string{"UserAirconSettings.isOn"},
		},
		{
			name:      "other serial isolated",
			query:     Query{Serial: "OTHER"},
			wantPaths: []string{"UserAirconSettings.isOn"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := repo.History(ctx, tt.query)
			if err != nil {
				t.Fatalf("History() error = %v", err)
			}
			if len(entries) != len(tt.wantPaths) {
				t.Fatalf("History() returned %d entries, want %d", len(entries), len(tt.wantPaths))
			}
			for i, p := range tt.wantPaths {
				if entries[i].Path != p {
					t.Errorf("entries[%d].Path = %q, want %q", i, entries[i].Path, p)
				}
			}
		})
	}

	entries, err := repo.History(ctx, Query{Serial: "ABC123", Path: "RemoteZoneInfo.[0].LiveTemp_oC"})
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	latest, first := entries[0], entries[1]
	if !latest.Old.Equal(attribute.Float(21.5)) || !latest.New.Equal(attribute.Float(22)) {
		t.Errorf("latest = %v -> %v, want 21.5 -> 22", latest.Old, latest.New)
	}
	if latest.Kind != attribute.KindFloat.String() {
		t.Errorf("Kind = %q, want %q", latest.Kind, attribute.KindFloat.String())
	}
	if !first.Created || !first.Old.IsNull() {
		t.Errorf("first entry = %+v, want created with null old value", first)
	}
	if !latest.ChangedAt.Equal(base.Add(time.Minute)) {
		t.Errorf("ChangedAt = %v, want %v", latest.ChangedAt, base.Add(time.Minute))
	}
}

func TestRepository_SerialRequired(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.RecordChanges(ctx, "", []attribute.Change{{Path: "a"}}); !errors.Is(err, ErrSerialRequired) {
		t.Errorf("RecordChanges() error = %v, want ErrSerialRequired", err)
	}
	if _, err := repo.History(ctx, Query{}); !errors.Is(err, ErrSerialRequired) {
		t.Errorf("History() error = %v, want ErrSerialRequired", err)
	}
}

func TestRepository_Prune(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	err := repo.RecordChanges(ctx, "ABC123", []attribute.Change{
		change("a", attribute.Int(1), attribute.Int(2), now.Add(-48*time.Hour)),
		change("a", attribute.Int(2), attribute.Int(3), now.Add(-time.Minute)),
	})
	if err != nil {
		t.Fatalf("RecordChanges() error = %v", err)
	}

	n, err := repo.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Prune() deleted %d, want 1", n)
	}
	if _, err := repo.Prune(ctx, 0); err == nil {
		t.Error("Prune(0) should fail")
	}
}

func TestRepository_Commands(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	sent := system.Command{
		ID: "cmd-1", Serial: "ABC123", Path: "UserAirconSettings.isOn",
		Key: "UserAirconSettings.isOn", Value: attribute.Bool(true), CreatedAt: base,
	}
	failed := system.Command{
		ID: "cmd-2", Serial: "ABC123", Path: "RemoteZoneInfo.[0].TemperatureSetpoint_Cool_oC",
		Key: "RemoteZoneInfo[0].TemperatureSetpoint_Cool_oC", Value: attribute.Int(24), CreatedAt: base.Add(time.Second),
	}

	if err := repo.RecordCommand(ctx, sent, nil, "mqtt"); err != nil {
		t.Fatalf("RecordCommand(sent) error = %v", err)
	}
	if err := repo.RecordCommand(ctx, failed, errors.New("503 from cloud"), ""); err != nil {
		t.Fatalf("RecordCommand(failed) error = %v", err)
	}

	records, err := repo.Commands(ctx, "ABC123", 0)
	if err != nil {
		t.Fatalf("Commands() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Commands() returned %d, want 2", len(records))
	}
	if records[0].ID != "cmd-2" || records[0].Status != StatusFailed || records[0].Error != "503 from cloud" || records[0].Source != "api" {
		t.Errorf("records[0] = %+v", records[0])
	}
	if records[1].ID != "cmd-1" || records[1].Status != StatusSent || records[1].Source != "mqtt" {
		t.Errorf("records[1] = %+v", records[1])
	}
	if v, ok := records[0].Value.AsInt(); !ok || v != 24 {
		t.Errorf("records[0].Value = %v, want 24", records[0].Value)
	}
}

func TestRecorder_Run(t *testing.T) {
	repo := newTestRepo(t)
	rec := NewRecorder(repo, 16, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rec.Run(ctx)
		close(done)
	}()

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		rec.AttributeChanged("ABC123", change("SystemState.CpuTemp_oC",
			attribute.Float(float64(40+i)), attribute.Float(float64(41+i)), at.Add(time.Duration(i)*time.Second)))
	}
	rec.SystemRefreshed("ABC123", system.PopulateStats{}, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Recorder.Run did not return after cancel")
	}

	entries, err := repo.History(context.Background(), Query{Serial: "ABC123"})
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(entries) != 5 {
		t.Errorf("stored %d entries, want 5", len(entries))
	}
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	repo := newTestRepo(t)
	rec := NewRecorder(repo, 2, nil)

	for i := 0; i < 5; i++ {
		rec.AttributeChanged("ABC123", change("a", attribute.Int(int64(i)), attribute.Int(int64(i+1)), time.Now()))
	}
	if got := rec.Dropped(); got != 3 {
		t.Errorf("Dropped() = %d, want 3", got)
	}
}
