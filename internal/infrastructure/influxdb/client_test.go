package influxdb

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/que-core/internal/attribute"
	"github.com/nerrad567/que-core/internal/infrastructure/config"
	"github.com/nerrad567/que-core/internal/schema"
	"github.com/nerrad567/que-core/internal/system"
)

// fakeWriter records points instead of sending them.
type fakeWriter struct {
	mu      sync.Mutex
	points  []*write.Point
	flushes int
}

func (f *fakeWriter) WritePoint(p *write.Point) {
	f.mu.Lock()
	f.points = append(f.points, p)
	f.mu.Unlock()
}

func (f *fakeWriter) Flush() {
	f.mu.Lock()
	f.flushes++
	f.mu.Unlock()
}

func (f *fakeWriter) lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.points))
	for _, p := range f.points {
		out = append(out, strings.TrimSpace(write.PointToLineProtocol(p, time.Second)))
	}
	return out
}

func newTestClient() (*Client, *fakeWriter) {
	w := &fakeWriter{}
	return &Client{writer: w, connected: true}, w
}

func TestAttributePoint(t *testing.T) {
	at := time.Unix(1772355600, 0)

	tests := []struct {
		name  string
		path  string
		value attribute.Value
		want  string
	}{
		{
			name:  "float",
			path:  "RemoteZoneInfo.[0].LiveTemp_oC",
			value: attribute.Float(21.5),
			want:  "que_attribute,group=RemoteZoneInfo,path=RemoteZoneInfo.[0].LiveTemp_oC,serial=ABC123 value=21.5 1772355600",
		},
		{
			name:  "int",
			path:  "RemoteZoneInfo.[1].LiveHumidity_pc",
			value: attribute.Int(55),
			want:  "que_attribute,group=RemoteZoneInfo,path=RemoteZoneInfo.[1].LiveHumidity_pc,serial=ABC123 value=55 1772355600",
		},
		{
			name:  "bool",
			path:  "UserAirconSettings.isOn",
			value: attribute.Bool(true),
			want:  "que_attribute,group=UserAirconSettings,path=UserAirconSettings.isOn,serial=ABC123 value=1 1772355600",
		},
		{
			name:  "text",
			path:  "UserAirconSettings.Mode",
			value: attribute.Text("COOL"),
			want:  `que_attribute,group=UserAirconSettings,path=UserAirconSettings.Mode,serial=ABC123 text="COOL" 1772355600`,
		},
		{
			name:  "top-level leaf",
			path:  "isOnline",
			value: attribute.Bool(false),
			want:  "que_attribute,group=isOnline,path=isOnline,serial=ABC123 value=0 1772355600",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := attributePoint("ABC123", tt.path, tt.value, at)
			if p == nil {
				t.Fatal("attributePoint() = nil")
			}
			if got := strings.TrimSpace(write.PointToLineProtocol(p, time.Second)); got != tt.want {
				t.Errorf("line =\n  %s\nwant\n  %s", got, tt.want)
			}
		})
	}

	if p := attributePoint("ABC123", "x", attribute.Null(), at); p != nil {
		t.Error("null value should produce no point")
	}
}

func TestClient_Listener(t *testing.T) {
	c, w := newTestClient()

	c.AttributeChanged("ABC123", attribute.Change{
		Path: "SystemState.CpuTemp_oC",
		New:  attribute.Float(41.5),
		At:   time.Unix(1772355600, 0),
	})
	c.AttributeChanged("ABC123", attribute.Change{Path: "Cloud.ConnectionState", New: attribute.Null()})
	c.SystemRefreshed("ABC123", system.PopulateStats{
		Mode:    system.ModeSchema,
		Changed: 2,
		Applied: 30,
		Failed:  []schema.FieldError{{Path: "a"}, {Path: "b"}},
	}, 250*time.Millisecond)

	lines := w.lines()
	if len(lines) != 2 {
		t.Fatalf("points = %d, want 2: %v", len(lines), lines)
	}
	if !strings.HasPrefix(lines[0], "que_attribute,") || !strings.Contains(lines[0], "value=41.5") {
		t.Errorf("attribute line = %s", lines[0])
	}
	for _, want := range []string{"que_refresh,mode=schema,serial=ABC123", "changed=2i", "applied=30i", "failed=2i", "duration_ms=250i"} {
		if !strings.Contains(lines[1], want) {
			t.Errorf("refresh line %q missing %q", lines[1], want)
		}
	}
}

func TestClient_Closed(t *testing.T) {
	c, w := newTestClient()
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if w.flushes != 1 {
		t.Errorf("Close() flushes = %d, want 1", w.flushes)
	}

	c.WriteAttribute("ABC123", "a", attribute.Int(1), time.Now())
	c.SystemRefreshed("ABC123", system.PopulateStats{}, time.Second)
	c.Flush()
	if len(w.points) != 0 || w.flushes != 1 {
		t.Errorf("closed client wrote %d points, %d flushes", len(w.points), w.flushes)
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestClose_Nil(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client: %v", err)
	}
}

func TestConnect_Disabled(t *testing.T) {
	if _, err := Connect(config.InfluxDBConfig{Enabled: false}); !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := Connect(config.InfluxDBConfig{Enabled: true, URL: srv.URL, Token: "t", Org: "o", Bucket: "b"})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_WritesLineProtocol(t *testing.T) {
	bodies := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping":
			w.WriteHeader(http.StatusNoContent)
		case "/api/v2/write":
			if r.URL.Query().Get("bucket") != "que" || r.URL.Query().Get("org") != "home" {
				t.Errorf("write query = %s", r.URL.RawQuery)
			}
			b, _ := io.ReadAll(r.Body)
			bodies <- string(b)
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c, err := Connect(config.InfluxDBConfig{
		Enabled: true, URL: srv.URL, Token: "t", Org: "home", Bucket: "que",
		BatchSize: 1, FlushInterval: 1,
	})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Close()

	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	c.WriteAttribute("ABC123", "RemoteZoneInfo.[0].LiveTemp_oC", attribute.Float(22), time.Now())
	c.Flush()

	select {
	case body := <-bodies:
		if !strings.Contains(body, "que_attribute,") || !strings.Contains(body, "serial=ABC123") {
			t.Errorf("write body = %q", body)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no write reached the server")
	}
}
