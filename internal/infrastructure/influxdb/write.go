package influxdb

import (
	"strings"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/que-core/internal/attribute"
	"github.com/nerrad567/que-core/internal/system"
)

// Measurement names.
const (
	MeasurementAttribute = "que_attribute"
	MeasurementRefresh   = "que_refresh"
)

// attributePoint converts one attribute value to a point:
//
//	que_attribute,serial=ABC123,group=RemoteZoneInfo,path=RemoteZoneInfo.[0].LiveTemp_oC value=21.5
//
// Numbers and booleans are stored in the float field "value"; text goes to
// "text". Null values produce no point.
func attributePoint(serial, path string, v attribute.Value, at time.Time) *write.Point {
	fields := make(map[string]any, 1)
	if f, ok := v.AsFloat(); ok {
		fields["value"] = f
	} else if s, ok := v.AsText(); ok {
		fields["text"] = s
	} else {
		return nil
	}

	group, _, _ := strings.Cut(path, ".")
	tags := map[string]string{
		"serial": serial,
		"group":  group,
		"path":   path,
	}
	return write.NewPoint(MeasurementAttribute, tags, fields, at)
}

func refreshPoint(serial string, stats system.PopulateStats, took time.Duration, at time.Time) *write.Point {
	return write.NewPoint(MeasurementRefresh,
		map[string]string{
			"serial": serial,
			"mode":   string(stats.Mode),
		},
		map[string]any{
			"created":     stats.Created,
			"changed":     stats.Changed,
			"applied":     stats.Applied,
			"missing":     stats.Missing,
			"failed":      len(stats.Failed),
			"evicted":     len(stats.Evicted),
			"duration_ms": took.Milliseconds(),
		},
		at,
	)
}

// WriteAttribute queues one attribute value. The write is batched and
// asynchronous.
func (c *Client) WriteAttribute(serial, path string, v attribute.Value, at time.Time) {
	if !c.IsConnected() {
		return
	}
	if at.IsZero() {
		at = time.Now()
	}
	if p := attributePoint(serial, path, v, at); p != nil {
		c.writer.WritePoint(p)
	}
}

// AttributeChanged writes the new value of every change. It makes the
// client a poller.Listener.
func (c *Client) AttributeChanged(serial string, ch attribute.Change) {
	c.WriteAttribute(serial, ch.Path, ch.New, ch.At)
}

// SystemRefreshed writes refresh statistics.
func (c *Client) SystemRefreshed(serial string, stats system.PopulateStats, took time.Duration) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(refreshPoint(serial, stats, took, time.Now()))
}
