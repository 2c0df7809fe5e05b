package system

import (
	"strings"
	"sync"

	"github.com/nerrad567/que-core/internal/attribute"
	"github.com/nerrad567/que-core/internal/attrpath"
	"github.com/nerrad567/que-core/internal/schema"
)

// zoneFields are the templates a Zone resolves eagerly after each populate.
var zoneFields = []string{
	schema.ZoneTitle,
	schema.ZonePosition,
	schema.ZoneLiveTemp,
	schema.ZoneLiveHumidity,
	schema.ZoneCoolSetpoint,
	schema.ZoneHeatSetpoint,
	schema.ZoneEnabled,
	schema.ZoneExists,
	schema.ZoneCanOperate,
}

// Zone is a positional view over one zone's attributes.
//
// Fields are nil until the first populate that contains them. Once
// resolved, a field keeps returning the same *attribute.Attribute across
// refreshes.
type Zone struct {
	index    int
	registry *attribute.Registry
	prefix   string

	mu     sync.RWMutex
	fields map[string]*attribute.Attribute
}

func newZone(index int, reg *attribute.Registry) *Zone {
	return &Zone{
		index:    index,
		registry: reg,
		prefix:   attrpath.SubstituteIndex("RemoteZoneInfo.[zone]", schema.ZonePlaceholder, index),
		fields:   make(map[string]*attribute.Attribute),
	}
}

// Index returns the zone's position in the system's zone sequence.
func (z *Zone) Index() int { return z.index }

// Path returns the concrete path of a zone template for this zone.
func (z *Zone) Path(template string) string {
	return attrpath.SubstituteIndex(template, schema.ZonePlaceholder, z.index)
}

// Field returns the attribute for a zone template, resolving it from the
// registry on first use. Returns nil while the path is unpopulated.
func (z *Zone) Field(template string) *attribute.Attribute {
	z.mu.RLock()
	a := z.fields[template]
	z.mu.RUnlock()
	if a != nil {
		return a
	}

	a, ok := z.registry.Get(z.Path(template))
	if !ok {
		return nil
	}
	z.mu.Lock()
	z.fields[template] = a
	z.mu.Unlock()
	return a
}

// resolve refreshes the cached field references against the registry.
// Evicted paths are dropped from the cache.
func (z *Zone) resolve() {
	z.mu.Lock()
	defer z.mu.Unlock()
	for _, t := range zoneFields {
		if a, ok := z.registry.Get(z.Path(t)); ok {
			z.fields[t] = a
		} else {
			delete(z.fields, t)
		}
	}
}

// Title is the zone name (NV_Title).
func (z *Zone) Title() *attribute.Attribute { return z.Field(schema.ZoneTitle) }

// Position is the damper position ordinal (ZonePosition).
func (z *Zone) Position() *attribute.Attribute { return z.Field(schema.ZonePosition) }

// LiveTemp is the measured zone temperature.
func (z *Zone) LiveTemp() *attribute.Attribute { return z.Field(schema.ZoneLiveTemp) }

// LiveHumidity is the measured zone humidity.
func (z *Zone) LiveHumidity() *attribute.Attribute { return z.Field(schema.ZoneLiveHumidity) }

// CoolSetpoint is the zone cooling setpoint.
func (z *Zone) CoolSetpoint() *attribute.Attribute { return z.Field(schema.ZoneCoolSetpoint) }

// HeatSetpoint is the zone heating setpoint.
func (z *Zone) HeatSetpoint() *attribute.Attribute { return z.Field(schema.ZoneHeatSetpoint) }

// Enabled is the zone's entry in UserAirconSettings.EnabledZones.
func (z *Zone) Enabled() *attribute.Attribute { return z.Field(schema.ZoneEnabled) }

// Exists reports whether the controller has this zone configured.
func (z *Zone) Exists() bool {
	if a := z.Field(schema.ZoneExists); a != nil {
		b, ok := a.Value().AsBool()
		return ok && b
	}
	return z.Title() != nil
}

// Sensors groups the zone's sensor attributes by sensor key and field name.
func (z *Zone) Sensors() map[string]map[string]attribute.Value {
	prefix := z.prefix + attrpath.Separator + "Sensors" + attrpath.Separator
	out := make(map[string]map[string]attribute.Value)
	for _, a := range z.registry.List(prefix) {
		rest := strings.TrimPrefix(a.Path(), prefix)
		key, field, ok := strings.Cut(rest, attrpath.Separator)
		if !ok || strings.Contains(field, attrpath.Separator) {
			continue
		}
		if out[key] == nil {
			out[key] = make(map[string]attribute.Value)
		}
		out[key][field] = a.Value()
	}
	return out
}

// ZoneSnapshot is a JSON-friendly copy of a zone's state.
type ZoneSnapshot struct {
	Index        int                                   `json:"index"`
	Exists       bool                                  `json:"exists"`
	Title        *attribute.Value                      `json:"title,omitempty"`
	Position     *attribute.Value                      `json:"position,omitempty"`
	LiveTemp     *attribute.Value                      `json:"live_temp,omitempty"`
	LiveHumidity *attribute.Value                      `json:"live_humidity,omitempty"`
	CoolSetpoint *attribute.Value                      `json:"cool_setpoint,omitempty"`
	HeatSetpoint *attribute.Value                      `json:"heat_setpoint,omitempty"`
	Enabled      *attribute.Value                      `json:"enabled,omitempty"`
	Sensors      map[string]map[string]attribute.Value `json:"sensors,omitempty"`
}

// Snapshot copies the zone's current values.
func (z *Zone) Snapshot() ZoneSnapshot {
	return ZoneSnapshot{
		Index:        z.index,
		Exists:       z.Exists(),
		Title:        valueOf(z.Title()),
		Position:     valueOf(z.Position()),
		LiveTemp:     valueOf(z.LiveTemp()),
		LiveHumidity: valueOf(z.LiveHumidity()),
		CoolSetpoint: valueOf(z.CoolSetpoint()),
		HeatSetpoint: valueOf(z.HeatSetpoint()),
		Enabled:      valueOf(z.Enabled()),
		Sensors:      z.Sensors(),
	}
}

func valueOf(a *attribute.Attribute) *attribute.Value {
	if a == nil {
		return nil
	}
	v := a.Value()
	return &v
}
