package system

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/que-core/internal/attribute"
	"github.com/nerrad567/que-core/internal/schema"
)

// Logger defines the logging interface used by System.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Mode selects how Populate maps a document into the registry.
type Mode string

const (
	// ModeSchema applies the catalog: only declared paths, coerced to their kinds.
	ModeSchema Mode = "schema"

	// ModeFlatten stores every leaf of the document with its natural kind.
	ModeFlatten Mode = "flatten"
)

// ParseMode validates a mode name. The empty string selects ModeSchema.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeSchema:
		return ModeSchema, nil
	case ModeFlatten:
		return ModeFlatten, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// stateKey is the envelope key the cloud wraps the controller state in.
const stateKey = "lastKnownState"

// CommandSender delivers a formatted command payload for one system.
type CommandSender interface {
	SendCommand(ctx context.Context, serial string, payload map[string]any) error
}

// Info identifies a discovered air-conditioning system.
type Info struct {
	Serial      string `json:"serial"`
	Description string `json:"description"`
	ID          int64  `json:"id"`
	Type        string `json:"type"`
}

// Options configures a System.
type Options struct {
	// MaxZones is the length of the zone sequence. Defaults to schema.MaxZones.
	MaxZones int

	// Mode defaults to ModeSchema.
	Mode Mode

	// Catalog defaults to schema.Default(MaxZones).
	Catalog *schema.Catalog

	// EvictStale removes paths missing from the latest document after a
	// flatten-mode populate. Stale paths are retained otherwise.
	EvictStale bool

	Logger Logger
	Sender CommandSender
	Sink   attribute.ChangeSink
}

// PopulateStats summarises one Populate call.
type PopulateStats struct {
	Mode    Mode
	Leaves  int
	Created int
	Changed int
	Skipped int
	Applied int
	Missing int
	Failed  []schema.FieldError
	Evicted []string
}

// System is one Que controller and the attributes populated from its status.
//
// Populate calls are serialised per System. Readers may use the registry
// and zone views concurrently with a populate.
type System struct {
	info       Info
	mode       Mode
	evictStale bool
	catalog    *schema.Catalog
	registry   *attribute.Registry
	zones      []*Zone
	sender     CommandSender
	logger     Logger

	populateMu sync.Mutex

	mu          sync.RWMutex
	document    any
	populatedAt time.Time
	populates   int
}

// New creates a System. The zone sequence is allocated up front and stays
// fixed for the lifetime of the System.
func New(info Info, opts Options) (*System, error) {
	mode, err := ParseMode(string(opts.Mode))
	if err != nil {
		return nil, err
	}
	if opts.MaxZones <= 0 {
		opts.MaxZones = schema.MaxZones
	}
	if opts.Catalog == nil {
		opts.Catalog = schema.Default(opts.MaxZones)
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	reg := attribute.NewRegistry()
	reg.SetLogger(opts.Logger)
	reg.SetPolicy(opts.Catalog)
	if opts.Sink != nil {
		reg.SetChangeSink(opts.Sink)
	}

	s := &System{
		info:       info,
		mode:       mode,
		evictStale: opts.EvictStale,
		catalog:    opts.Catalog,
		registry:   reg,
		sender:     opts.Sender,
		logger:     opts.Logger,
	}
	s.zones = make([]*Zone, opts.MaxZones)
	for i := range s.zones {
		s.zones[i] = newZone(i, reg)
	}
	return s, nil
}

// Info returns the system's identity.
func (s *System) Info() Info { return s.info }

// Serial returns the system's serial number.
func (s *System) Serial() string { return s.info.Serial }

// Mode returns the populate mode.
func (s *System) Mode() Mode { return s.mode }

// Registry returns the system's attribute registry.
func (s *System) Registry() *attribute.Registry { return s.registry }

// Catalog returns the schema catalog.
func (s *System) Catalog() *schema.Catalog { return s.catalog }

// SetChangeSink replaces the registry's change sink.
func (s *System) SetChangeSink(sink attribute.ChangeSink) { s.registry.SetChangeSink(sink) }

// SetSender replaces the command sender.
func (s *System) SetSender(sender CommandSender) {
	s.mu.Lock()
	s.sender = sender
	s.mu.Unlock()
}

// Zones returns the fixed zone sequence.
func (s *System) Zones() []*Zone {
	out := make([]*Zone, len(s.zones))
	copy(out, s.zones)
	return out
}

// Zone returns the zone view at index.
func (s *System) Zone(index int) (*Zone, error) {
	if index < 0 || index >= len(s.zones) {
		return nil, fmt.Errorf("%w: %d", ErrZoneOutOfRange, index)
	}
	return s.zones[index], nil
}

// Document returns the last populated document, or nil.
func (s *System) Document() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.document
}

// PopulatedAt returns when Populate last succeeded and how many times it has.
func (s *System) PopulatedAt() (time.Time, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.populatedAt, s.populates
}

// Populate maps a status document into the registry and re-resolves the
// zone views. A document wrapped in a "lastKnownState" envelope is unwrapped.
//
// Per-field failures are reported in PopulateStats. Only a document that is
// not a mapping or sequence returns an error (attribute.ErrInvalidDocument).
func (s *System) Populate(doc any) (PopulateStats, error) {
	s.populateMu.Lock()
	defer s.populateMu.Unlock()

	stats := PopulateStats{Mode: s.mode}
	root := unwrap(doc)

	switch s.mode {
	case ModeFlatten:
		rs, err := s.registry.Refresh(root)
		if err != nil {
			return stats, err
		}
		stats.Leaves, stats.Created, stats.Changed, stats.Skipped = rs.Leaves, rs.Created, rs.Changed, rs.Skipped
		if s.evictStale {
			evicted, err := s.registry.Reconcile(root)
			if err != nil {
				return stats, err
			}
			stats.Evicted = evicted
		}
	default:
		rep, err := s.catalog.ApplyAll(s.registry, root)
		if err != nil {
			return stats, err
		}
		stats.Applied, stats.Missing, stats.Failed = rep.Applied, rep.Missing, rep.Failed
		stats.Skipped = len(rep.Failed)
	}

	for _, z := range s.zones {
		z.resolve()
	}

	s.mu.Lock()
	s.document = root
	s.populatedAt = time.Now().UTC()
	s.populates++
	s.mu.Unlock()

	s.logger.Debug("system populated",
		"serial", s.info.Serial,
		"mode", string(s.mode),
		"attributes", s.registry.Len(),
		"skipped", stats.Skipped,
	)
	return stats, nil
}

func unwrap(doc any) any {
	if m, ok := doc.(map[string]any); ok {
		if inner, ok := m[stateKey].(map[string]any); ok {
			return inner
		}
	}
	return doc
}
