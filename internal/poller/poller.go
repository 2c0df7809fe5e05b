package poller

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/que-core/internal/attribute"
	"github.com/nerrad567/que-core/internal/que"
	"github.com/nerrad567/que-core/internal/schema"
	"github.com/nerrad567/que-core/internal/system"
)

const (
	defaultInterval    = 30 * time.Second
	defaultConcurrency = 4
)

// Logger defines the logging interface used by the Poller.
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

// Listener receives attribute changes and refresh results for every system.
//
// Methods are called synchronously from the refreshing goroutine and must
// not block for long.
type Listener interface {
	AttributeChanged(serial string, ch attribute.Change)
	SystemRefreshed(serial string, stats system.PopulateStats, took time.Duration)
}

// Options configures a Poller.
type Options struct {
	// Interval between refresh rounds. Defaults to 30s.
	Interval time.Duration

	// Concurrency bounds how many systems refresh at once. Defaults to 4.
	Concurrency int

	// Serials restricts polling to the listed systems. Empty means all.
	Serials []string

	// Per-system settings.
	Mode       system.Mode
	MaxZones   int
	Catalog    *schema.Catalog
	EvictStale bool

	Logger Logger
}

// Status is the polling health of one system.
type Status struct {
	Serial      string    `json:"serial"`
	LastRefresh time.Time `json:"last_refresh,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	Refreshes   int       `json:"refreshes"`
}

type entry struct {
	sys *system.System

	// refreshMu serialises fetch and populate for this system.
	refreshMu sync.Mutex

	statusMu sync.Mutex
	status   Status
}

// Poller keeps a set of Systems in step with a que.Source.
//
// Thread Safety: All methods are safe for concurrent use.
type Poller struct {
	source que.Source
	sender system.CommandSender
	opts   Options
	logger Logger

	mu      sync.RWMutex
	systems map[string]*entry

	lmu       sync.RWMutex
	listeners []Listener
}

// New creates a Poller. sender may be nil, in which case commands fail
// with system.ErrNoCommandSink.
func New(source que.Source, sender system.CommandSender, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.MaxZones <= 0 {
		opts.MaxZones = schema.MaxZones
	}
	if opts.Catalog == nil {
		opts.Catalog = schema.Default(opts.MaxZones)
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Poller{
		source:  source,
		sender:  sender,
		opts:    opts,
		logger:  logger,
		systems: make(map[string]*entry),
	}
}

// AddListener registers a listener for changes and refresh results.
func (p *Poller) AddListener(l Listener) {
	p.lmu.Lock()
	p.listeners = append(p.listeners, l)
	p.lmu.Unlock()
}

func (p *Poller) snapshotListeners() []Listener {
	p.lmu.RLock()
	defer p.lmu.RUnlock()
	return slices.Clone(p.listeners)
}

// Sync lists the account's systems and creates a System for each new
// serial. Existing Systems are kept so attribute identity survives.
// Returns the serials added by this call.
func (p *Poller) Sync(ctx context.Context) ([]string, error) {
	found, err := p.source.ListSystems(ctx)
	if err != nil {
		return nil, fmt.Errorf("syncing systems: %w", err)
	}

	var added []string
	for _, acs := range found {
		if len(p.opts.Serials) > 0 && !slices.Contains(p.opts.Serials, acs.Serial) {
			continue
		}

		p.mu.RLock()
		_, exists := p.systems[acs.Serial]
		p.mu.RUnlock()
		if exists {
			continue
		}

		sys, err := p.newSystem(acs)
		if err != nil {
			return added, err
		}

		p.mu.Lock()
		if _, exists := p.systems[acs.Serial]; !exists {
			p.systems[acs.Serial] = &entry{sys: sys, status: Status{Serial: acs.Serial}}
			added = append(added, acs.Serial)
		}
		p.mu.Unlock()
	}

	if len(added) > 0 {
		p.logger.Info("systems discovered", "added", added, "total", p.Len())
	}
	return added, nil
}

func (p *Poller) newSystem(acs que.ACSystem) (*system.System, error) {
	serial := acs.Serial
	sys, err := system.New(system.Info{
		Serial:      acs.Serial,
		Description: acs.Description,
		ID:          acs.ID,
		Type:        acs.Type,
	}, system.Options{
		MaxZones:   p.opts.MaxZones,
		Mode:       p.opts.Mode,
		Catalog:    p.opts.Catalog,
		EvictStale: p.opts.EvictStale,
		Logger:     p.logger,
		Sender:     p.sender,
		Sink: attribute.ChangeFunc(func(ch attribute.Change) {
			for _, l := range p.snapshotListeners() {
				l.AttributeChanged(serial, ch)
			}
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("creating system %s: %w", serial, err)
	}
	return sys, nil
}

// Len returns the number of known systems.
func (p *Poller) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.systems)
}

// System returns the System for serial.
func (p *Poller) System(serial string) (*system.System, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.systems[serial]
	if !ok {
		return nil, false
	}
	return e.sys, true
}

// Systems returns every known System ordered by serial.
func (p *Poller) Systems() []*system.System {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*system.System, 0, len(p.systems))
	for _, e := range p.systems {
		out = append(out, e.sys)
	}
	slices.SortFunc(out, func(a, b *system.System) int {
		switch {
		case a.Serial() < b.Serial():
			return -1
		case a.Serial() > b.Serial():
			return 1
		}
		return 0
	})
	return out
}

// Status returns the polling health of serial.
func (p *Poller) Status(serial string) (Status, bool) {
	p.mu.RLock()
	e, ok := p.systems[serial]
	p.mu.RUnlock()
	if !ok {
		return Status{}, false
	}
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	return e.status, true
}

func (p *Poller) entry(serial string) (*entry, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.systems[serial]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSystem, serial)
	}
	return e, nil
}

// Refresh fetches the latest status of serial and populates its System.
// Refreshes of the same system never overlap.
func (p *Poller) Refresh(ctx context.Context, serial string) (system.PopulateStats, error) {
	e, err := p.entry(serial)
	if err != nil {
		return system.PopulateStats{}, err
	}

	e.refreshMu.Lock()
	defer e.refreshMu.Unlock()

	start := time.Now()
	stats, err := p.refreshLocked(ctx, e)
	took := time.Since(start)

	e.statusMu.Lock()
	if err != nil {
		e.status.LastError = err.Error()
	} else {
		e.status.LastError = ""
		e.status.LastRefresh = time.Now()
		e.status.Refreshes++
	}
	e.statusMu.Unlock()

	if err != nil {
		return stats, err
	}

	p.logger.Debug("system refreshed",
		"serial", serial,
		"mode", stats.Mode,
		"created", stats.Created,
		"changed", stats.Changed,
		"failed", len(stats.Failed),
		"took", took,
	)
	for _, l := range p.snapshotListeners() {
		l.SystemRefreshed(serial, stats, took)
	}
	return stats, nil
}

func (p *Poller) refreshLocked(ctx context.Context, e *entry) (system.PopulateStats, error) {
	serial := e.sys.Serial()
	doc, err := p.source.LatestStatus(ctx, serial)
	if err != nil {
		return system.PopulateStats{}, fmt.Errorf("fetching %s: %w", serial, err)
	}
	stats, err := e.sys.Populate(doc)
	if err != nil {
		return stats, fmt.Errorf("populating %s: %w", serial, err)
	}
	for _, fe := range stats.Failed {
		p.logger.Warn("attribute coercion failed", "serial", serial, "path", fe.Path, "error", fe.Err)
	}
	return stats, nil
}

// RefreshAll refreshes every known system, up to Concurrency at a time.
// A failing system does not stop the others; all failures are joined.
func (p *Poller) RefreshAll(ctx context.Context) error {
	p.mu.RLock()
	serials := make([]string, 0, len(p.systems))
	for serial := range p.systems {
		serials = append(serials, serial)
	}
	p.mu.RUnlock()
	slices.Sort(serials)

	errs := make([]error, len(serials))
	var g errgroup.Group
	g.SetLimit(p.opts.Concurrency)
	for i, serial := range serials {
		g.Go(func() error {
			if _, err := p.Refresh(ctx, serial); err != nil {
				p.logger.Error("refresh failed", "serial", serial, "error", err)
				errs[i] = err
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // goroutines record into errs
	return errors.Join(errs...)
}

// Run syncs and refreshes until ctx is cancelled. Sync is retried on every
// tick until it succeeds.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("poller started", "interval", p.opts.Interval, "concurrency", p.opts.Concurrency)

	synced := false
	round := func() {
		if !synced {
			if _, err := p.Sync(ctx); err != nil {
				p.logger.Error("system sync failed", "error", err)
				return
			}
			synced = true
		}
		if err := p.RefreshAll(ctx); err != nil && ctx.Err() == nil {
			p.logger.Warn("refresh round had failures", "error", err)
		}
	}

	round()

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped")
			return nil
		case <-ticker.C:
			round()
		}
	}
}
