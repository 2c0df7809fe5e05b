package attribute

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/que-core/internal/attrpath"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MutabilityPolicy decides the mutability of attributes created by Refresh.
// declared is false when the policy has no opinion about the path.
type MutabilityPolicy interface {
	Mutability(path string) (mutable bool, declared bool)
}

// RefreshStats summarises one Refresh call.
type RefreshStats struct {
	Leaves  int
	Created int
	Changed int
	Skipped int
}

// Registry is an identity-preserving store of Attributes keyed by path.
//
// Refreshing from a new document updates existing Attributes in place, so
// any *Attribute handed out earlier keeps tracking the same path. Paths
// missing from a later document keep their last value until Reconcile or
// Evict removes them.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Callers that refresh from
//     several goroutines must still serialise refreshes themselves if they
//     need a consistent snapshot per document.
type Registry struct {
	mu     sync.RWMutex
	attrs  map[string]*Attribute
	policy MutabilityPolicy

	sinkMu sync.RWMutex
	sink   ChangeSink
	logger Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		attrs:  make(map[string]*Attribute),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger used for change and skip diagnostics.
func (r *Registry) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// SetPolicy sets the mutability policy consulted when Refresh creates attributes.
func (r *Registry) SetPolicy(p MutabilityPolicy) {
	r.mu.Lock()
	r.policy = p
	r.mu.Unlock()
}

// SetChangeSink sets the sink receiving change records. A nil sink disables delivery.
func (r *Registry) SetChangeSink(s ChangeSink) {
	r.sinkMu.Lock()
	r.sink = s
	r.sinkMu.Unlock()
}

// emit logs a change and forwards it to the sink.
func (r *Registry) emit(ch Change) {
	r.logger.Debug("attribute changed", "path", ch.Path, "old", ch.Old.String(), "new", ch.New.String())

	r.sinkMu.RLock()
	sink := r.sink
	r.sinkMu.RUnlock()
	if sink != nil {
		sink.AttributeChanged(ch)
	}
}

// Refresh flattens doc and reconciles every leaf into the registry.
//
// Existing paths are updated in place; new paths are created with the
// mutability declared by the policy, or true when undeclared. Leaves whose
// value is not a JSON scalar, and mapping keys with no path form, are
// skipped and logged.
//
// Returns ErrInvalidDocument if doc is not a mapping or sequence.
func (r *Registry) Refresh(doc any) (RefreshStats, error) {
	var stats RefreshStats

	var leaves []attrpath.Leaf
	err := attrpath.Walk(doc, func(path string, v any) {
		leaves = append(leaves, attrpath.Leaf{Path: path, Value: v})
	}, func(e *attrpath.KeyError) {
		stats.Skipped++
		r.logger.Warn("skipping attribute", "parent", e.Parent, "key", e.Key, "error", e)
	})
	if err != nil {
		return stats, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	for _, leaf := range leaves {
		stats.Leaves++
		v, err := ValueOf(leaf.Value)
		if err != nil {
			stats.Skipped++
			r.logger.Warn("skipping attribute", "path", leaf.Path, "error", err)
			continue
		}

		_, created, changed, err := r.upsert(leaf.Path, v, r.mutabilityFor(leaf.Path))
		if err != nil {
			stats.Skipped++
			r.logger.Warn("skipping attribute", "path", leaf.Path, "error", err)
			continue
		}
		if created {
			stats.Created++
		} else if changed {
			stats.Changed++
		}
	}

	return stats, nil
}

// mutabilityFor consults the policy; undeclared paths default to mutable.
func (r *Registry) mutabilityFor(path string) bool {
	r.mu.RLock()
	policy := r.policy
	r.mu.RUnlock()

	if policy != nil {
		if m, declared := policy.Mutability(path); declared {
			return m
		}
	}
	return true
}

// Upsert creates the attribute at path or updates it in place.
// The mutability flag is applied in both cases.
// Returns the attribute and whether it was newly created.
func (r *Registry) Upsert(path string, v Value, mutable bool) (*Attribute, bool, error) {
	a, created, _, err := r.upsert(path, v, mutable)
	return a, created, err
}

func (r *Registry) upsert(path string, v Value, mutable bool) (a *Attribute, created, changed bool, err error) {
	r.mu.Lock()
	a, ok := r.attrs[path]
	if !ok {
		a, err = New(path, v, mutable)
		if err != nil {
			r.mu.Unlock()
			return nil, false, false, err
		}
		a.notify = r.emit
		r.attrs[path] = a
		r.mu.Unlock()

		r.emit(Change{Path: path, Old: Null(), New: v, At: a.UpdatedAt(), Created: true})
		return a, true, false, nil
	}
	r.mu.Unlock()

	if a.Mutable() != mutable {
		a.setMutable(mutable)
	}
	return a, false, a.Set(v), nil
}

// Get returns the attribute at path. ok is false when the path has not
// been populated yet; Get never fails otherwise.
func (r *Registry) Get(path string) (a *Attribute, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok = r.attrs[path]
	return a, ok
}

// Contains reports whether path is present.
func (r *Registry) Contains(path string) bool {
	_, ok := r.Get(path)
	return ok
}

// Len returns the number of attributes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.attrs)
}

// Paths returns every path in sorted order.
func (r *Registry) Paths() []string {
	r.mu.RLock()
	paths := make([]string, 0, len(r.attrs))
	for p := range r.attrs {
		paths = append(paths, p)
	}
	r.mu.RUnlock()

	sort.Strings(paths)
	return paths
}

// List returns the attributes whose path starts with prefix, sorted by path.
// An empty prefix lists everything.
func (r *Registry) List(prefix string) []*Attribute {
	r.mu.RLock()
	out := make([]*Attribute, 0, len(r.attrs))
	for p, a := range r.attrs {
		if strings.HasPrefix(p, prefix) {
			out = append(out, a)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out
}

// Evict removes a single path. Outstanding references keep their last value
// but no longer receive updates.
func (r *Registry) Evict(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.attrs[path]; !ok {
		return false
	}
	delete(r.attrs, path)
	return true
}

// Reconcile evicts every attribute whose path does not occur in doc and
// returns the evicted paths in sorted order.
func (r *Registry) Reconcile(doc any) ([]string, error) {
	leaves, err := attrpath.Flatten(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	present := make(map[string]struct{}, len(leaves))
	for _, l := range leaves {
		present[l.Path] = struct{}{}
	}

	r.mu.Lock()
	var evicted []string
	for p := range r.attrs {
		if _, ok := present[p]; !ok {
			evicted = append(evicted, p)
			delete(r.attrs, p)
		}
	}
	r.mu.Unlock()

	sort.Strings(evicted)
	if len(evicted) > 0 {
		r.logger.Info("evicted stale attributes", "count", len(evicted), "at", time.Now().UTC())
	}
	return evicted, nil
}
