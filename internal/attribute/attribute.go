package attribute

import (
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/que-core/internal/attrpath"
)

// Change records one value transition of an Attribute.
// Created is set for the first observation of a path; Old is null then.
type Change struct {
	Path    string    `json:"path"`
	Old     Value     `json:"old"`
	New     Value     `json:"new"`
	At      time.Time `json:"at"`
	Created bool      `json:"created,omitempty"`
}

// ChangeSink receives attribute change records.
//
// Sinks are called synchronously from the goroutine performing the update
// and must not block for long.
type ChangeSink interface {
	AttributeChanged(ch Change)
}

// ChangeFunc adapts a function to ChangeSink.
type ChangeFunc func(ch Change)

// AttributeChanged calls f(ch).
func (f ChangeFunc) AttributeChanged(ch Change) { f(ch) }

// Attribute is a single named, typed, path-addressed value.
//
// The path never changes once created. Mutable is advisory metadata: the
// Attribute itself accepts any Set; the command layer enforces it.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Attribute struct {
	path string
	leaf string

	mu        sync.RWMutex
	value     Value
	mutable   bool
	updatedAt time.Time

	// notify is installed by the owning Registry; nil for standalone attributes.
	notify func(Change)
}

// New creates a standalone Attribute.
// Returns ErrInvalidPath if path is empty or malformed.
func New(path string, value Value, mutable bool) (*Attribute, error) {
	if _, err := attrpath.Parse(path); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPath, err)
	}
	return &Attribute{
		path:      path,
		leaf:      attrpath.LastSegment(path),
		value:     value,
		mutable:   mutable,
		updatedAt: time.Now().UTC(),
	}, nil
}

// Path returns the attribute's full path.
func (a *Attribute) Path() string { return a.path }

// Leaf returns the final path segment (e.g. "LiveTemp_oC").
func (a *Attribute) Leaf() string { return a.leaf }

// Value returns the current value.
func (a *Attribute) Value() Value {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.value
}

// Mutable reports whether commands may target this attribute.
func (a *Attribute) Mutable() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.mutable
}

// UpdatedAt returns when the value last changed.
func (a *Attribute) UpdatedAt() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.updatedAt
}

// Set replaces the value. Setting an equal value is a no-op; otherwise a
// Change is emitted to the owning registry's sink.
// Returns true if the value changed.
func (a *Attribute) Set(v Value) bool {
	a.mu.Lock()
	old := a.value
	if old.Equal(v) {
		// Int(1) -> Float(1) keeps the newer kind without reporting a change.
		a.value = v
		a.mu.Unlock()
		return false
	}
	a.value = v
	now := time.Now().UTC()
	a.updatedAt = now
	notify := a.notify
	a.mu.Unlock()

	if notify != nil {
		notify(Change{Path: a.path, Old: old, New: v, At: now})
	}
	return true
}

// setMutable updates the mutability flag; used when a schema declares it.
func (a *Attribute) setMutable(m bool) {
	a.mu.Lock()
	a.mutable = m
	a.mu.Unlock()
}

// Equals compares the current value against a literal (21.5, "Lounge", true)
// or another Value. Unsupported literals never compare equal.
func (a *Attribute) Equals(other any) bool {
	if o, ok := other.(*Attribute); ok {
		return a.Value().Equal(o.Value())
	}
	v, err := ValueOf(other)
	if err != nil {
		return false
	}
	return a.Value().Equal(v)
}

// String formats the value.
func (a *Attribute) String() string {
	return a.Value().String()
}

// GoString formats path and value for debugging.
func (a *Attribute) GoString() string {
	return fmt.Sprintf("Attribute(%s: %s)", a.path, a.Value())
}
