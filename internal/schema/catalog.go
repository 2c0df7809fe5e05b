package schema

import (
	"errors"
	"fmt"
	"sort"

	"github.com/nerrad567/que-core/internal/attribute"
	"github.com/nerrad567/que-core/internal/attrpath"
)

// Logger defines the logging interface used by the Catalog.
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

// Entry describes a family of expected paths.
//
// Placeholder names the repetition segment of Template ("[zone]") and is
// empty for fixed paths. Templates may additionally contain keyed
// placeholders ("{sensor}") whose keys are discovered from the document.
type Entry struct {
	Template    string         `json:"template"`
	Placeholder string         `json:"placeholder,omitempty"`
	Kind        attribute.Kind `json:"kind"`
	Mutable     bool           `json:"mutable"`
	Group       string         `json:"group,omitempty"`
}

// Expand returns one concrete entry per index 0..count-1. Entries without a
// repetition placeholder expand to themselves.
func (e Entry) Expand(count int) []Entry {
	if e.Placeholder == "" {
		return []Entry{e}
	}
	out := make([]Entry, 0, max(count, 0))
	for i := 0; i < count; i++ {
		c := e
		c.Template = attrpath.SubstituteIndex(e.Template, e.Placeholder, i)
		c.Placeholder = ""
		out = append(out, c)
	}
	return out
}

// At returns the entry expanded for a single index.
func (e Entry) At(index int) Entry {
	if e.Placeholder == "" {
		return e
	}
	c := e
	c.Template = attrpath.SubstituteIndex(e.Template, e.Placeholder, index)
	c.Placeholder = ""
	return c
}

// Path returns the template; meaningful as a concrete path once expanded.
func (e Entry) Path() string { return e.Template }

// Concrete reports whether the entry has no placeholders left.
func (e Entry) Concrete() bool {
	return e.Placeholder == "" && len(attrpath.Placeholders(e.Template)) == 0
}

func (e Entry) validate() error {
	if _, err := attrpath.Parse(e.Template); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEntry, err)
	}
	if e.Placeholder != "" && !attrpath.HasPlaceholder(e.Template, e.Placeholder) {
		return fmt.Errorf("%w: %s does not contain %s", ErrInvalidEntry, e.Template, e.Placeholder)
	}
	if e.Kind > attribute.KindText {
		return fmt.Errorf("%w: %s has unknown kind %s", ErrInvalidEntry, e.Template, e.Kind)
	}
	return nil
}

// Group is a named set of entries sharing a repetition placeholder and bound.
type Group struct {
	Name        string  `json:"name"`
	Placeholder string  `json:"placeholder,omitempty"`
	Repeat      int     `json:"repeat,omitempty"`
	Mutable     bool    `json:"mutable"`
	Entries     []Entry `json:"entries"`
}

// Field declares an entry. Mutable overrides the group default when set.
type Field struct {
	Template string
	Kind     attribute.Kind
	Mutable  *bool
}

// Writable declares a field that accepts commands regardless of its group.
func Writable(template string, kind attribute.Kind) Field {
	m := true
	return Field{Template: template, Kind: kind, Mutable: &m}
}

// NewGroup builds a group whose entries inherit its placeholder and, unless
// a field overrides it, its mutability.
func NewGroup(name, placeholder string, repeat int, mutable bool, fields ...Field) Group {
	g := Group{Name: name, Placeholder: placeholder, Repeat: repeat, Mutable: mutable}
	for _, f := range fields {
		ph := ""
		if placeholder != "" && attrpath.HasPlaceholder(f.Template, placeholder) {
			ph = placeholder
		}
		m := mutable
		if f.Mutable != nil {
			m = *f.Mutable
		}
		g.Entries = append(g.Entries, Entry{
			Template:    f.Template,
			Placeholder: ph,
			Kind:        f.Kind,
			Mutable:     m,
			Group:       name,
		})
	}
	return g
}

// FieldError records one entry that failed to apply.
type FieldError struct {
	Path string
	Err  error
}

func (e FieldError) Error() string { return e.Path + ": " + e.Err.Error() }

func (e FieldError) Unwrap() error { return e.Err }

// Report summarises an ApplyAll call.
type Report struct {
	Applied int
	Missing int
	Failed  []FieldError
}

// Err joins the per-field failures, or returns nil when there were none.
func (r Report) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failed))
	for i := range r.Failed {
		errs[i] = r.Failed[i]
	}
	return errors.Join(errs...)
}

// Catalog is a constructed set of schema groups.
//
// A Catalog is read-only after construction and safe for concurrent use.
type Catalog struct {
	groups []Group
	byPath map[string]Entry
	logger Logger
}

// NewCatalog validates the groups and returns a catalog.
// Returns ErrInvalidEntry or ErrDuplicateEntry on bad input.
func NewCatalog(groups ...Group) (*Catalog, error) {
	c := &Catalog{
		groups: make([]Group, 0, len(groups)),
		byPath: make(map[string]Entry),
		logger: noopLogger{},
	}
	for _, g := range groups {
		if g.Repeat < 0 {
			return nil, fmt.Errorf("%w: group %s has negative repeat", ErrInvalidEntry, g.Name)
		}
		for i := range g.Entries {
			e := g.Entries[i]
			if err := e.validate(); err != nil {
				return nil, err
			}
			if _, dup := c.byPath[e.Template]; dup {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateEntry, e.Template)
			}
			c.byPath[e.Template] = e
		}
		c.groups = append(c.groups, g)
	}
	return c, nil
}

// SetLogger sets the logger for skipped and failed entries.
func (c *Catalog) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.logger = logger
}

// Groups returns a copy of the catalog's groups.
func (c *Catalog) Groups() []Group {
	out := make([]Group, len(c.groups))
	copy(out, c.groups)
	return out
}

// Group returns the named group.
func (c *Catalog) Group(name string) (Group, bool) {
	for _, g := range c.groups {
		if g.Name == name {
			return g, true
		}
	}
	return Group{}, false
}

// Entries returns every template entry in declaration order.
func (c *Catalog) Entries() []Entry {
	var out []Entry
	for _, g := range c.groups {
		out = append(out, g.Entries...)
	}
	return out
}

// Expand returns every entry expanded by its group's repetition bound.
// Keyed placeholders remain; ApplyAll resolves them against a document.
func (c *Catalog) Expand() []Entry {
	var out []Entry
	for _, g := range c.groups {
		for _, e := range g.Entries {
			out = append(out, e.Expand(g.Repeat)...)
		}
	}
	return out
}

// Lookup returns the template entry a concrete path is an instance of.
func (c *Catalog) Lookup(path string) (Entry, bool) {
	if e, ok := c.byPath[path]; ok {
		return e, true
	}
	for _, g := range c.groups {
		for _, e := range g.Entries {
			if attrpath.Match(e.Template, path) {
				return e, true
			}
		}
	}
	return Entry{}, false
}

// Mutability implements attribute.MutabilityPolicy.
func (c *Catalog) Mutability(path string) (mutable bool, declared bool) {
	e, ok := c.Lookup(path)
	if !ok {
		return false, false
	}
	return e.Mutable, true
}

// Apply resolves a concrete entry against doc, coerces the value to the
// entry's kind and writes it into reg.
//
// A path absent from doc is skipped: Apply returns (nil, nil). A value that
// cannot be coerced returns an error wrapping attribute.ErrTypeCoercion and
// leaves reg untouched.
func (c *Catalog) Apply(reg *attribute.Registry, e Entry, doc any) (*attribute.Attribute, error) {
	if !e.Concrete() {
		return nil, fmt.Errorf("%w: %s is a template", attribute.ErrInvalidPath, e.Template)
	}
	segs, err := attrpath.Parse(e.Template)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", attribute.ErrInvalidPath, err)
	}

	raw, err := attrpath.Resolve(doc, segs)
	if errors.Is(err, attrpath.ErrPathNotFound) {
		c.logger.Debug("schema path not in document", "path", e.Template)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	v, err := attribute.Coerce(raw, e.Kind)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.Template, err)
	}

	a, _, err := reg.Upsert(e.Template, v, e.Mutable)
	return a, err
}

// ApplyAll applies every expanded entry to reg. Keyed placeholders are
// substituted with the keys of the mapping found at their prefix.
//
// Per-field failures are collected in the Report; only a document that is
// not a mapping or sequence returns an error wrapping
// attribute.ErrInvalidDocument.
func (c *Catalog) ApplyAll(reg *attribute.Registry, doc any) (Report, error) {
	var rep Report
	if !attrpath.IsContainer(doc) {
		return rep, fmt.Errorf("%w: root is %T", attribute.ErrInvalidDocument, doc)
	}

	for _, e := range c.Expand() {
		for _, ce := range c.expandKeys(e, doc) {
			a, err := c.Apply(reg, ce, doc)
			switch {
			case err != nil:
				c.logger.Warn("skipping schema field", "path", ce.Template, "error", err)
				rep.Failed = append(rep.Failed, FieldError{Path: ce.Template, Err: err})
			case a == nil:
				rep.Missing++
			default:
				rep.Applied++
			}
		}
	}
	return rep, nil
}

// expandKeys substitutes each keyed placeholder with the keys present in doc.
// Entries whose key container is absent expand to nothing.
func (c *Catalog) expandKeys(e Entry, doc any) []Entry {
	pending := []Entry{e}
	for _, ph := range attrpath.Placeholders(e.Template) {
		if !attrpath.IsKeyPlaceholder(ph) {
			continue
		}
		var next []Entry
		for _, p := range pending {
			prefix, ok := attrpath.Prefix(p.Template, ph)
			if !ok {
				continue
			}
			keys, err := attrpath.Keys(doc, prefix)
			if err != nil {
				c.logger.Debug("schema keys not in document", "path", attrpath.Join(prefix))
				continue
			}
			for _, k := range keys {
				if err := attrpath.CheckKey(attrpath.Join(prefix), k); err != nil {
					c.logger.Warn("skipping schema key", "error", err)
					continue
				}
				ke := p
				ke.Template = attrpath.SubstituteKey(p.Template, ph, k)
				next = append(next, ke)
			}
		}
		pending = next
	}
	return pending
}

// Templates returns the sorted template strings of every entry.
func (c *Catalog) Templates() []string {
	out := make([]string, 0, len(c.byPath))
	for t := range c.byPath {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
