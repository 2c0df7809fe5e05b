package attrpath

import (
	"fmt"
	"sort"
)

// Leaf is one scalar value found in a document together with its path.
type Leaf struct {
	Path  string
	Value any
}

// Flatten walks a JSON-decoded document and returns every scalar leaf.
//
// Mapping keys become name segments and sequence positions become index
// segments. Recursion stops at any scalar (bool, number, string or nil).
// Empty mappings and sequences contribute nothing. Mapping keys are visited
// in sorted order so the output is deterministic. Keys that cannot be
// written as a single name segment are dropped with their subtree; use Walk
// to observe them.
//
// Returns ErrNotContainer if the root itself is a scalar.
func Flatten(doc any) ([]Leaf, error) {
	var leaves []Leaf
	err := Walk(doc, func(path string, v any) {
		leaves = append(leaves, Leaf{Path: path, Value: v})
	}, nil)
	if err != nil {
		return nil, err
	}
	return leaves, nil
}

// KeyError reports a mapping key that has no unambiguous path form: it is
// empty, contains the separator, or reads as an index or placeholder.
type KeyError struct {
	Parent string
	Key    string
}

func (e *KeyError) Error() string {
	if e.Parent == "" {
		return fmt.Sprintf("%v: key %q is not addressable", ErrInvalidPath, e.Key)
	}
	return fmt.Sprintf("%v: key %q under %s is not addressable", ErrInvalidPath, e.Key, e.Parent)
}

func (e *KeyError) Unwrap() error { return ErrInvalidPath }

// CheckKey returns a *KeyError if key would not parse back as exactly one
// name segment equal to itself.
func CheckKey(parent, key string) error {
	if e := keyError(parent, key); e != nil {
		return e
	}
	return nil
}

func keyError(parent, key string) *KeyError {
	segs, err := Parse(key)
	if err != nil || len(segs) != 1 || segs[0].IsIndex || segs[0].IsPlaceholder() {
		return &KeyError{Parent: parent, Key: key}
	}
	return nil
}

// Walk calls fn for every scalar leaf of doc in the same order as Flatten.
// Unaddressable keys are skipped together with their subtree and passed to
// invalid when it is non-nil.
func Walk(doc any, fn func(path string, value any), invalid func(*KeyError)) error {
	if !IsContainer(doc) {
		return fmt.Errorf("%w: root is %T", ErrNotContainer, doc)
	}
	if invalid == nil {
		invalid = func(*KeyError) {}
	}
	walk("", doc, fn, invalid)
	return nil
}

func walk(prefix string, node any, fn func(string, any), invalid func(*KeyError)) {
	switch n := node.(type) {
	case map[string]any:
		keys := make([]string, 0, len(n))
		for k := range n {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if e := keyError(prefix, k); e != nil {
				invalid(e)
				continue
			}
			walk(Append(prefix, Field(k)), n[k], fn, invalid)
		}
	case []any:
		for i, v := range n {
			walk(Append(prefix, Index(i)), v, fn, invalid)
		}
	default:
		fn(prefix, n)
	}
}

// IsContainer reports whether v is a JSON mapping or sequence.
func IsContainer(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}
