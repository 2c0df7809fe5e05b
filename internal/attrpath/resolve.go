package attrpath

import (
	"fmt"
	"sort"
	"strconv"
)

// Resolve walks doc along segs and returns the value found there.
//
// Index segments select from sequences; on a mapping they are looked up by
// their decimal text. Returns ErrPathNotFound when any segment is absent and
// ErrInvalidPath when a placeholder has not been substituted.
func Resolve(doc any, segs []Segment) (any, error) {
	node := doc
	for i, s := range segs {
		if s.IsPlaceholder() {
			return nil, fmt.Errorf("%w: unsubstituted placeholder %s", ErrInvalidPath, s.Name)
		}
		next, ok := step(node, s)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrPathNotFound, Join(segs[:i+1]))
		}
		node = next
	}
	return node, nil
}

// ResolvePath parses path and resolves it against doc.
func ResolvePath(doc any, path string) (any, error) {
	segs, err := Parse(path)
	if err != nil {
		return nil, err
	}
	return Resolve(doc, segs)
}

// Keys returns the sorted keys of the mapping found at segs.
// Returns ErrPathNotFound if the path is absent or does not lead to a mapping.
func Keys(doc any, segs []Segment) ([]string, error) {
	node, err := Resolve(doc, segs)
	if err != nil {
		return nil, err
	}
	m, ok := node.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a mapping", ErrPathNotFound, Join(segs))
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func step(node any, s Segment) (any, bool) {
	switch n := node.(type) {
	case map[string]any:
		key := s.Name
		if s.IsIndex {
			key = strconv.Itoa(s.Index)
		}
		v, ok := n[key]
		return v, ok
	case []any:
		if !s.IsIndex || s.Index < 0 || s.Index >= len(n) {
			return nil, false
		}
		return n[s.Index], true
	}
	return nil, false
}
