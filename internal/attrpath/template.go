package attrpath

import (
	"strings"
)

// SubstituteIndex replaces every segment equal to placeholder with a list
// index rendered exactly as Flatten renders it.
//
//	SubstituteIndex("RemoteZoneInfo.[zone].LiveTemp_oC", "[zone]", 3) == "RemoteZoneInfo.[3].LiveTemp_oC"
func SubstituteIndex(template, placeholder string, index int) string {
	return substitute(template, placeholder, FormatIndex(index))
}

// SubstituteKey replaces every segment equal to placeholder with a mapping
// key. Mapping keys flatten to plain name segments, so the key is inserted
// without brackets.
func SubstituteKey(template, placeholder, key string) string {
	return substitute(template, placeholder, key)
}

func substitute(template, placeholder, replacement string) string {
	parts := strings.Split(template, Separator)
	for i, p := range parts {
		if p == placeholder {
			parts[i] = replacement
		}
	}
	return strings.Join(parts, Separator)
}

// Placeholders returns the distinct placeholder segments of template in the
// order they first appear.
func Placeholders(template string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, p := range strings.Split(template, Separator) {
		if IsPlaceholder(p) && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// HasPlaceholder reports whether template contains the given placeholder segment.
func HasPlaceholder(template, placeholder string) bool {
	for _, p := range strings.Split(template, Separator) {
		if p == placeholder {
			return true
		}
	}
	return false
}

// Prefix returns the segments of template that precede the first occurrence
// of placeholder. ok is false if the placeholder is absent.
func Prefix(template, placeholder string) (prefix []Segment, ok bool) {
	segs, err := Parse(template)
	if err != nil {
		return nil, false
	}
	for i, s := range segs {
		if !s.IsIndex && s.Name == placeholder {
			return segs[:i], true
		}
	}
	return nil, false
}

// Match reports whether a concrete path is an instance of template.
//
// Bracketed placeholders match index segments only; braced placeholders
// match any name segment. All other segments must be equal.
func Match(template, path string) bool {
	tsegs, err := Parse(template)
	if err != nil {
		return false
	}
	psegs, err := Parse(path)
	if err != nil || len(tsegs) != len(psegs) {
		return false
	}
	for i, t := range tsegs {
		p := psegs[i]
		switch {
		case t.IsPlaceholder() && IsKeyPlaceholder(t.Name):
			if p.IsIndex || p.IsPlaceholder() {
				return false
			}
		case t.IsPlaceholder():
			if !p.IsIndex {
				return false
			}
		case t.IsIndex != p.IsIndex || t.Index != p.Index || t.Name != p.Name:
			return false
		}
	}
	return true
}
