package attrpath

import (
	"fmt"
	"strconv"
	"strings"
)

// Separator joins path segments.
const Separator = "."

// Segment is one element of a path.
//
// A Segment is either a field name (IsIndex false) or a list index
// (IsIndex true). Placeholder segments such as "[zone]" and "{sensor}" are
// represented as names; use IsPlaceholder to detect them.
type Segment struct {
	Name    string
	Index   int
	IsIndex bool
}

// Field returns a name segment.
func Field(name string) Segment {
	return Segment{Name: name}
}

// Index returns a list index segment.
func Index(i int) Segment {
	return Segment{Index: i, IsIndex: true}
}

// String renders the segment in path notation.
func (s Segment) String() string {
	if s.IsIndex {
		return FormatIndex(s.Index)
	}
	return s.Name
}

// IsPlaceholder reports whether the segment is an unsubstituted template placeholder.
func (s Segment) IsPlaceholder() bool {
	return !s.IsIndex && IsPlaceholder(s.Name)
}

// FormatIndex renders a list index the way Flatten does: "[3]".
func FormatIndex(i int) string {
	return "[" + strconv.Itoa(i) + "]"
}

// IsPlaceholder reports whether text is a placeholder segment.
// Bracketed placeholders have a non-numeric body ("[zone]"); braced
// placeholders have any non-empty body ("{sensor}").
func IsPlaceholder(text string) bool {
	if len(text) < 3 {
		return false
	}
	switch {
	case text[0] == '{' && text[len(text)-1] == '}':
		return true
	case text[0] == '[' && text[len(text)-1] == ']':
		_, err := strconv.Atoi(text[1 : len(text)-1])
		return err != nil
	}
	return false
}

// IsKeyPlaceholder reports whether text is a braced placeholder that stands
// for a mapping key rather than a list index.
func IsKeyPlaceholder(text string) bool {
	return IsPlaceholder(text) && text[0] == '{'
}

// Parse splits a path into segments.
//
// Bracketed integers become index segments; everything else, including
// placeholders, becomes a name segment. Returns ErrInvalidPath for an empty
// path or an empty segment ("a..b").
func Parse(path string) ([]Segment, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	parts := strings.Split(path, Separator)
	segs := make([]Segment, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("%w: empty segment in %q", ErrInvalidPath, path)
		}
		if len(p) > 2 && p[0] == '[' && p[len(p)-1] == ']' {
			if i, err := strconv.Atoi(p[1 : len(p)-1]); err == nil {
				if i < 0 {
					return nil, fmt.Errorf("%w: negative index in %q", ErrInvalidPath, path)
				}
				segs = append(segs, Index(i))
				continue
			}
		}
		segs = append(segs, Field(p))
	}
	return segs, nil
}

// Join renders segments back into a path string.
func Join(segs []Segment) string {
	parts := make([]string, len(segs))
	for i, s := range segs {
		parts[i] = s.String()
	}
	return strings.Join(parts, Separator)
}

// Append returns path extended by one segment.
func Append(path string, seg Segment) string {
	if path == "" {
		return seg.String()
	}
	return path + Separator + seg.String()
}

// LastSegment returns the final segment of a path.
func LastSegment(path string) string {
	if i := strings.LastIndex(path, Separator); i >= 0 {
		return path[i+1:]
	}
	return path
}

// IsConcrete reports whether path parses and contains no placeholders.
func IsConcrete(path string) bool {
	segs, err := Parse(path)
	if err != nil {
		return false
	}
	for _, s := range segs {
		if s.IsPlaceholder() {
			return false
		}
	}
	return true
}

// CommandKey converts an attribute path into the key the cloud API expects
// in a set-settings command: index segments attach to the preceding name.
//
//	RemoteZoneInfo.[2].TemperatureSetpoint_Cool_oC -> RemoteZoneInfo[2].TemperatureSetpoint_Cool_oC
func CommandKey(path string) string {
	return strings.ReplaceAll(path, Separator+"[", "[")
}
