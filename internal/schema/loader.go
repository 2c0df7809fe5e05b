package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/que-core/internal/attribute"
)

// catalogFile is the YAML layout of a catalog override file.
//
//	groups:
//	  - name: zones
//	    placeholder: "[zone]"
//	    mutable: true
//	    entries:
//	      - path: RemoteZoneInfo.[zone].NV_Title
//	        kind: text
//	        mutable: false
type catalogFile struct {
	Groups []groupFile `yaml:"groups"`
}

type groupFile struct {
	Name        string      `yaml:"name"`
	Placeholder string      `yaml:"placeholder"`
	Repeat      *int        `yaml:"repeat"`
	Mutable     bool        `yaml:"mutable"`
	Entries     []entryFile `yaml:"entries"`
}

type entryFile struct {
	Path    string `yaml:"path"`
	Kind    string `yaml:"kind"`
	Mutable *bool  `yaml:"mutable"`
}

// LoadFile reads a YAML catalog. Groups that declare a placeholder but no
// repeat bound use defaultRepeat.
func LoadFile(path string, defaultRepeat int) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog file: %w", err)
	}
	return Parse(data, defaultRepeat)
}

// Parse builds a catalog from YAML bytes.
func Parse(data []byte, defaultRepeat int) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing catalog file: %w", err)
	}
	if len(f.Groups) == 0 {
		return nil, fmt.Errorf("%w: catalog has no groups", ErrInvalidEntry)
	}

	groups := make([]Group, 0, len(f.Groups))
	for _, gf := range f.Groups {
		repeat := 0
		if gf.Placeholder != "" {
			repeat = defaultRepeat
		}
		if gf.Repeat != nil {
			repeat = *gf.Repeat
		}

		fields := make([]Field, 0, len(gf.Entries))
		for _, ef := range gf.Entries {
			kind, err := attribute.ParseKind(ef.Kind)
			if err != nil {
				return nil, fmt.Errorf("%w: group %s entry %s: %w", ErrInvalidEntry, gf.Name, ef.Path, err)
			}
			fields = append(fields, Field{Template: ef.Path, Kind: kind, Mutable: ef.Mutable})
		}
		groups = append(groups, NewGroup(gf.Name, gf.Placeholder, repeat, gf.Mutable, fields...))
	}
	return NewCatalog(groups...)
}
