package batch

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/olehluchkiv/enhancer/internal/classpath"
)

// Manifest selects classes for a batch. Include and Exclude are dotted
// name prefixes applied to discovered classes; Classes are always added.
//
//	include = ["com.example.entity."]
//	exclude = ["com.example.entity.legacy."]
//	classes = ["com.example.Customer"]
type Manifest struct {
	Include []string `toml:"include"`
	Exclude []string `toml:"exclude"`
	Classes []string `toml:"classes"`
}

// LoadManifest reads a TOML manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	return &m, nil
}

// Select filters discovered names and adds the explicit classes. The
// result is sorted and free of duplicates. An empty Include keeps every
// discovered name.
func (m *Manifest) Select(discovered []string) []string {
	set := make(map[string]bool)
	for _, name := range discovered {
		if m.included(name) && !hasAnyPrefix(name, m.Exclude) {
			set[name] = true
		}
	}
	for _, name := range m.Classes {
		set[name] = true
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (m *Manifest) included(name string) bool {
	return len(m.Include) == 0 || hasAnyPrefix(name, m.Include)
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// Discover lists every class under the directory roots.
func Discover(roots ...string) ([]string, error) {
	var all []string
	for _, root := range roots {
		names, err := classpath.ListClasses(root)
		if err != nil {
			return nil, err
		}
		all = append(all, names...)
	}
	sort.Strings(all)
	return all, nil
}
