// Package props finds an application properties resource inside the jar
// artifacts of a resolved dependency graph.
package props

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"gopkg.in/yaml.v3"
)

// ManifestPath marks an archive as a jar built by the module's build.
const ManifestPath = "META-INF/MANIFEST.MF"

// ErrNotFound is returned when no artifact of the graph holds the resource.
var ErrNotFound = errors.New("properties not found")

// Module is a resolved dependency: its own artifacts and the modules it
// depends on.
type Module struct {
	Name      string    `yaml:"name"`
	Artifacts []string  `yaml:"artifacts"`
	Children  []*Module `yaml:"children,omitempty"`
}

// Graph holds the first-level modules of a resolved configuration.
type Graph struct {
	Modules []*Module `yaml:"modules"`
}

// ParseGraph decodes a YAML dependency graph. Relative artifact paths are
// resolved against base.
func ParseGraph(data []byte, base string) (*Graph, error) {
	var g Graph
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parsing dependency graph: %w", err)
	}
	seen := make(map[*Module]bool)
	var fix func([]*Module)
	fix = func(ms []*Module) {
		for _, m := range ms {
			if m == nil || seen[m] {
				continue
			}
			seen[m] = true
			for i, a := range m.Artifacts {
				if !filepath.IsAbs(a) {
					m.Artifacts[i] = filepath.Join(base, filepath.FromSlash(a))
				}
			}
			fix(m.Children)
		}
	}
	fix(g.Modules)
	return &g, nil
}

// LoadGraph reads a dependency graph file.
func LoadGraph(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dependency graph: %w", err)
	}
	return ParseGraph(data, filepath.Dir(path))
}

// ArchiveError reports an artifact that could not be read.
type ArchiveError struct {
	Path string
	Err  error
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("error occurred during properties searching at %s: %v", e.Path, e.Err)
}

func (e *ArchiveError) Unwrap() error { return e.Err }

// Properties is a resource found in an archive, with any byte-order mark
// removed.
type Properties struct {
	Archive string
	Data    []byte
}

// Finder walks a graph looking for a resource.
type Finder struct {
	logger *slog.Logger
}

func NewFinder(logger *slog.Logger) *Finder {
	return &Finder{logger: logger}
}

// Find walks the graph depth first, children before a module's own
// artifacts, visiting each artifact once. Only jars carrying a manifest
// are consulted and the first one holding resource wins.
func (f *Finder) Find(g *Graph, resource string) (*Properties, error) {
	resource = strings.TrimPrefix(resource, "/")
	visited := make(map[string]bool)
	p, err := f.walk(g.Modules, visited, resource)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, resource)
	}
	return p, nil
}

func (f *Finder) walk(modules []*Module, visited map[string]bool, resource string) (*Properties, error) {
	for _, m := range modules {
		if m == nil {
			continue
		}
		p, err := f.walk(m.Children, visited, resource)
		if err != nil || p != nil {
			return p, err
		}
		for _, artifact := range m.Artifacts {
			if visited[artifact] {
				continue
			}
			visited[artifact] = true
			if !strings.HasSuffix(artifact, ".jar") {
				continue
			}
			p, err := f.fromJar(artifact, resource)
			if err != nil || p != nil {
				return p, err
			}
		}
	}
	return nil, nil
}

// fromJar returns nil without error when the archive has no manifest or
// no such entry.
func (f *Finder) fromJar(path, resource string) (*Properties, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, &ArchiveError{Path: path, Err: err}
	}
	defer func() { _ = rc.Close() }()

	var manifest, entry *zip.File
	for _, zf := range rc.File {
		switch zf.Name {
		case ManifestPath:
			manifest = zf
		case resource:
			entry = zf
		}
	}
	if manifest == nil {
		f.logger.Debug("skipping archive without manifest", "archive", path)
		return nil, nil
	}
	if entry == nil {
		return nil, nil
	}

	r, err := entry.Open()
	if err != nil {
		return nil, &ArchiveError{Path: path, Err: err}
	}
	defer func() { _ = r.Close() }()
	data, err := io.ReadAll(transform.NewReader(r, unicode.BOMOverride(transform.Nop)))
	if err != nil {
		return nil, &ArchiveError{Path: path, Err: err}
	}
	f.logger.Info("loading app properties", "resource", resource, "archive", path)
	return &Properties{Archive: path, Data: data}, nil
}
