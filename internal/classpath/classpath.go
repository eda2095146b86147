// Package classpath locates compiled classes on a JVM-style search path and
// keeps the loaded definitions for the duration of a run.
package classpath

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SearchPath is an ordered list of sources. The first source holding a
// resource wins, as on the JVM classpath.
type SearchPath struct {
	sources []Source
}

// NewSearchPath wraps already opened sources.
func NewSearchPath(sources ...Source) *SearchPath {
	return &SearchPath{sources: sources}
}

// Split breaks a classpath string on the platform list separator.
func Split(cp string) []string {
	var out []string
	for _, e := range filepath.SplitList(cp) {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}

// Open resolves classpath entries to sources. Directories are served as
// trees, .jar/.zip files as archives, and an entry ending in "*" expands
// to every archive in that directory (sorted by name). Entries that do
// not exist are skipped with a warning, matching the JVM launcher.
func Open(entries []string, logger *slog.Logger) (*SearchPath, error) {
	sp := &SearchPath{}
	for _, entry := range entries {
		paths, err := expand(entry)
		if err != nil {
			_ = sp.Close()
			return nil, err
		}
		for _, p := range paths {
			src, err := openEntry(p)
			if errors.Is(err, os.ErrNotExist) {
				logger.Warn("classpath entry does not exist", "entry", p)
				continue
			}
			if err != nil {
				_ = sp.Close()
				return nil, err
			}
			sp.sources = append(sp.sources, src)
			logger.Debug("classpath entry added", "entry", p)
		}
	}
	logger.Info("classpath resolved", "entries", len(sp.sources))
	return sp, nil
}

func expand(entry string) ([]string, error) {
	if !strings.HasSuffix(entry, "*") {
		return []string{entry}, nil
	}
	dir := strings.TrimSuffix(strings.TrimSuffix(entry, "*"), string(filepath.Separator))
	if dir == "" {
		dir = "."
	}
	dirEntries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("expanding classpath wildcard %s: %w", entry, err)
	}
	var out []string
	for _, e := range dirEntries {
		if e.IsDir() || !isArchive(e.Name()) {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

func openEntry(path string) (Source, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return &DirSource{Root: abs}, nil
	}
	if !isArchive(abs) {
		return nil, fmt.Errorf("%s is neither a directory nor a jar/zip archive", abs)
	}
	return OpenArchive(abs)
}

func isArchive(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".jar" || ext == ".zip"
}

// Find returns the bytes of the first source holding resource and where it
// came from. The error wraps os.ErrNotExist when no source has it.
func (sp *SearchPath) Find(resource string) ([]byte, string, error) {
	for _, src := range sp.sources {
		data, err := src.Open(resource)
		if err == nil {
			return data, src.Location(resource), nil
		}
		if !isNotExist(err) {
			return nil, src.Location(resource), err
		}
	}
	return nil, "", fmt.Errorf("%s: %w", resource, os.ErrNotExist)
}

// Sources returns the resolved sources in search order.
func (sp *SearchPath) Sources() []Source {
	return sp.sources
}

// Close releases archive handles.
func (sp *SearchPath) Close() error {
	var errs []error
	for _, src := range sp.sources {
		if err := src.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ClassResource maps a dotted or internal class name to its resource path.
func ClassResource(name string) string {
	return strings.ReplaceAll(name, ".", "/") + ".class"
}

// ListClasses walks a directory and returns the dotted names of every
// class file under it, sorted.
func ListClasses(root string) ([]string, error) {
	var names []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".class") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = strings.TrimSuffix(filepath.ToSlash(rel), ".class")
		if rel == "module-info" || strings.HasSuffix(rel, "/package-info") {
			return nil
		}
		names = append(names, strings.ReplaceAll(rel, "/", "."))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing classes under %s: %w", root, err)
	}
	sort.Strings(names)
	return names, nil
}
