package classpath

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zip"
)

// Source is one entry of a search path. Open returns the bytes stored
// under a slash-separated resource path, or an error wrapping
// fs.ErrNotExist.
type Source interface {
	Open(resource string) ([]byte, error)
	Location(resource string) string
	Close() error
}

// DirSource serves resources from a directory tree.
type DirSource struct {
	Root string
}

func (d *DirSource) Open(resource string) ([]byte, error) {
	return os.ReadFile(filepath.Join(d.Root, filepath.FromSlash(resource)))
}

func (d *DirSource) Location(resource string) string {
	return filepath.Join(d.Root, filepath.FromSlash(resource))
}

func (d *DirSource) Close() error { return nil }

// ArchiveSource serves resources from a jar or zip archive.
type ArchiveSource struct {
	Path    string
	rc      *zip.ReadCloser
	entries map[string]*zip.File
}

// OpenArchive opens a jar/zip and indexes its entries.
func OpenArchive(path string) (*ArchiveSource, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive %s: %w", path, err)
	}
	a := &ArchiveSource{Path: path, rc: rc, entries: make(map[string]*zip.File, len(rc.File))}
	for _, f := range rc.File {
		a.entries[f.Name] = f
	}
	return a, nil
}

// Has reports whether the archive contains resource.
func (a *ArchiveSource) Has(resource string) bool {
	_, ok := a.entries[resource]
	return ok
}

// Names lists every entry name in sorted order.
func (a *ArchiveSource) Names() []string {
	names := make([]string, 0, len(a.entries))
	for n := range a.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (a *ArchiveSource) Open(resource string) ([]byte, error) {
	f, ok := a.entries[resource]
	if !ok {
		return nil, fmt.Errorf("%s!/%s: %w", a.Path, resource, fs.ErrNotExist)
	}
	r, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%s!/%s: %w", a.Path, resource, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%s!/%s: %w", a.Path, resource, err)
	}
	return data, nil
}

func (a *ArchiveSource) Location(resource string) string {
	return a.Path + "!/" + resource
}

func (a *ArchiveSource) Close() error {
	return a.rc.Close()
}

// MemSource serves resources from memory.
type MemSource map[string][]byte

func (m MemSource) Open(resource string) ([]byte, error) {
	data, ok := m[resource]
	if !ok {
		return nil, fmt.Errorf("mem:%s: %w", resource, fs.ErrNotExist)
	}
	return data, nil
}

func (m MemSource) Location(resource string) string { return "mem:" + resource }

func (m MemSource) Close() error { return nil }

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
