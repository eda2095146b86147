package props

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/tools/txtar"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// materialize writes a txtar archive to dir. Files under a first path
// segment ending in .jar or .zip are packed into that archive; the "want"
// file is returned instead of written.
func materialize(t *testing.T, ar *txtar.Archive, dir string) string {
	t.Helper()
	var want string
	archives := map[string][]txtar.File{}
	for _, f := range ar.Files {
		if f.Name == "want" {
			want = strings.TrimSpace(string(f.Data))
			continue
		}
		first, rest, ok := strings.Cut(f.Name, "/")
		if ok && (strings.HasSuffix(first, ".jar") || strings.HasSuffix(first, ".zip")) {
			archives[first] = append(archives[first], txtar.File{Name: rest, Data: f.Data})
			continue
		}
		path := filepath.Join(dir, filepath.FromSlash(f.Name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, f.Data, 0o644))
	}
	for name, files := range archives {
		writeZip(t, filepath.Join(dir, name), files)
	}
	return want
}

func writeZip(t *testing.T, path string, files []txtar.File) {
	t.Helper()
	out, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(out)
	for _, f := range files {
		w, err := zw.Create(f.Name)
		require.NoError(t, err)
		_, err = w.Write(f.Data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, out.Close())
}

func TestFindScenarios(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "*.txtar"))
	require.NoError(t, err)
	sort.Strings(paths)
	require.NotEmpty(t, paths)

	for _, p := range paths {
		t.Run(strings.TrimSuffix(filepath.Base(p), ".txtar"), func(t *testing.T) {
			ar, err := txtar.ParseFile(p)
			require.NoError(t, err)
			dir := t.TempDir()
			want := materialize(t, ar, dir)

			g, err := LoadGraph(filepath.Join(dir, "graph.yaml"))
			require.NoError(t, err)

			got, err := NewFinder(discard()).Find(g, "app.properties")
			if want == "" {
				assert.ErrorIs(t, err, ErrNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(dir, want), got.Archive)
			assert.Contains(t, string(got.Data), strings.TrimSuffix(want, ".jar"))
		})
	}
}

func TestFindStripsBOM(t *testing.T) {
	dir := t.TempDir()
	writeZip(t, filepath.Join(dir, "app.jar"), []txtar.File{
		{Name: ManifestPath, Data: []byte("Manifest-Version: 1.0\n")},
		{Name: "app.properties", Data: []byte("\xEF\xBB\xBFkey = value\n")},
	})
	g := &Graph{Modules: []*Module{{Name: "app", Artifacts: []string{filepath.Join(dir, "app.jar")}}}}

	got, err := NewFinder(discard()).Find(g, "/app.properties")
	require.NoError(t, err)
	assert.Equal(t, "key = value\n", string(got.Data))
}

func TestFindUnreadableArchive(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "broken.jar")
	require.NoError(t, os.WriteFile(bad, []byte("not a zip"), 0o644))
	g := &Graph{Modules: []*Module{{Name: "broken", Artifacts: []string{bad}}}}

	_, err := NewFinder(discard()).Find(g, "app.properties")
	require.Error(t, err)
	var ae *ArchiveError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, bad, ae.Path)
	assert.Contains(t, err.Error(), bad)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestParseGraphResolvesRelativePaths(t *testing.T) {
	abs := filepath.Join(t.TempDir(), "abs.jar")
	g, err := ParseGraph([]byte(`
modules:
  - name: a
    artifacts: [lib/a.jar, `+abs+`]
    children:
      - name: b
        artifacts: [b.jar]
`), "/work")
	require.NoError(t, err)
	require.Len(t, g.Modules, 1)
	assert.Equal(t, []string{filepath.Join("/work", "lib", "a.jar"), abs}, g.Modules[0].Artifacts)
	assert.Equal(t, []string{filepath.Join("/work", "b.jar")}, g.Modules[0].Children[0].Artifacts)
}

func TestParseGraphInvalid(t *testing.T) {
	_, err := ParseGraph([]byte("modules: [: bad"), ".")
	assert.Error(t, err)
}
