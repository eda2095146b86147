package batch

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/olehluchkiv/enhancer/internal/analyzer"
	"github.com/olehluchkiv/enhancer/internal/classfile/classtest"
	"github.com/olehluchkiv/enhancer/internal/classpath"
	"github.com/olehluchkiv/enhancer/internal/enhancer"
	"github.com/olehluchkiv/enhancer/internal/instrument"
	"github.com/olehluchkiv/enhancer/internal/ledger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const baseType = "com.haulmont.chile.core.model.impl.AbstractInstance"

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeClasses compiles a small model into dir: entities with one tracked
// property each, a plain class and an entity with a primitive setter.
func writeClasses(t *testing.T, dir string, entities ...string) {
	t.Helper()
	write := func(b *classtest.Builder) {
		cf := b.Build()
		path := filepath.Join(dir, filepath.FromSlash(cf.ThisClass+".class"))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, b.Bytes(), 0o644))
	}
	for _, name := range entities {
		write(classtest.New(name).
			Extends(baseType).
			Field("name", "Ljava/lang/String;", "com.haulmont.chile.core.annotations.MetaProperty").
			Getter("getName", "name", "Ljava/lang/String;").
			Setter("setName", "name", "Ljava/lang/String;"))
	}
	write(classtest.New("com.example.util.Strings"))
	write(classtest.New("com.example.entity.Counter").
		Extends(baseType).
		Field("count", "J").
		Setter("setCount", "count", "J").
		Method(0, "_persistence_set_count", "(J)V"))
}

func runner(t *testing.T, classes, out string, workers int, l enhancer.Ledger) *Runner {
	t.Helper()
	sp := classpath.NewSearchPath(&classpath.DirSource{Root: classes})
	return NewRunner(sp, Options{
		Workers: workers,
		Enhancer: enhancer.Options{
			Conventions:  analyzer.DefaultConventions(),
			Hooks:        instrument.DefaultHooks(),
			OutputDir:    out,
			TagInterface: true,
		},
	}, l, discard())
}

func TestRunCollectsOutcomes(t *testing.T) {
	classes, out := t.TempDir(), t.TempDir()
	entities := []string{"com.example.entity.A", "com.example.entity.B", "com.example.entity.C", "com.example.entity.D"}
	writeClasses(t, classes, entities...)

	names, err := Discover(classes)
	require.NoError(t, err)
	require.Len(t, names, 6)

	r := runner(t, classes, out, 3, nil)
	_, err = uuid.Parse(r.RunID())
	require.NoError(t, err)

	rep, err := r.Run(context.Background(), names)
	require.NoError(t, err)
	assert.Equal(t, r.RunID(), rep.RunID)
	assert.Equal(t, 4, rep.Count(enhancer.StatusEnhanced))
	assert.Equal(t, 1, rep.Count(enhancer.StatusSkipped))
	assert.False(t, rep.OK())

	want := []Failure{{Class: "com.example.entity.Counter", Code: enhancer.UnsupportedPrimitiveSetter}}
	got := make([]Failure, len(rep.Failures))
	for i, f := range rep.Failures {
		got[i] = Failure{Class: f.Class, Code: f.Code}
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("failures (-want +got):\n%s", diff)
	}

	var classesOut []string
	for _, res := range rep.Results {
		classesOut = append(classesOut, res.Class)
	}
	assert.Equal(t, []string{
		"com.example.entity.A", "com.example.entity.B", "com.example.entity.C", "com.example.entity.D",
		"com.example.util.Strings",
	}, classesOut, "results keep input order")

	for _, e := range entities {
		_, err := os.Stat(filepath.Join(out, filepath.FromSlash(classpath.ClassResource(e))))
		assert.NoError(t, err, e)
	}
	_, err = os.Stat(filepath.Join(out, "com", "example", "entity", "Counter.class"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunRecordsLedgerAndSkipsOutput(t *testing.T) {
	classes, out := t.TempDir(), t.TempDir()
	writeClasses(t, classes, "com.example.entity.A")
	store, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"), discard())
	require.NoError(t, err)
	defer store.Close()

	r := runner(t, classes, out, 2, store)
	_, err = r.Run(context.Background(), []string{"com.example.entity.A", "com.example.util.Strings"})
	require.NoError(t, err)

	entries, err := store.ListRun(r.RunID())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ledger.StatusEnhanced, entries[0].Status)
	assert.Equal(t, ledger.StatusSkipped, entries[1].Status)
	assert.Equal(t, string(analyzer.ReasonNotEntity), entries[1].Reason)

	again := runner(t, out, t.TempDir(), 1, store)
	rep, err := again.Run(context.Background(), []string{"com.example.entity.A"})
	require.NoError(t, err)
	require.Len(t, rep.Results, 1)
	assert.Equal(t, enhancer.ReasonLedger, rep.Results[0].Reason)
}

func TestRunCancelled(t *testing.T) {
	classes := t.TempDir()
	writeClasses(t, classes, "com.example.entity.A")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := runner(t, classes, t.TempDir(), 2, nil).Run(ctx, []string{"com.example.entity.A"})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, rep)
	assert.Empty(t, rep.Results)
}

func TestManifestSelect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "enhance.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
include = ["com.example.entity."]
exclude = ["com.example.entity.legacy."]
classes = ["com.example.web.Form", "com.example.entity.A"]
`), 0o644))
	m, err := LoadManifest(path)
	require.NoError(t, err)

	got := m.Select([]string{
		"com.example.entity.A",
		"com.example.entity.B",
		"com.example.entity.legacy.Old",
		"com.example.util.Strings",
	})
	assert.Equal(t, []string{"com.example.entity.A", "com.example.entity.B", "com.example.web.Form"}, got)
}

func TestManifestEmptyIncludeKeepsAll(t *testing.T) {
	m := &Manifest{Exclude: []string{"com.example.util."}}
	got := m.Select([]string{"com.example.util.Strings", "com.example.entity.A"})
	assert.Equal(t, []string{"com.example.entity.A"}, got)
}

func TestLoadManifestInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "enhance.toml")
	require.NoError(t, os.WriteFile(path, []byte("include = ["), 0o644))
	_, err := LoadManifest(path)
	assert.Error(t, err)
}
