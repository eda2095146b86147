package enhancer

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olehluchkiv/enhancer/internal/analyzer"
	"github.com/olehluchkiv/enhancer/internal/classfile"
	"github.com/olehluchkiv/enhancer/internal/classfile/classtest"
	"github.com/olehluchkiv/enhancer/internal/classpath"
	"github.com/olehluchkiv/enhancer/internal/instrument"
	"github.com/olehluchkiv/enhancer/internal/ledger"
)

const (
	baseType     = "com.haulmont.chile.core.model.impl.AbstractInstance"
	metaProperty = "com.haulmont.chile.core.annotations.MetaProperty"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixtures() classpath.MemSource {
	src := classpath.MemSource{}
	add := func(b *classtest.Builder) {
		src[b.Build().ThisClass+".class"] = b.Bytes()
	}
	add(classtest.New("com.example.Order").
		Extends(baseType).
		Field("status", "Ljava/lang/String;", metaProperty).
		Getter("getStatus", "status", "Ljava/lang/String;").
		Setter("setStatus", "status", "Ljava/lang/String;").
		Method(classfile.AccPublic, "_persistence_get_status", "()Ljava/lang/String;"))
	add(classtest.New("com.example.Widget").
		Extends(baseType).
		Field("count", "I").
		Getter("getCount", "count", "I").
		Setter("setCount", "count", "I").
		Method(classfile.AccPublic, "_persistence_set_count", "(I)V"))
	add(classtest.New("com.example.Plain").
		Field("label", "Ljava/lang/String;").
		Setter("setLabel", "label", "Ljava/lang/String;"))
	add(classtest.New("com.example.Frozen").
		Extends(baseType).
		Implements("com.haulmont.cuba.core.sys.CubaEnhancingDisabled"))
	add(classtest.New("com.example.Orphan").
		Extends("com.example.Missing"))
	src["com/example/Broken.class"] = []byte{0xCA, 0xFE, 0xBA, 0xBE, 0, 0}
	return src
}

func defaultOptions(out string) Options {
	return Options{
		Conventions:  analyzer.DefaultConventions(),
		Hooks:        instrument.DefaultHooks(),
		OutputDir:    out,
		TagInterface: true,
		RunID:        "test-run",
	}
}

func newEnhancer(t *testing.T, src classpath.Source, opts Options, l Ledger) *Enhancer {
	t.Helper()
	repo := classpath.NewRepository(classpath.NewSearchPath(src), discard())
	return New(repo, opts, l, discard())
}

func TestRunEnhancesEntity(t *testing.T) {
	out := t.TempDir()
	e := newEnhancer(t, fixtures(), defaultOptions(out), nil)

	res, err := e.Run(context.Background(), "com.example.Order")
	require.NoError(t, err)
	assert.Equal(t, StatusEnhanced, res.Status)
	assert.Equal(t, filepath.Join(out, "com", "example", "Order.class"), res.Output)
	assert.Equal(t, 1, res.Count(instrument.SetterWrapped))
	assert.Equal(t, 1, res.Count(instrument.AccessorRestricted))
	assert.Equal(t, []string{baseType}, res.Chain)
	assert.NotEqual(t, res.InputSHA, res.OutputSHA)

	data, err := os.ReadFile(res.Output)
	require.NoError(t, err)
	cf, err := classfile.Parse(data)
	require.NoError(t, err)
	assert.True(t, cf.Implements("com/haulmont/cuba/core/sys/CubaEnhanced"))
	require.NotNil(t, cf.Attribute(analyzer.StateAttribute))
	assert.Len(t, cf.Attribute(analyzer.StateAttribute).Data, 33)
	assert.NotNil(t, cf.Method("setStatus$original", "(Ljava/lang/String;)V"))

	entries, err := os.ReadDir(filepath.Join(out, "com", "example"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestRunOutputIsNotEnhancedTwice(t *testing.T) {
	out := t.TempDir()
	e := newEnhancer(t, fixtures(), defaultOptions(out), nil)
	_, err := e.Run(context.Background(), "com.example.Order")
	require.NoError(t, err)

	again := newEnhancer(t, &classpath.DirSource{Root: out}, defaultOptions(t.TempDir()), nil)
	res, err := again.Run(context.Background(), "com.example.Order")
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, res.Status)
	assert.Equal(t, analyzer.ReasonAlreadyEnhanced, res.Reason)
	assert.Equal(t, "com.haulmont.cuba.core.sys.CubaEnhanced", res.Detail)
}

func TestRunStateAttributeWithoutInterface(t *testing.T) {
	out := t.TempDir()
	opts := defaultOptions(out)
	opts.TagInterface = false
	e := newEnhancer(t, fixtures(), opts, nil)
	_, err := e.Run(context.Background(), "com.example.Order")
	require.NoError(t, err)

	again := newEnhancer(t, &classpath.DirSource{Root: out}, opts, nil)
	res, err := again.Run(context.Background(), "com.example.Order")
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, res.Status)
	assert.Equal(t, analyzer.ReasonAlreadyEnhanced, res.Reason)
	assert.Equal(t, analyzer.StateAttribute, res.Detail)
}

func TestRunSameEnhancerTwice(t *testing.T) {
	e := newEnhancer(t, fixtures(), defaultOptions(t.TempDir()), nil)
	_, err := e.Run(context.Background(), "com.example.Order")
	require.NoError(t, err)

	res, err := e.Run(context.Background(), "com.example.Order")
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, res.Status)
}

func TestRunLedger(t *testing.T) {
	store, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"), discard())
	require.NoError(t, err)
	defer store.Close()

	out := t.TempDir()
	opts := defaultOptions(out)
	opts.TagInterface = false
	e := newEnhancer(t, fixtures(), opts, store)
	res, err := e.Run(context.Background(), "com.example.Order")
	require.NoError(t, err)

	entry, ok, err := store.Get("com.example.Order")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ledger.StatusEnhanced, entry.Status)
	assert.Equal(t, res.OutputSHA, entry.OutputSHA)
	assert.Equal(t, "test-run", entry.RunID)

	again := newEnhancer(t, &classpath.DirSource{Root: out}, opts, store)
	res, err = again.Run(context.Background(), "com.example.Order")
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, res.Status)
	assert.Equal(t, ReasonLedger, res.Reason)

	_, err = e.Run(context.Background(), "com.example.Widget")
	require.Error(t, err)
	entry, ok, err = store.Get("com.example.Widget")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ledger.StatusFailed, entry.Status)
	assert.Equal(t, string(UnsupportedPrimitiveSetter), entry.Reason)
}

func TestRunSkips(t *testing.T) {
	tests := []struct {
		class  string
		reason analyzer.Reason
	}{
		{"com.example.Plain", analyzer.ReasonNotEntity},
		{"com.example.Frozen", analyzer.ReasonDisabled},
		{"com.example.Orphan", analyzer.ReasonUnresolvedAncestor},
	}
	for _, tt := range tests {
		t.Run(tt.class, func(t *testing.T) {
			out := t.TempDir()
			e := newEnhancer(t, fixtures(), defaultOptions(out), nil)
			res, err := e.Run(context.Background(), tt.class)
			require.NoError(t, err)
			assert.Equal(t, StatusSkipped, res.Status)
			assert.Equal(t, tt.reason, res.Reason)
			assert.Empty(t, res.Output)

			entries, err := os.ReadDir(out)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name   string
		class  string
		strict bool
		code   ErrorCode
	}{
		{"primitive setter", "com.example.Widget", false, UnsupportedPrimitiveSetter},
		{"missing class", "com.example.Nowhere", false, ResolutionFailure},
		{"malformed class", "com.example.Broken", false, MalformedClass},
		{"strict unresolved ancestor", "com.example.Orphan", true, ResolutionFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := t.TempDir()
			opts := defaultOptions(out)
			opts.Strict = tt.strict
			e := newEnhancer(t, fixtures(), opts, nil)

			res, err := e.Run(context.Background(), tt.class)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.Equal(t, tt.code, CodeOf(err))

			var ee *Error
			require.ErrorAs(t, err, &ee)
			assert.Equal(t, tt.class, ee.Class)

			entries, err := os.ReadDir(out)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestRunPrimitiveSetterMessage(t *testing.T) {
	e := newEnhancer(t, fixtures(), defaultOptions(t.TempDir()), nil)
	_, err := e.Run(context.Background(), "com.example.Widget")
	require.Error(t, err)
	var prim *instrument.PrimitiveSetterError
	require.ErrorAs(t, err, &prim)
	assert.Equal(t, "Integer", prim.Suggested)
	assert.Contains(t, err.Error(), "Unable to enhance field com.example.Widget.count with primitive type int. Use type Integer.")
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := newEnhancer(t, fixtures(), defaultOptions(t.TempDir()), nil)
	_, err := e.Run(ctx, "com.example.Order")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWriterOverwrites(t *testing.T) {
	out := t.TempDir()
	path := filepath.Join(out, "com", "example", "Order.class")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o644))

	e := newEnhancer(t, fixtures(), defaultOptions(out), nil)
	res, err := e.Run(context.Background(), "com.example.Order")
	require.NoError(t, err)

	data, err := os.ReadFile(res.Output)
	require.NoError(t, err)
	_, err = classfile.Parse(data)
	assert.NoError(t, err)
}

func TestWriterIOFailure(t *testing.T) {
	out := t.TempDir()
	// A file where the package directory should be.
	require.NoError(t, os.WriteFile(filepath.Join(out, "com"), nil, 0o644))

	e := newEnhancer(t, fixtures(), defaultOptions(out), nil)
	_, err := e.Run(context.Background(), "com.example.Order")
	require.Error(t, err)
	assert.Equal(t, IOFailure, CodeOf(err))
}

func TestRunRetryAfterIOFailure(t *testing.T) {
	out := t.TempDir()
	blocker := filepath.Join(out, "com")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	e := newEnhancer(t, fixtures(), defaultOptions(out), nil)
	_, err := e.Run(context.Background(), "com.example.Order")
	require.Error(t, err)
	require.Equal(t, IOFailure, CodeOf(err))

	require.NoError(t, os.Remove(blocker))
	res, err := e.Run(context.Background(), "com.example.Order")
	require.NoError(t, err)
	assert.Equal(t, StatusEnhanced, res.Status)
	assert.Equal(t, 1, res.Count(instrument.SetterWrapped))

	data, err := os.ReadFile(res.Output)
	require.NoError(t, err)
	cf, err := classfile.Parse(data)
	require.NoError(t, err)

	var setters []string
	for _, m := range cf.Methods {
		if strings.HasPrefix(m.Name, "setStatus") {
			setters = append(setters, m.Name)
		}
	}
	assert.ElementsMatch(t, []string{"setStatus", "setStatus$original"}, setters)
	assert.Equal(t, []string{"com/haulmont/cuba/core/sys/CubaEnhanced"}, cf.Interfaces)
}

func TestRunLedgerKeepsEnhancedOutputAcrossReruns(t *testing.T) {
	store, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"), discard())
	require.NoError(t, err)
	defer store.Close()

	out := t.TempDir()
	opts := defaultOptions(out)
	opts.TagInterface = false
	first, err := newEnhancer(t, fixtures(), opts, store).Run(context.Background(), "com.example.Order")
	require.NoError(t, err)

	for run := 2; run <= 4; run++ {
		res, err := newEnhancer(t, &classpath.DirSource{Root: out}, opts, store).Run(context.Background(), "com.example.Order")
		require.NoError(t, err)
		assert.Equal(t, StatusSkipped, res.Status, "run %d", run)
		assert.Equal(t, ReasonLedger, res.Reason, "run %d", run)

		entry, ok, err := store.Get("com.example.Order")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, ledger.StatusEnhanced, entry.Status, "run %d", run)
		assert.Equal(t, first.OutputSHA, entry.OutputSHA, "run %d", run)
	}
}
