package classpath_test

import (
	"bytes"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olehluchkiv/enhancer/internal/classfile/classtest"
	"github.com/olehluchkiv/enhancer/internal/classpath"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeDir(t *testing.T, dir string, builders ...*classtest.Builder) {
	t.Helper()
	for _, b := range builders {
		path := filepath.Join(dir, filepath.FromSlash(b.Build().ThisClass+".class"))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, b.Bytes(), 0o644))
	}
}

func writeJar(t *testing.T, path string, builders ...*classtest.Builder) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for _, b := range builders {
		w, err := zw.Create(b.Build().ThisClass + ".class")
		require.NoError(t, err)
		_, err = w.Write(b.Bytes())
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func TestSplit(t *testing.T) {
	sep := string(filepath.ListSeparator)
	assert.Equal(t, []string{"a", "b/c.jar", "lib/*"}, classpath.Split("a"+sep+" b/c.jar "+sep+sep+"lib/*"))
	assert.Nil(t, classpath.Split(""))
}

func TestOpenDirAndArchives(t *testing.T) {
	root := t.TempDir()
	classes := filepath.Join(root, "classes")
	lib := filepath.Join(root, "lib")
	require.NoError(t, os.MkdirAll(lib, 0o755))

	writeDir(t, classes, classtest.New("com.example.Order"))
	writeJar(t, filepath.Join(lib, "b.jar"), classtest.New("com.example.Order"), classtest.New("com.example.Base"))
	writeJar(t, filepath.Join(lib, "a.jar"), classtest.New("com.example.Util"))
	require.NoError(t, os.WriteFile(filepath.Join(lib, "notes.txt"), []byte("x"), 0o644))

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	sp, err := classpath.Open([]string{classes, filepath.Join(root, "missing"), filepath.Join(lib, "*")}, logger)
	require.NoError(t, err)
	defer sp.Close()

	sources := sp.Sources()
	require.Len(t, sources, 3)
	assert.IsType(t, &classpath.DirSource{}, sources[0])
	require.IsType(t, &classpath.ArchiveSource{}, sources[1])
	assert.Equal(t, "a.jar", filepath.Base(sources[1].(*classpath.ArchiveSource).Path))
	assert.Equal(t, []string{"com/example/Util.class"}, sources[1].(*classpath.ArchiveSource).Names())
	assert.Contains(t, logs.String(), "classpath entry does not exist")

	// The directory comes first and shadows the jar.
	_, origin, err := sp.Find("com/example/Order.class")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(classes, "com", "example", "Order.class"), origin)

	_, origin, err = sp.Find("com/example/Base.class")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(lib, "b.jar")+"!/com/example/Base.class", origin)

	_, _, err = sp.Find("com/example/Nope.class")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestOpenRejectsPlainFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "classes.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	_, err := classpath.Open([]string{path}, discard())
	assert.ErrorContains(t, err, "neither a directory nor a jar/zip archive")
}

func TestListClasses(t *testing.T) {
	dir := t.TempDir()
	writeDir(t, dir,
		classtest.New("com.example.Order"),
		classtest.New("com.example.Order$Line"),
		classtest.New("com.example.package-info"),
		classtest.New("module-info"),
		classtest.New("Root"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "com", "example", "README"), nil, 0o644))

	names, err := classpath.ListClasses(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"Root", "com.example.Order", "com.example.Order$Line"}, names)
}

func TestClassResource(t *testing.T) {
	assert.Equal(t, "com/example/Order.class", classpath.ClassResource("com.example.Order"))
	assert.Equal(t, "com/example/Order.class", classpath.ClassResource("com/example/Order"))
}

func memRepo(builders ...*classtest.Builder) *classpath.Repository {
	src := classpath.MemSource{}
	for _, b := range builders {
		src[b.Build().ThisClass+".class"] = b.Bytes()
	}
	return classpath.NewRepository(classpath.NewSearchPath(src), discard())
}

func TestResolveCachesDefinitions(t *testing.T) {
	repo := memRepo(classtest.New("com.example.Order"))

	c, err := repo.Resolve("com.example.Order")
	require.NoError(t, err)
	assert.Equal(t, "com.example.Order", c.Name)
	assert.Equal(t, "com/example/Order", c.InternalName())
	assert.Equal(t, "java.lang.Object", c.SuperName())
	assert.Equal(t, "mem:com/example/Order.class", c.Origin)
	assert.Len(t, c.Digest, 64)

	again, err := repo.Resolve("com/example/Order")
	require.NoError(t, err)
	assert.Same(t, c, again)
}

func TestEvictRereadsClass(t *testing.T) {
	repo := memRepo(
		classtest.New("com.example.Order").Extends("com.example.Base"),
		classtest.New("com.example.Base"),
	)
	order, err := repo.Resolve("com.example.Order")
	require.NoError(t, err)
	base, ok, err := repo.ResolveSuperclass(order)
	require.NoError(t, err)
	require.True(t, ok)

	base.File.Interfaces = append(base.File.Interfaces, "java/io/Serializable")
	repo.Evict("com/example/Base")
	repo.Evict("com.example.Unknown")

	fresh, err := repo.Resolve("com.example.Base")
	require.NoError(t, err)
	assert.NotSame(t, base, fresh)
	assert.Empty(t, fresh.InterfaceNames())

	super, ok, err := repo.ResolveSuperclass(order)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Same(t, fresh, super)
}

func TestResolveErrors(t *testing.T) {
	src := classpath.MemSource{
		"com/example/Broken.class": []byte{0xCA, 0xFE},
		"com/example/Moved.class":  classtest.New("com.example.Other").Bytes(),
	}
	repo := classpath.NewRepository(classpath.NewSearchPath(src), discard())

	_, err := repo.Resolve("com.example.Missing")
	assert.ErrorIs(t, err, classpath.ErrNotFound)

	_, err = repo.Resolve("com.example.Broken")
	assert.ErrorContains(t, err, "malformed class file")

	_, err = repo.Resolve("com.example.Moved")
	assert.ErrorContains(t, err, "declares class com/example/Other")
}

func TestAncestors(t *testing.T) {
	repo := memRepo(
		classtest.New("com.example.Order").Extends("com.example.Base"),
		classtest.New("com.example.Base").Extends("com.example.Missing"),
	)
	c, err := repo.Resolve("com.example.Order")
	require.NoError(t, err)

	var seen []string
	missing, err := repo.Ancestors(c, func(a *classpath.Class) bool {
		seen = append(seen, a.Name)
		return true
	})
	assert.Equal(t, []string{"com.example.Base"}, seen)
	assert.Equal(t, "com.example.Missing", missing)
	assert.ErrorIs(t, err, classpath.ErrNotFound)

	seen = nil
	missing, err = repo.Ancestors(c, func(a *classpath.Class) bool {
		seen = append(seen, a.Name)
		return false
	})
	require.NoError(t, err)
	assert.Empty(t, missing)
	assert.Equal(t, []string{"com.example.Base"}, seen)
}

func TestResolveSuperclassOfRoot(t *testing.T) {
	repo := memRepo(classtest.New("java.lang.Object").Extends(""))
	c, err := repo.Resolve("java.lang.Object")
	require.NoError(t, err)
	super, ok, err := repo.ResolveSuperclass(c)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, super)
}

func TestResolveInterface(t *testing.T) {
	repo := memRepo(
		classtest.New("com.example.Named").Interface(),
		classtest.New("com.example.Order"),
	)
	i, err := repo.ResolveInterface("com.example.Named")
	require.NoError(t, err)
	assert.Equal(t, "com.example.Named", i.Name)

	_, err = repo.ResolveInterface("com.example.Order")
	assert.ErrorContains(t, err, "is a class, not an interface")
}

func TestIsJDK(t *testing.T) {
	for name, want := range map[string]bool{
		"java.lang.Object":         true,
		"javax/persistence/Entity": true,
		"jdk.internal.misc.Unsafe": true,
		"sun.misc.Unsafe":          true,
		"com.example.Order":        false,
		"javaxx.Thing":             false,
	} {
		assert.Equal(t, want, classpath.IsJDK(name), name)
	}
}

func TestClassImplements(t *testing.T) {
	repo := memRepo(classtest.New("com.example.Order").Implements("java.io.Serializable"))
	c, err := repo.Resolve("com.example.Order")
	require.NoError(t, err)
	assert.True(t, c.Implements("java.io.Serializable"))
	assert.True(t, c.Implements("java/io/Serializable"))
	assert.False(t, c.Implements("java.lang.Cloneable"))
	assert.Equal(t, []string{"java.io.Serializable"}, c.InterfaceNames())
}
