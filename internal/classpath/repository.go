package classpath

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/olehluchkiv/enhancer/internal/classfile"
)

// ErrNotFound is returned when no search path entry holds a class.
var ErrNotFound = errors.New("class not found")

// Class is a loaded class definition. The same *Class is returned for
// every lookup of a name within one Repository, so edits to File
// accumulate across the run until the class is evicted.
type Class struct {
	Name   string // dotted
	File   *classfile.ClassFile
	Origin string
	Digest string // hex SHA-256 of the bytes as loaded

	super         *Class
	superResolved bool
}

// InternalName returns the slash-separated binary name.
func (c *Class) InternalName() string {
	return c.File.ThisClass
}

// SuperName returns the dotted superclass name, "" for root classes.
func (c *Class) SuperName() string {
	return classfile.DottedName(c.File.SuperClass)
}

// InterfaceNames returns the dotted names of the direct superinterfaces.
func (c *Class) InterfaceNames() []string {
	out := make([]string, len(c.File.Interfaces))
	for i, n := range c.File.Interfaces {
		out[i] = classfile.DottedName(n)
	}
	return out
}

// Implements reports whether the class directly implements the named
// interface. name may be dotted or internal.
func (c *Class) Implements(name string) bool {
	return c.File.Implements(classfile.InternalName(name))
}

// Repository resolves class names against a search path and caches the
// result. It is not safe for concurrent use; give each worker its own.
type Repository struct {
	path   *SearchPath
	cache  map[string]*Class
	logger *slog.Logger
}

// NewRepository creates a repository over path.
func NewRepository(path *SearchPath, logger *slog.Logger) *Repository {
	return &Repository{path: path, cache: make(map[string]*Class), logger: logger}
}

// Resolve returns the definition of a dotted or internal class name.
func (r *Repository) Resolve(name string) (*Class, error) {
	internal := classfile.InternalName(name)
	if c, ok := r.cache[internal]; ok {
		return c, nil
	}
	data, origin, err := r.path.Find(ClassResource(internal))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, classfile.DottedName(internal))
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", origin, err)
	}
	cf, err := classfile.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", origin, err)
	}
	if cf.ThisClass != internal {
		return nil, fmt.Errorf("%s declares class %s, expected %s", origin, cf.ThisClass, internal)
	}
	sum := sha256.Sum256(data)
	c := &Class{
		Name:   classfile.DottedName(internal),
		File:   cf,
		Origin: origin,
		Digest: hex.EncodeToString(sum[:]),
	}
	r.cache[internal] = c
	r.logger.Debug("class loaded", "class", c.Name, "origin", origin)
	return c, nil
}

// ResolveSuperclass returns the superclass definition of c. The boolean is
// false when c has no superclass; a superclass that is named but cannot be
// loaded is reported through the error.
func (r *Repository) ResolveSuperclass(c *Class) (*Class, bool, error) {
	if c.superResolved {
		return c.super, c.super != nil, nil
	}
	if c.File.SuperClass == "" {
		c.superResolved = true
		return nil, false, nil
	}
	super, err := r.Resolve(c.File.SuperClass)
	if err != nil {
		return nil, false, err
	}
	c.super = super
	c.superResolved = true
	return super, true, nil
}

// ResolveInterface loads an interface definition by name.
func (r *Repository) ResolveInterface(name string) (*Class, error) {
	c, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}
	if !c.File.Access.Has(classfile.AccInterface) {
		return nil, fmt.Errorf("%s is a class, not an interface", c.Name)
	}
	return c, nil
}

// Evict drops the cached definition of name, together with every cached
// superclass link to it, so the next Resolve reads the class again.
func (r *Repository) Evict(name string) {
	internal := classfile.InternalName(name)
	c, ok := r.cache[internal]
	if !ok {
		return
	}
	delete(r.cache, internal)
	for _, other := range r.cache {
		if other.super == c {
			other.super = nil
			other.superResolved = false
		}
	}
	r.logger.Debug("class evicted", "class", c.Name)
}

// Ancestors walks the superclass chain of c, calling fn for each ancestor
// (nearest first) until fn returns false or the chain ends. A superclass
// that cannot be loaded ends the walk; its name and the load error are
// returned so callers can decide whether that matters.
func (r *Repository) Ancestors(c *Class, fn func(*Class) bool) (missing string, err error) {
	cur := c
	for {
		name := cur.File.SuperClass
		super, ok, err := r.ResolveSuperclass(cur)
		if err != nil {
			return classfile.DottedName(name), err
		}
		if !ok || !fn(super) {
			return "", nil
		}
		cur = super
	}
}

// IsJDK reports whether a dotted or internal name belongs to the platform
// namespaces that are normally absent from an application classpath.
func IsJDK(name string) bool {
	name = classfile.InternalName(name)
	for _, prefix := range []string{"java/", "javax/", "jdk/", "sun/"} {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// Close releases the search path.
func (r *Repository) Close() error {
	return r.path.Close()
}
