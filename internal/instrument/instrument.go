// Package instrument holds the rewriting stages applied to an eligible
// entity class.
package instrument

import (
	"fmt"
	"strings"

	"github.com/olehluchkiv/enhancer/internal/classpath"
)

// Instrumenter rewrites a class in place and reports what it changed.
type Instrumenter interface {
	Name() string
	Instrument(c *classpath.Class) ([]Edit, error)
}

// EditKind classifies an Edit.
type EditKind string

const (
	SetterWrapped      EditKind = "setter-wrapped"
	SetterSkipped      EditKind = "setter-skipped"
	AccessorRestricted EditKind = "accessor-restricted"
)

// Edit records one change (or deliberate non-change) to a method.
type Edit struct {
	Kind   EditKind `yaml:"kind" json:"kind"`
	Method string   `yaml:"method" json:"method"`
	Field  string   `yaml:"field,omitempty" json:"field,omitempty"`
	Detail string   `yaml:"detail,omitempty" json:"detail,omitempty"`
}

// Hooks names the code the generated setter wrapper calls.
type Hooks struct {
	// EqualsHelper is the dotted owner and name of a static
	// (Object, Object) -> boolean null-safe equality method.
	EqualsHelper string
	// ChangeHook is an instance method (String, Object, Object) -> void on
	// the entity or one of its ancestors.
	ChangeHook string
}

// DefaultHooks returns the CUBA platform hooks.
func DefaultHooks() Hooks {
	return Hooks{
		EqualsHelper: "com.haulmont.chile.core.model.utils.InstanceUtils.propertyValueEquals",
		ChangeHook:   "propertyChanged",
	}
}

// equalsRef splits EqualsHelper into an internal owner name and method name.
func (h Hooks) equalsRef() (owner, method string, err error) {
	i := strings.LastIndexByte(h.EqualsHelper, '.')
	if i <= 0 || i == len(h.EqualsHelper)-1 {
		return "", "", fmt.Errorf("equals helper %q is not of the form pkg.Class.method", h.EqualsHelper)
	}
	return strings.ReplaceAll(h.EqualsHelper[:i], ".", "/"), h.EqualsHelper[i+1:], nil
}

// Apply runs the stages in order and concatenates their edits. The first
// failing stage stops the pipeline.
func Apply(c *classpath.Class, stages ...Instrumenter) ([]Edit, error) {
	var edits []Edit
	for _, s := range stages {
		e, err := s.Instrument(c)
		if err != nil {
			return nil, err
		}
		edits = append(edits, e...)
	}
	return edits, nil
}
