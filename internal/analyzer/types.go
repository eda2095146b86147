package analyzer

import "github.com/olehluchkiv/enhancer/internal/classfile"

// StateAttribute is the class attribute the writer adds to record that a
// class went through the enhancement pass. The JVM ignores unknown
// attributes, so it costs nothing at run time.
const StateAttribute = "EntityEnhancementState"

// Conventions names the types, annotations and method prefixes that the
// enhancement pass recognizes. Type names are dotted.
type Conventions struct {
	BaseType       string
	EnhancedMarker string
	DisabledMarker string
	MetaProperty   string

	SetterPrefix         string
	GetterPrefix         string
	PersistenceGetPrefix string
	PersistenceSetPrefix string
}

// DefaultConventions returns the CUBA platform names.
func DefaultConventions() Conventions {
	return Conventions{
		BaseType:             "com.haulmont.chile.core.model.impl.AbstractInstance",
		EnhancedMarker:       "com.haulmont.cuba.core.sys.CubaEnhanced",
		DisabledMarker:       "com.haulmont.cuba.core.sys.CubaEnhancingDisabled",
		MetaProperty:         "com.haulmont.chile.core.annotations.MetaProperty",
		SetterPrefix:         "set",
		GetterPrefix:         "get",
		PersistenceGetPrefix: "_persistence_get_",
		PersistenceSetPrefix: "_persistence_set_",
	}
}

// Reason explains why a class is skipped.
type Reason string

const (
	ReasonNotEntity          Reason = "not-entity"
	ReasonUnresolvedAncestor Reason = "unresolved-ancestor"
	ReasonAlreadyEnhanced    Reason = "already-enhanced"
	ReasonDisabled           Reason = "enhancing-disabled"
)

// Verdict is the outcome of the eligibility check.
type Verdict struct {
	Eligible bool
	Reason   Reason
	Detail   string
	Chain    []string // superclasses walked, nearest first, dotted
}

// TrackedBy tells how a setter's field was recognized as a tracked
// property.
type TrackedBy string

const (
	TrackedByPersistence  TrackedBy = "persistence-mutator"
	TrackedByMetaProperty TrackedBy = "meta-property"
)

// Setter is a declared method matching the qualifying-setter shape.
type Setter struct {
	Method    *classfile.Member
	Field     string
	Param     classfile.FieldType
	TrackedBy TrackedBy // "" when the field is not a tracked property
}

// Tracked reports whether the setter is bound to a tracked property.
func (s Setter) Tracked() bool { return s.TrackedBy != "" }

// Rewritable reports whether the setter has a receiver and a body to
// wrap. Static, native and bridge methods do not.
func (s Setter) Rewritable() (bool, string) {
	switch {
	case s.Method.Access.IsStatic():
		return false, "static"
	case s.Method.Access.IsNative():
		return false, "native"
	case s.Method.Access.IsBridge():
		return false, "bridge"
	}
	return true, ""
}
