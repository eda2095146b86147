package analyzer

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/olehluchkiv/enhancer/internal/classfile"
	"github.com/olehluchkiv/enhancer/internal/classpath"
)

// Hierarchy resolves superclasses. *classpath.Repository implements it.
type Hierarchy interface {
	ResolveSuperclass(c *classpath.Class) (*classpath.Class, bool, error)
}

// Checker decides whether a class should be enhanced.
type Checker struct {
	hierarchy Hierarchy
	conv      Conventions
	strict    bool
	logger    *slog.Logger
}

// NewChecker creates a checker. With strict set, a superclass outside the
// JDK namespaces that cannot be loaded is an error instead of a skip.
func NewChecker(h Hierarchy, conv Conventions, strict bool, logger *slog.Logger) *Checker {
	return &Checker{hierarchy: h, conv: conv, strict: strict, logger: logger}
}

// Check walks c's superclass chain looking for the base entity type, then
// scans its direct interfaces and attributes for the done/disabled
// markers. Skips are logged and returned as a Verdict; only resolution
// problems in strict mode produce an error.
func (ch *Checker) Check(c *classpath.Class) (Verdict, error) {
	v, err := ch.checkHierarchy(c)
	if err != nil || !v.Eligible {
		return v, err
	}
	if reason, detail := ch.checkMarkers(c); reason != "" {
		v.Eligible = false
		v.Reason = reason
		v.Detail = detail
		ch.logger.Info("class has already been enhanced or should not be enhanced at all",
			"class", c.Name, "reason", reason, "detail", detail)
	}
	return v, nil
}

func (ch *Checker) checkHierarchy(c *classpath.Class) (Verdict, error) {
	base := classfile.InternalName(ch.conv.BaseType)
	var v Verdict
	cur := c
	for {
		name := cur.File.SuperClass
		if name == "" {
			break
		}
		v.Chain = append(v.Chain, classfile.DottedName(name))
		if name == base {
			v.Eligible = true
			return v, nil
		}
		super, ok, err := ch.hierarchy.ResolveSuperclass(cur)
		if err != nil {
			// The JDK never contains the base type, and it is rarely on the
			// search path.
			if errors.Is(err, classpath.ErrNotFound) && classpath.IsJDK(name) {
				break
			}
			if ch.strict || !errors.Is(err, classpath.ErrNotFound) {
				return v, fmt.Errorf("resolving superclass %s of %s: %w", classfile.DottedName(name), cur.Name, err)
			}
			v.Reason = ReasonUnresolvedAncestor
			v.Detail = classfile.DottedName(name)
			ch.logger.Info("class is not an entity and should not be enhanced",
				"class", c.Name, "base", ch.conv.BaseType, "unresolved", v.Detail)
			return v, nil
		}
		if !ok {
			break
		}
		cur = super
	}
	v.Reason = ReasonNotEntity
	ch.logger.Info("class is not an entity and should not be enhanced", "class", c.Name, "base", ch.conv.BaseType)
	return v, nil
}

func (ch *Checker) checkMarkers(c *classpath.Class) (Reason, string) {
	if c.Implements(ch.conv.DisabledMarker) {
		return ReasonDisabled, ch.conv.DisabledMarker
	}
	if c.Implements(ch.conv.EnhancedMarker) {
		return ReasonAlreadyEnhanced, ch.conv.EnhancedMarker
	}
	if c.File.Attribute(StateAttribute) != nil {
		return ReasonAlreadyEnhanced, StateAttribute
	}
	return "", ""
}
