package instrument

import (
	"log/slog"
	"strings"

	"github.com/olehluchkiv/enhancer/internal/analyzer"
	"github.com/olehluchkiv/enhancer/internal/classfile"
	"github.com/olehluchkiv/enhancer/internal/classpath"
)

// AccessorRestrictor makes the persistence provider's generated accessors
// protected so they stay out of the entity's public API.
type AccessorRestrictor struct {
	conv   analyzer.Conventions
	logger *slog.Logger
}

func NewAccessorRestrictor(conv analyzer.Conventions, logger *slog.Logger) *AccessorRestrictor {
	return &AccessorRestrictor{conv: conv, logger: logger}
}

func (r *AccessorRestrictor) Name() string { return "accessors" }

// Instrument never fails. Accessors that are protected already produce no
// edit.
func (r *AccessorRestrictor) Instrument(c *classpath.Class) ([]Edit, error) {
	var edits []Edit
	for _, m := range analyzer.PersistenceAccessors(c.File, r.conv) {
		before := m.Access
		m.Access = m.Access.WithVisibility(classfile.AccProtected)
		if m.Access == before {
			continue
		}
		r.logger.Debug("setting protected modifier", "class", c.Name, "method", m.Name)
		edits = append(edits, Edit{
			Kind:   AccessorRestricted,
			Method: m.Name,
			Detail: modifiers(before) + " -> " + modifiers(m.Access),
		})
	}
	return edits, nil
}

func modifiers(f classfile.AccessFlags) string {
	if f.Visibility() == "package" {
		return strings.TrimSpace("package " + f.MethodString())
	}
	return f.MethodString()
}
