package instrument

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/olehluchkiv/enhancer/internal/analyzer"
	"github.com/olehluchkiv/enhancer/internal/classfile"
	"github.com/olehluchkiv/enhancer/internal/classpath"
)

// OriginalSuffix is appended to a wrapped setter's name to form the name
// of the private method that keeps its original body.
const OriginalSuffix = "$original"

const (
	equalsDesc = "(Ljava/lang/Object;Ljava/lang/Object;)Z"
	changeDesc = "(Ljava/lang/String;Ljava/lang/Object;Ljava/lang/Object;)V"

	// First major version whose verifier uses StackMapTable frames.
	stackMapVersion = 50
)

// PrimitiveSetterError reports a tracked setter whose parameter is a
// primitive: there is no "no previous value" for it to report.
type PrimitiveSetterError struct {
	Class     string
	Field     string
	Type      string
	Suggested string
}

func (e *PrimitiveSetterError) Error() string {
	return fmt.Sprintf("Unable to enhance field %s.%s with primitive type %s. Use type %s.",
		e.Class, e.Field, e.Type, e.Suggested)
}

// SetterInstrumenter wraps setters of tracked properties with change
// notification. The original method is renamed to a private synthetic
// method and a new method with the original signature calls it between
// two getter reads, notifying the change hook when the values differ.
type SetterInstrumenter struct {
	hierarchy analyzer.Hierarchy
	conv      analyzer.Conventions
	hooks     Hooks
	logger    *slog.Logger
}

// NewSetterInstrumenter creates the setter stage. The hierarchy is used to
// find getters declared on superclasses.
func NewSetterInstrumenter(h analyzer.Hierarchy, conv analyzer.Conventions, hooks Hooks, logger *slog.Logger) *SetterInstrumenter {
	return &SetterInstrumenter{hierarchy: h, conv: conv, hooks: hooks, logger: logger}
}

func (s *SetterInstrumenter) Name() string { return "setters" }

// Instrument validates every tracked setter before rewriting any of them,
// so a failure leaves the class untouched.
func (s *SetterInstrumenter) Instrument(c *classpath.Class) ([]Edit, error) {
	setters, err := analyzer.QualifyingSetters(c.File, s.conv)
	if err != nil {
		return nil, err
	}
	var edits []Edit
	var todo []analyzer.Setter
	for _, st := range setters {
		if !st.Tracked() {
			continue
		}
		if st.Param.IsPrimitive() {
			return nil, &PrimitiveSetterError{
				Class:     c.Name,
				Field:     st.Field,
				Type:      st.Param.JavaName(),
				Suggested: st.Param.Boxed().SimpleName(),
			}
		}
		if ok, why := st.Rewritable(); !ok {
			s.logger.Debug("setter not instrumented", "class", c.Name, "method", st.Method.Name, "reason", why)
			edits = append(edits, Edit{Kind: SetterSkipped, Method: st.Method.Name, Field: st.Field, Detail: why})
			continue
		}
		todo = append(todo, st)
	}
	if len(todo) == 0 {
		return edits, nil
	}
	owner, method, err := s.hooks.equalsRef()
	if err != nil {
		return nil, err
	}
	for _, st := range todo {
		getter := s.conv.GetterPrefix + analyzer.Capitalize(st.Field)
		ret := s.getterType(c, getter, st.Param)
		renamed, err := s.wrap(c, st, getter, ret, owner, method)
		if err != nil {
			return nil, fmt.Errorf("wrapping %s.%s: %w", c.Name, st.Method.Name, err)
		}
		s.logger.Debug("setter instrumented", "class", c.Name, "method", st.Method.Name,
			"field", st.Field, "tracked_by", string(st.TrackedBy))
		edits = append(edits, Edit{Kind: SetterWrapped, Method: st.Method.Name, Field: st.Field,
			Detail: string(st.TrackedBy) + ", body in " + renamed})
	}
	return edits, nil
}

// getterType finds the declared return type of a no-argument getter on the
// class or its loadable ancestors. Without one it assumes the setter's
// parameter type; a wrong guess fails at link time, not here.
func (s *SetterInstrumenter) getterType(c *classpath.Class, name string, fallback classfile.FieldType) classfile.FieldType {
	for cur := c; cur != nil; {
		for _, m := range cur.File.Methods {
			if m.Name != name || m.Access.IsStatic() {
				continue
			}
			mt, err := classfile.ParseMethodDescriptor(m.Descriptor)
			if err == nil && len(mt.Params) == 0 && !mt.IsVoid() {
				return *mt.Return
			}
		}
		super, ok, err := s.hierarchy.ResolveSuperclass(cur)
		if err != nil || !ok {
			break
		}
		cur = super
	}
	s.logger.Debug("getter not found, assuming setter type", "class", c.Name, "getter", name, "type", fallback.JavaName())
	return fallback
}

func (s *SetterInstrumenter) wrap(c *classpath.Class, st analyzer.Setter, getter string, ret classfile.FieldType, eqOwner, eqMethod string) (string, error) {
	cf := c.File
	orig := st.Method
	renamed := uniqueMethodName(cf, orig.Name+OriginalSuffix)
	mt := classfile.MethodType{Params: []classfile.FieldType{st.Param}}

	wrapper := &classfile.Member{Access: orig.Access, Name: orig.Name, Descriptor: orig.Descriptor}
	var kept []*classfile.Attribute
	for _, a := range orig.Attributes {
		switch a.Name {
		case classfile.AttrCode:
			kept = append(kept, a)
		case classfile.AttrExceptions:
			kept = append(kept, a)
			wrapper.Attributes = append(wrapper.Attributes, a)
		default:
			wrapper.Attributes = append(wrapper.Attributes, a)
		}
	}

	getterDesc := "()" + ret.Descriptor()
	value := ret.Boxed()
	asm := newAssembler(cf.Pool)
	read := func(store classfile.Opcode) {
		asm.op(classfile.OpAload0)
		asm.invoke(classfile.OpInvokevirtual, cf.ThisClass, getter, getterDesc)
		if ret.IsPrimitive() {
			asm.invoke(classfile.OpInvokestatic, value.Class, "valueOf", "("+ret.Descriptor()+")"+value.Descriptor())
		}
		asm.op(store)
	}

	read(classfile.OpAstore2)
	asm.op(classfile.OpAload0, classfile.OpAload1)
	asm.invoke(classfile.OpInvokespecial, cf.ThisClass, renamed, orig.Descriptor)
	read(classfile.OpAstore3)
	asm.op(classfile.OpAload2, classfile.OpAload3)
	asm.invoke(classfile.OpInvokestatic, eqOwner, eqMethod, equalsDesc)
	done := asm.newLabel()
	asm.branch(classfile.OpIfne, done)
	asm.op(classfile.OpAload0)
	asm.ldcString(st.Field)
	asm.op(classfile.OpAload2, classfile.OpAload3)
	asm.invoke(classfile.OpInvokevirtual, cf.ThisClass, s.hooks.ChangeHook, changeDesc)
	asm.mark(done)
	asm.op(classfile.OpReturn)

	bytecode, err := asm.bytes()
	if err != nil {
		return "", err
	}
	code := &classfile.Code{MaxStack: 4, MaxLocals: 4, Bytecode: bytecode}
	if cf.Major >= stackMapVersion {
		initial := classfile.InitialLocals(cf.ThisClass, false, mt)
		vt := classfile.VerificationOf(value)
		frame := classfile.Frame{
			Offset: asm.offset(done),
			Locals: append(append([]classfile.VerificationType{}, initial...), vt, vt),
		}
		table, err := classfile.EncodeStackMapTable(cf.Pool, initial, []classfile.Frame{frame})
		if err != nil {
			return "", err
		}
		code.Attributes = append(code.Attributes, &classfile.Attribute{Name: classfile.AttrStackMapTable, Data: table})
	}
	wrapper.Attributes = append([]*classfile.Attribute{{Name: classfile.AttrCode, Data: code.Encode(cf.Pool)}}, wrapper.Attributes...)

	orig.Name = renamed
	orig.Access = (orig.Access.WithVisibility(classfile.AccPrivate) | classfile.AccSynthetic) &^ classfile.AccVarargs
	orig.Attributes = kept

	idx := indexOf(cf.Methods, orig)
	cf.Methods = append(cf.Methods[:idx], append([]*classfile.Member{wrapper}, cf.Methods[idx:]...)...)
	return renamed, cf.Pool.Err()
}

func uniqueMethodName(cf *classfile.ClassFile, name string) string {
	candidate := name
	for i := 2; cf.HasMethodNamed(candidate); i++ {
		candidate = name + strconv.Itoa(i)
	}
	return candidate
}

func indexOf(ms []*classfile.Member, m *classfile.Member) int {
	for i, x := range ms {
		if x == m {
			return i
		}
	}
	return len(ms)
}
