package classfile

import (
	"fmt"
	"strings"
)

// FieldType is a parsed field descriptor. Kind is the descriptor letter of
// the element type: one of BCDFIJSZ for primitives, L for references.
type FieldType struct {
	Kind  byte
	Class string // internal name, set when Kind == 'L'
	Dims  int
}

var primitiveNames = map[byte]string{
	'B': "byte",
	'C': "char",
	'D': "double",
	'F': "float",
	'I': "int",
	'J': "long",
	'S': "short",
	'Z': "boolean",
}

// boxes maps primitive descriptors to their wrapper class.
var boxes = map[byte]string{
	'B': "java/lang/Byte",
	'C': "java/lang/Character",
	'D': "java/lang/Double",
	'F': "java/lang/Float",
	'I': "java/lang/Integer",
	'J': "java/lang/Long",
	'S': "java/lang/Short",
	'Z': "java/lang/Boolean",
}

// ObjectType returns the FieldType of a non-array reference.
func ObjectType(internalName string) FieldType {
	return FieldType{Kind: 'L', Class: internalName}
}

// ParseFieldType parses a complete field descriptor such as
// "Ljava/lang/String;" or "[I".
func ParseFieldType(desc string) (FieldType, error) {
	t, rest, err := parseFieldType(desc)
	if err != nil {
		return t, err
	}
	if rest != "" {
		return t, fmt.Errorf("%w: trailing data in field descriptor %q", ErrMalformed, desc)
	}
	return t, nil
}

func parseFieldType(s string) (FieldType, string, error) {
	var t FieldType
	orig := s
	for strings.HasPrefix(s, "[") {
		t.Dims++
		s = s[1:]
	}
	if s == "" {
		return t, "", fmt.Errorf("%w: truncated descriptor %q", ErrMalformed, orig)
	}
	t.Kind = s[0]
	if t.Kind == 'L' {
		end := strings.IndexByte(s, ';')
		if end < 2 {
			return t, "", fmt.Errorf("%w: bad object descriptor %q", ErrMalformed, orig)
		}
		t.Class = s[1:end]
		return t, s[end+1:], nil
	}
	if _, ok := primitiveNames[t.Kind]; !ok {
		return t, "", fmt.Errorf("%w: unknown descriptor type %q in %q", ErrMalformed, t.Kind, orig)
	}
	return t, s[1:], nil
}

// IsPrimitive reports whether t is a non-array primitive.
func (t FieldType) IsPrimitive() bool {
	return t.Dims == 0 && t.Kind != 'L'
}

// IsWide reports whether a value of t occupies two local/stack slots.
func (t FieldType) IsWide() bool {
	return t.Dims == 0 && (t.Kind == 'J' || t.Kind == 'D')
}

// Descriptor renders t back to descriptor form.
func (t FieldType) Descriptor() string {
	var b strings.Builder
	b.WriteString(strings.Repeat("[", t.Dims))
	if t.Kind == 'L' {
		b.WriteString("L" + t.Class + ";")
	} else {
		b.WriteByte(t.Kind)
	}
	return b.String()
}

// ClassRef is the string a CONSTANT_Class uses for t: the internal name for
// plain references and the descriptor for arrays. Primitives have none.
func (t FieldType) ClassRef() string {
	if t.Dims > 0 {
		return t.Descriptor()
	}
	return t.Class
}

// JavaName renders t as source would: "java.lang.String", "int[]".
func (t FieldType) JavaName() string {
	name := primitiveNames[t.Kind]
	if t.Kind == 'L' {
		name = strings.ReplaceAll(t.Class, "/", ".")
	}
	return name + strings.Repeat("[]", t.Dims)
}

// SimpleName is JavaName without the package.
func (t FieldType) SimpleName() string {
	name := t.JavaName()
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// Boxed returns the wrapper type of a primitive, or t unchanged.
func (t FieldType) Boxed() FieldType {
	if !t.IsPrimitive() {
		return t
	}
	return ObjectType(boxes[t.Kind])
}

// MethodType is a parsed method descriptor. Return is nil for void.
type MethodType struct {
	Params []FieldType
	Return *FieldType
}

// ParseMethodDescriptor parses a descriptor such as "(ILjava/lang/String;)V".
func ParseMethodDescriptor(desc string) (MethodType, error) {
	var m MethodType
	if !strings.HasPrefix(desc, "(") {
		return m, fmt.Errorf("%w: method descriptor %q lacks '('", ErrMalformed, desc)
	}
	s := desc[1:]
	for {
		if s == "" {
			return m, fmt.Errorf("%w: unterminated method descriptor %q", ErrMalformed, desc)
		}
		if s[0] == ')' {
			s = s[1:]
			break
		}
		t, rest, err := parseFieldType(s)
		if err != nil {
			return m, err
		}
		m.Params = append(m.Params, t)
		s = rest
	}
	if s == "V" {
		return m, nil
	}
	ret, err := ParseFieldType(s)
	if err != nil {
		return m, err
	}
	m.Return = &ret
	return m, nil
}

// Descriptor renders m back to descriptor form.
func (m MethodType) Descriptor() string {
	var b strings.Builder
	b.WriteByte('(')
	for _, p := range m.Params {
		b.WriteString(p.Descriptor())
	}
	b.WriteByte(')')
	if m.Return == nil {
		b.WriteByte('V')
	} else {
		b.WriteString(m.Return.Descriptor())
	}
	return b.String()
}

// IsVoid reports whether the method returns nothing.
func (m MethodType) IsVoid() bool { return m.Return == nil }

// InternalName converts a dotted class name to internal form. Internal
// names pass through unchanged.
func InternalName(name string) string {
	return strings.ReplaceAll(name, ".", "/")
}

// DottedName converts an internal class name to dotted form.
func DottedName(name string) string {
	return strings.ReplaceAll(name, "/", ".")
}
