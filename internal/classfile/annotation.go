package classfile

import (
	"fmt"
	"strings"
)

// Annotation is a decoded annotation: its dotted type name and element
// values by name.
type Annotation struct {
	Type    string
	Visible bool
	Values  map[string]ElementValue
}

// ElementValue is one annotation element. Which fields are set depends on
// Tag: const tags (BCDFIJSZs) set Const, 'e' sets EnumType/EnumName, 'c'
// sets Class, '@' sets Nested and '[' sets Array.
type ElementValue struct {
	Tag      byte
	Const    any
	EnumType string
	EnumName string
	Class    string
	Nested   *Annotation
	Array    []ElementValue
}

// String renders the value roughly as Java source would.
func (v ElementValue) String() string {
	switch v.Tag {
	case 'e':
		return v.EnumType + "." + v.EnumName
	case 'c':
		return v.Class + ".class"
	case '@':
		return "@" + v.Nested.Type
	case '[':
		parts := make([]string, len(v.Array))
		for i, e := range v.Array {
			parts[i] = e.String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case 's':
		return fmt.Sprintf("%q", v.Const)
	}
	return fmt.Sprint(v.Const)
}

// Annotations decodes the runtime-visible and runtime-invisible
// annotations declared on m.
func (m *Member) Annotations(p *ConstantPool) ([]Annotation, error) {
	return decodeAnnotationAttrs(m.Attributes, p)
}

// Annotations decodes the class-level annotations.
func (cf *ClassFile) Annotations() ([]Annotation, error) {
	return decodeAnnotationAttrs(cf.Attributes, cf.Pool)
}

// HasAnnotation reports whether m carries an annotation of the given dotted
// type, visible or not.
func (m *Member) HasAnnotation(p *ConstantPool, typeName string) (bool, error) {
	annos, err := m.Annotations(p)
	if err != nil {
		return false, err
	}
	for _, a := range annos {
		if a.Type == typeName {
			return true, nil
		}
	}
	return false, nil
}

func decodeAnnotationAttrs(attrs []*Attribute, p *ConstantPool) ([]Annotation, error) {
	var out []Annotation
	for _, a := range attrs {
		var visible bool
		switch a.Name {
		case AttrRuntimeVisibleAnnotations:
			visible = true
		case AttrRuntimeInvisibleAnnotations:
		default:
			continue
		}
		r := &reader{buf: a.Data}
		n := int(r.u2())
		for i := 0; i < n; i++ {
			anno, err := readAnnotation(r, p)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", a.Name, err)
			}
			anno.Visible = visible
			out = append(out, *anno)
		}
		if r.err != nil {
			return nil, r.err
		}
	}
	return out, nil
}

func readAnnotation(r *reader, p *ConstantPool) (*Annotation, error) {
	typeDesc, err := p.Utf8(r.u2())
	if err != nil {
		return nil, err
	}
	t, err := ParseFieldType(typeDesc)
	if err != nil {
		return nil, err
	}
	anno := &Annotation{Type: t.JavaName(), Values: map[string]ElementValue{}}
	pairs := int(r.u2())
	for i := 0; i < pairs; i++ {
		name, err := p.Utf8(r.u2())
		if err != nil {
			return nil, err
		}
		v, err := readElementValue(r, p)
		if err != nil {
			return nil, fmt.Errorf("element %s: %w", name, err)
		}
		anno.Values[name] = v
	}
	return anno, r.err
}

func readElementValue(r *reader, p *ConstantPool) (ElementValue, error) {
	v := ElementValue{Tag: r.u1()}
	if r.err != nil {
		return v, r.err
	}
	var err error
	switch v.Tag {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z', 's':
		v.Const, err = p.Value(r.u2())
		if err == nil && v.Tag == 'Z' {
			if i, ok := v.Const.(int32); ok {
				v.Const = i != 0
			}
		}
	case 'e':
		var t FieldType
		if t, err = parseDescriptorAt(p, r.u2()); err == nil {
			v.EnumType = t.JavaName()
			v.EnumName, err = p.Utf8(r.u2())
		}
	case 'c':
		var desc string
		if desc, err = p.Utf8(r.u2()); err == nil {
			v.Class = desc
			if desc != "V" {
				var t FieldType
				if t, err = ParseFieldType(desc); err == nil {
					v.Class = t.JavaName()
				}
			}
		}
	case '@':
		v.Nested, err = readAnnotation(r, p)
	case '[':
		n := int(r.u2())
		for i := 0; i < n && err == nil; i++ {
			var e ElementValue
			if e, err = readElementValue(r, p); err == nil {
				v.Array = append(v.Array, e)
			}
		}
	default:
		err = fmt.Errorf("%w: unknown element value tag %q", ErrMalformed, v.Tag)
	}
	if err != nil {
		return v, err
	}
	return v, r.err
}

func parseDescriptorAt(p *ConstantPool, i uint16) (FieldType, error) {
	desc, err := p.Utf8(i)
	if err != nil {
		return FieldType{}, err
	}
	return ParseFieldType(desc)
}
