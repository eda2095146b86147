package analyzer

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/olehluchkiv/enhancer/internal/classfile"
)

// QualifyingSetters returns the declared methods that look like property
// setters: name starts with the setter prefix, not abstract, void return
// and exactly one parameter. Each result says whether its field is a
// tracked property.
func QualifyingSetters(cf *classfile.ClassFile, conv Conventions) ([]Setter, error) {
	var out []Setter
	for _, m := range cf.Methods {
		if m.Access.IsAbstract() || !strings.HasPrefix(m.Name, conv.SetterPrefix) || len(m.Name) == len(conv.SetterPrefix) {
			continue
		}
		mt, err := classfile.ParseMethodDescriptor(m.Descriptor)
		if err != nil {
			return nil, fmt.Errorf("method %s: %w", m.Name, err)
		}
		if !mt.IsVoid() || len(mt.Params) != 1 {
			continue
		}
		s := Setter{
			Method: m,
			Field:  Uncapitalize(m.Name[len(conv.SetterPrefix):]),
			Param:  mt.Params[0],
		}
		if s.TrackedBy, err = TrackedProperty(cf, s.Field, conv); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// TrackedProperty reports how field is tracked: the class declares a
// persistence mutator for it, or declares the field itself with the
// MetaProperty annotation. It returns "" for plain fields.
func TrackedProperty(cf *classfile.ClassFile, field string, conv Conventions) (TrackedBy, error) {
	if cf.HasMethodNamed(conv.PersistenceSetPrefix + field) {
		return TrackedByPersistence, nil
	}
	f := cf.Field(field)
	if f == nil {
		return "", nil
	}
	ok, err := f.HasAnnotation(cf.Pool, conv.MetaProperty)
	if err != nil {
		return "", fmt.Errorf("field %s annotations: %w", field, err)
	}
	if ok {
		return TrackedByMetaProperty, nil
	}
	return "", nil
}

// PersistenceAccessors returns the declared methods named with either
// generated persistence accessor prefix.
func PersistenceAccessors(cf *classfile.ClassFile, conv Conventions) []*classfile.Member {
	var out []*classfile.Member
	for _, m := range cf.Methods {
		if strings.HasPrefix(m.Name, conv.PersistenceGetPrefix) || strings.HasPrefix(m.Name, conv.PersistenceSetPrefix) {
			out = append(out, m)
		}
	}
	return out
}

// Uncapitalize lower-cases the first letter only: "URL" becomes "uRL".
func Uncapitalize(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if n == 0 {
		return s
	}
	return string(unicode.ToLower(r)) + s[n:]
}

// Capitalize upper-cases the first letter only.
func Capitalize(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if n == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[n:]
}
