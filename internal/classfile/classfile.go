// Package classfile reads and writes JVM class files.
//
// Names and descriptors of the class, its members and attributes are
// decoded to strings so callers can rename or retag them freely; attribute
// payloads stay raw. The constant pool only grows, which keeps every index
// inside an untouched payload valid when the class is written back.
package classfile

import (
	"errors"
	"fmt"
)

// Magic is the first word of every class file.
const Magic = 0xCAFEBABE

// ErrMalformed is returned for input that is not a well-formed class file.
var ErrMalformed = errors.New("malformed class file")

// Well-known attribute names.
const (
	AttrCode                        = "Code"
	AttrExceptions                  = "Exceptions"
	AttrStackMapTable               = "StackMapTable"
	AttrSignature                   = "Signature"
	AttrRuntimeVisibleAnnotations   = "RuntimeVisibleAnnotations"
	AttrRuntimeInvisibleAnnotations = "RuntimeInvisibleAnnotations"
	AttrSourceFile                  = "SourceFile"
)

// Attribute is a named attribute with its raw payload.
type Attribute struct {
	Name string
	Data []byte

	nameIdx uint16
}

// Member is a field_info or method_info.
type Member struct {
	Access     AccessFlags
	Name       string
	Descriptor string
	Attributes []*Attribute

	nameIdx, descIdx uint16
}

// Attribute returns the first attribute called name, or nil.
func (m *Member) Attribute(name string) *Attribute {
	return findAttribute(m.Attributes, name)
}

// RemoveAttribute drops every attribute called name.
func (m *Member) RemoveAttribute(name string) {
	m.Attributes = removeAttribute(m.Attributes, name)
}

// ClassFile is a decoded class.
type ClassFile struct {
	Minor, Major uint16
	Pool         *ConstantPool
	Access       AccessFlags
	ThisClass    string // internal name
	SuperClass   string // internal name, "" for java/lang/Object and module-info
	Interfaces   []string
	Fields       []*Member
	Methods      []*Member
	Attributes   []*Attribute

	thisIdx, superIdx uint16
	ifaceIdx          map[string]uint16
}

// Parse decodes a class file image.
func Parse(data []byte) (*ClassFile, error) {
	r := &reader{buf: data}
	if magic := r.u4(); r.err == nil && magic != Magic {
		return nil, fmt.Errorf("%w: bad magic %#x", ErrMalformed, magic)
	}
	cf := &ClassFile{Minor: r.u2(), Major: r.u2()}
	if r.err != nil {
		return nil, r.err
	}
	pool, err := readPool(r)
	if err != nil {
		return nil, err
	}
	cf.Pool = pool
	cf.Access = AccessFlags(r.u2())

	cf.thisIdx = r.u2()
	cf.superIdx = r.u2()
	if r.err != nil {
		return nil, r.err
	}
	if cf.ThisClass, err = pool.ClassName(cf.thisIdx); err != nil {
		return nil, fmt.Errorf("this_class: %w", err)
	}
	if cf.superIdx != 0 {
		if cf.SuperClass, err = pool.ClassName(cf.superIdx); err != nil {
			return nil, fmt.Errorf("super_class: %w", err)
		}
	}

	n := int(r.u2())
	cf.ifaceIdx = make(map[string]uint16, n)
	for i := 0; i < n; i++ {
		idx := r.u2()
		if r.err != nil {
			return nil, r.err
		}
		name, err := pool.ClassName(idx)
		if err != nil {
			return nil, fmt.Errorf("interface %d: %w", i, err)
		}
		cf.Interfaces = append(cf.Interfaces, name)
		cf.ifaceIdx[name] = idx
	}

	if cf.Fields, err = readMembers(r, pool); err != nil {
		return nil, fmt.Errorf("fields: %w", err)
	}
	if cf.Methods, err = readMembers(r, pool); err != nil {
		return nil, fmt.Errorf("methods: %w", err)
	}
	if cf.Attributes, err = readAttributes(r, pool); err != nil {
		return nil, fmt.Errorf("class attributes: %w", err)
	}
	if !r.done() {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(data)-r.off)
	}
	return cf, nil
}

func readMembers(r *reader, pool *ConstantPool) ([]*Member, error) {
	n := int(r.u2())
	members := make([]*Member, 0, n)
	for i := 0; i < n; i++ {
		m := &Member{Access: AccessFlags(r.u2()), nameIdx: r.u2(), descIdx: r.u2()}
		if r.err != nil {
			return nil, r.err
		}
		var err error
		if m.Name, err = pool.Utf8(m.nameIdx); err != nil {
			return nil, err
		}
		if m.Descriptor, err = pool.Utf8(m.descIdx); err != nil {
			return nil, err
		}
		if m.Attributes, err = readAttributes(r, pool); err != nil {
			return nil, fmt.Errorf("%s%s: %w", m.Name, m.Descriptor, err)
		}
		members = append(members, m)
	}
	return members, r.err
}

func readAttributes(r *reader, pool *ConstantPool) ([]*Attribute, error) {
	n := int(r.u2())
	attrs := make([]*Attribute, 0, n)
	for i := 0; i < n; i++ {
		a := &Attribute{nameIdx: r.u2()}
		a.Data = r.bytes(int(r.u4()))
		if r.err != nil {
			return nil, r.err
		}
		name, err := pool.Utf8(a.nameIdx)
		if err != nil {
			return nil, err
		}
		a.Name = name
		attrs = append(attrs, a)
	}
	return attrs, r.err
}

// Bytes encodes the class. Names that were not changed since Parse keep
// their original constant pool indices.
func (cf *ClassFile) Bytes() ([]byte, error) {
	p := cf.Pool
	body := &writer{}
	body.u2(uint16(cf.Access))
	body.u2(classIndex(p, cf.thisIdx, cf.ThisClass))
	if cf.SuperClass == "" {
		body.u2(0)
	} else {
		body.u2(classIndex(p, cf.superIdx, cf.SuperClass))
	}
	body.u2(uint16(len(cf.Interfaces)))
	for _, name := range cf.Interfaces {
		body.u2(classIndex(p, cf.ifaceIdx[name], name))
	}
	for _, members := range [][]*Member{cf.Fields, cf.Methods} {
		body.u2(uint16(len(members)))
		for _, m := range members {
			body.u2(uint16(m.Access))
			body.u2(utf8Index(p, m.nameIdx, m.Name))
			body.u2(utf8Index(p, m.descIdx, m.Descriptor))
			writeAttributes(body, p, m.Attributes)
		}
	}
	writeAttributes(body, p, cf.Attributes)
	if err := p.Err(); err != nil {
		return nil, err
	}

	out := &writer{buf: make([]byte, 0, len(body.buf)+p.Len()*8)}
	out.u4(Magic)
	out.u2(cf.Minor)
	out.u2(cf.Major)
	p.write(out)
	out.raw(body.buf)
	return out.buf, nil
}

func writeAttributes(w *writer, p *ConstantPool, attrs []*Attribute) {
	w.u2(uint16(len(attrs)))
	for _, a := range attrs {
		w.u2(utf8Index(p, a.nameIdx, a.Name))
		w.u4(uint32(len(a.Data)))
		w.raw(a.Data)
	}
}

// utf8Index reuses orig when it still holds s.
func utf8Index(p *ConstantPool, orig uint16, s string) uint16 {
	if orig != 0 {
		if cur, err := p.Utf8(orig); err == nil && cur == s {
			return orig
		}
	}
	return p.AddUtf8(s)
}

func classIndex(p *ConstantPool, orig uint16, name string) uint16 {
	if orig != 0 {
		if cur, err := p.ClassName(orig); err == nil && cur == name {
			return orig
		}
	}
	return p.AddClass(name)
}

// Method returns the declared method with the given name and descriptor.
func (cf *ClassFile) Method(name, descriptor string) *Member {
	for _, m := range cf.Methods {
		if m.Name == name && m.Descriptor == descriptor {
			return m
		}
	}
	return nil
}

// HasMethodNamed reports whether any declared method is called name.
func (cf *ClassFile) HasMethodNamed(name string) bool {
	for _, m := range cf.Methods {
		if m.Name == name {
			return true
		}
	}
	return false
}

// Field returns the declared field called name, or nil.
func (cf *ClassFile) Field(name string) *Member {
	for _, f := range cf.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Implements reports whether internalName is a direct superinterface.
func (cf *ClassFile) Implements(internalName string) bool {
	for _, i := range cf.Interfaces {
		if i == internalName {
			return true
		}
	}
	return false
}

// AddInterface appends internalName to the direct superinterfaces unless it
// is already there.
func (cf *ClassFile) AddInterface(internalName string) {
	if cf.Implements(internalName) {
		return
	}
	cf.Interfaces = append(cf.Interfaces, internalName)
}

// Attribute returns the first class attribute called name, or nil.
func (cf *ClassFile) Attribute(name string) *Attribute {
	return findAttribute(cf.Attributes, name)
}

// SetAttribute replaces (or appends) the class attribute called name.
func (cf *ClassFile) SetAttribute(name string, data []byte) {
	if a := cf.Attribute(name); a != nil {
		a.Data = data
		return
	}
	cf.Attributes = append(cf.Attributes, &Attribute{Name: name, Data: data})
}

func findAttribute(attrs []*Attribute, name string) *Attribute {
	for _, a := range attrs {
		if a.Name == name {
			return a
		}
	}
	return nil
}

func removeAttribute(attrs []*Attribute, name string) []*Attribute {
	out := attrs[:0]
	for _, a := range attrs {
		if a.Name != name {
			out = append(out, a)
		}
	}
	return out
}
