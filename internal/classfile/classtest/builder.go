// Package classtest builds small class files for tests and runs their
// bytecode on a toy interpreter.
package classtest

import (
	"encoding/binary"

	"github.com/olehluchkiv/enhancer/internal/classfile"
)

// Builder assembles a ClassFile. Method bodies are generated from simple
// shapes (field getter, field setter, default return) so tests can describe
// entity classes without a Java compiler.
type Builder struct {
	cf *classfile.ClassFile
}

// New starts a public class with major version 52 (Java 8) extending
// java/lang/Object. Names may be dotted or internal.
func New(name string) *Builder {
	return &Builder{cf: &classfile.ClassFile{
		Major:      52,
		Pool:       classfile.NewConstantPool(),
		Access:     classfile.AccPublic | classfile.AccSuper,
		ThisClass:  classfile.InternalName(name),
		SuperClass: "java/lang/Object",
	}}
}

// Version sets the class file major version.
func (b *Builder) Version(major uint16) *Builder {
	b.cf.Major = major
	return b
}

// Extends sets the superclass; "" makes a root class.
func (b *Builder) Extends(name string) *Builder {
	b.cf.SuperClass = classfile.InternalName(name)
	return b
}

// Implements adds direct superinterfaces.
func (b *Builder) Implements(names ...string) *Builder {
	for _, n := range names {
		b.cf.AddInterface(classfile.InternalName(n))
	}
	return b
}

// Interface turns the class into an interface.
func (b *Builder) Interface() *Builder {
	b.cf.Access = classfile.AccPublic | classfile.AccInterface | classfile.AccAbstract
	b.cf.SuperClass = "java/lang/Object"
	return b
}

// Field declares a private field. Each annotation is a dotted type name
// added as a runtime-visible marker annotation.
func (b *Builder) Field(name, desc string, annotations ...string) *Builder {
	f := &classfile.Member{Access: classfile.AccPrivate, Name: name, Descriptor: desc}
	if len(annotations) > 0 {
		f.Attributes = append(f.Attributes, &classfile.Attribute{
			Name: classfile.AttrRuntimeVisibleAnnotations,
			Data: markerAnnotations(b.cf.Pool, annotations),
		})
	}
	b.cf.Fields = append(b.cf.Fields, f)
	return b
}

// Getter declares `public T name() { return this.field; }`.
func (b *Builder) Getter(name, field, desc string) *Builder {
	t := mustFieldType(desc)
	p := b.cf.Pool
	code := []byte{byte(classfile.OpAload0), byte(classfile.OpGetfield)}
	code = binary.BigEndian.AppendUint16(code, p.AddFieldref(b.cf.ThisClass, field, desc))
	code = append(code, byte(returnOp(&t)))
	return b.method(classfile.AccPublic, name, "()"+desc, code, 2, 1)
}

// Setter declares `public void name(T v) { this.field = v; }`.
func (b *Builder) Setter(name, field, desc string) *Builder {
	t := mustFieldType(desc)
	p := b.cf.Pool
	code := []byte{byte(classfile.OpAload0), byte(loadOp(t)), 1, byte(classfile.OpPutfield)}
	code = binary.BigEndian.AppendUint16(code, p.AddFieldref(b.cf.ThisClass, field, desc))
	code = append(code, byte(classfile.OpReturn))
	locals := uint16(2)
	if t.IsWide() {
		locals = 3
	}
	return b.method(classfile.AccPublic, name, "("+desc+")V", code, 3, locals)
}

// Method declares a method whose body returns the default value of its
// return type. Abstract and native methods get no body.
func (b *Builder) Method(access classfile.AccessFlags, name, desc string) *Builder {
	if access.IsAbstract() || access.IsNative() {
		b.cf.Methods = append(b.cf.Methods, &classfile.Member{Access: access, Name: name, Descriptor: desc})
		return b
	}
	mt, err := classfile.ParseMethodDescriptor(desc)
	if err != nil {
		panic(err)
	}
	var code []byte
	switch {
	case mt.Return == nil:
	case !mt.Return.IsPrimitive():
		code = append(code, byte(classfile.OpAconstNull))
	case mt.Return.Kind == 'J':
		code = append(code, byte(classfile.OpLconst0))
	case mt.Return.Kind == 'D':
		code = append(code, byte(classfile.OpDconst0))
	case mt.Return.Kind == 'F':
		code = append(code, byte(classfile.OpFconst0))
	default:
		code = append(code, byte(classfile.OpIconst0))
	}
	code = append(code, byte(returnOp(mt.Return)))
	locals := uint16(0)
	if !access.IsStatic() {
		locals++
	}
	for _, p := range mt.Params {
		locals++
		if p.IsWide() {
			locals++
		}
	}
	return b.method(access, name, desc, code, 2, locals)
}

// Annotate adds a runtime-visible marker annotation to the most recently
// declared method.
func (b *Builder) Annotate(annotation string) *Builder {
	m := b.cf.Methods[len(b.cf.Methods)-1]
	m.Attributes = append(m.Attributes, &classfile.Attribute{
		Name: classfile.AttrRuntimeVisibleAnnotations,
		Data: markerAnnotations(b.cf.Pool, []string{annotation}),
	})
	return b
}

func (b *Builder) method(access classfile.AccessFlags, name, desc string, bytecode []byte, stack, locals uint16) *Builder {
	code := &classfile.Code{MaxStack: stack, MaxLocals: locals, Bytecode: bytecode}
	b.cf.Methods = append(b.cf.Methods, &classfile.Member{
		Access:     access,
		Name:       name,
		Descriptor: desc,
		Attributes: []*classfile.Attribute{{Name: classfile.AttrCode, Data: code.Encode(b.cf.Pool)}},
	})
	return b
}

// Build returns the class.
func (b *Builder) Build() *classfile.ClassFile {
	return b.cf
}

// Bytes encodes the class.
func (b *Builder) Bytes() []byte {
	data, err := b.cf.Bytes()
	if err != nil {
		panic(err)
	}
	return data
}

func markerAnnotations(p *classfile.ConstantPool, types []string) []byte {
	out := binary.BigEndian.AppendUint16(nil, uint16(len(types)))
	for _, t := range types {
		desc := classfile.ObjectType(classfile.InternalName(t)).Descriptor()
		out = binary.BigEndian.AppendUint16(out, p.AddUtf8(desc))
		out = binary.BigEndian.AppendUint16(out, 0)
	}
	return out
}

func mustFieldType(desc string) classfile.FieldType {
	t, err := classfile.ParseFieldType(desc)
	if err != nil {
		panic(err)
	}
	return t
}

func loadOp(t classfile.FieldType) classfile.Opcode {
	if !t.IsPrimitive() {
		return classfile.OpAload
	}
	switch t.Kind {
	case 'J':
		return classfile.OpLload
	case 'D':
		return classfile.OpDload
	case 'F':
		return classfile.OpFload
	}
	return classfile.OpIload
}

func returnOp(t *classfile.FieldType) classfile.Opcode {
	switch {
	case t == nil:
		return classfile.OpReturn
	case !t.IsPrimitive():
		return classfile.OpAreturn
	case t.Kind == 'J':
		return classfile.OpLreturn
	case t.Kind == 'D':
		return classfile.OpDreturn
	case t.Kind == 'F':
		return classfile.OpFreturn
	}
	return classfile.OpIreturn
}
