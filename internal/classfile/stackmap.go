package classfile

import (
	"fmt"
	"slices"
)

// VerificationKind is the tag of a verification_type_info.
type VerificationKind uint8

const (
	VTop               VerificationKind = 0
	VInteger           VerificationKind = 1
	VFloat             VerificationKind = 2
	VDouble            VerificationKind = 3
	VLong              VerificationKind = 4
	VNull              VerificationKind = 5
	VUninitializedThis VerificationKind = 6
	VObject            VerificationKind = 7
	VUninitialized     VerificationKind = 8
)

// VerificationType is one local or stack entry of a frame. Class is the
// CONSTANT_Class name for VObject; Offset is the new instruction for
// VUninitialized.
type VerificationType struct {
	Kind   VerificationKind
	Class  string
	Offset uint16
}

// ObjectVerification is shorthand for a VObject entry.
func ObjectVerification(classRef string) VerificationType {
	return VerificationType{Kind: VObject, Class: classRef}
}

// VerificationOf maps a field type to the verifier's view of a value
// of that type.
func VerificationOf(t FieldType) VerificationType {
	if !t.IsPrimitive() {
		return ObjectVerification(t.ClassRef())
	}
	switch t.Kind {
	case 'J':
		return VerificationType{Kind: VLong}
	case 'D':
		return VerificationType{Kind: VDouble}
	case 'F':
		return VerificationType{Kind: VFloat}
	}
	return VerificationType{Kind: VInteger}
}

// Frame is the verifier state at an absolute bytecode offset.
type Frame struct {
	Offset int
	Locals []VerificationType
	Stack  []VerificationType
}

// InitialLocals is the implicit first frame of a method: the receiver (for
// instance methods) followed by the parameters.
func InitialLocals(owner string, static bool, mt MethodType) []VerificationType {
	var locals []VerificationType
	if !static {
		locals = append(locals, ObjectVerification(owner))
	}
	for _, p := range mt.Params {
		locals = append(locals, VerificationOf(p))
	}
	return locals
}

// EncodeStackMapTable renders frames (sorted by offset) as a StackMapTable
// payload, choosing the compact frame forms where they apply.
func EncodeStackMapTable(p *ConstantPool, initial []VerificationType, frames []Frame) ([]byte, error) {
	w := &writer{}
	w.u2(uint16(len(frames)))
	prevLocals := initial
	prevOffset := -1
	for _, f := range frames {
		delta := f.Offset - prevOffset - 1
		if delta < 0 || delta > 0xFFFF {
			return nil, fmt.Errorf("stack map frame at %d is out of order", f.Offset)
		}
		switch {
		case len(f.Stack) == 0 && slices.Equal(f.Locals, prevLocals):
			if delta < 64 {
				w.u1(uint8(delta))
			} else {
				w.u1(251)
				w.u2(uint16(delta))
			}
		case len(f.Stack) == 0 && appends(prevLocals, f.Locals):
			extra := f.Locals[len(prevLocals):]
			w.u1(uint8(251 + len(extra)))
			w.u2(uint16(delta))
			for _, v := range extra {
				writeVerification(w, p, v)
			}
		case len(f.Stack) == 1 && slices.Equal(f.Locals, prevLocals):
			if delta < 64 {
				w.u1(uint8(64 + delta))
			} else {
				w.u1(247)
				w.u2(uint16(delta))
			}
			writeVerification(w, p, f.Stack[0])
		default:
			w.u1(255)
			w.u2(uint16(delta))
			w.u2(uint16(len(f.Locals)))
			for _, v := range f.Locals {
				writeVerification(w, p, v)
			}
			w.u2(uint16(len(f.Stack)))
			for _, v := range f.Stack {
				writeVerification(w, p, v)
			}
		}
		prevLocals = f.Locals
		prevOffset = f.Offset
	}
	return w.buf, nil
}

// appends reports whether next is prev plus one to three entries, which
// is what an append_frame can express. Wide locals are excluded because
// their implicit second slot complicates the count.
func appends(prev, next []VerificationType) bool {
	n := len(next) - len(prev)
	if n < 1 || n > 3 || !slices.Equal(prev, next[:len(prev)]) {
		return false
	}
	for _, v := range next[len(prev):] {
		if v.Kind == VLong || v.Kind == VDouble {
			return false
		}
	}
	return true
}

func writeVerification(w *writer, p *ConstantPool, v VerificationType) {
	w.u1(uint8(v.Kind))
	switch v.Kind {
	case VObject:
		w.u2(p.AddClass(v.Class))
	case VUninitialized:
		w.u2(v.Offset)
	}
}
