package classtest

import (
	"fmt"

	"github.com/olehluchkiv/enhancer/internal/classfile"
)

// Object is an instance on the toy heap.
type Object struct {
	Class  string
	Fields map[string]any
}

// Native implements a method of a class that is not loaded in the VM.
// Arguments include the receiver for instance methods.
type Native func(args []any) (any, error)

// VM interprets the bytecode subset that accessors and enhanced setters
// use: local loads/stores, field access, invocations, string constants,
// null/zero branches and returns. Values are Go values: nil, *Object,
// string, int32, int64, float32, float64. Boxing is the identity.
type VM struct {
	classes map[string]*classfile.ClassFile
	natives map[string]Native
}

// NewVM loads classes into a fresh VM with the primitive valueOf boxing
// methods registered.
func NewVM(classes ...*classfile.ClassFile) *VM {
	vm := &VM{classes: map[string]*classfile.ClassFile{}, natives: map[string]Native{}}
	for _, cf := range classes {
		vm.classes[cf.ThisClass] = cf
	}
	for _, kind := range "BCDFIJSZ" {
		prim := classfile.FieldType{Kind: byte(kind)}
		box := prim.Boxed()
		vm.Native(box.Class, "valueOf", "("+prim.Descriptor()+")"+box.Descriptor(), func(args []any) (any, error) {
			return args[0], nil
		})
	}
	return vm
}

// Native registers fn for owner.name+desc. Natives are found by the same
// lookup as bytecode methods, so a native on a superclass is inherited.
func (vm *VM) Native(owner, name, desc string, fn Native) {
	vm.natives[classfile.InternalName(owner)+"."+name+desc] = fn
}

// New allocates an instance without running a constructor.
func (vm *VM) New(class string) *Object {
	return &Object{Class: classfile.InternalName(class), Fields: map[string]any{}}
}

// Invoke calls an instance method with virtual dispatch.
func (vm *VM) Invoke(obj *Object, name, desc string, args ...any) (any, error) {
	return vm.call(obj.Class, name, desc, append([]any{obj}, args...), false)
}

func (vm *VM) call(owner, name, desc string, args []any, static bool) (any, error) {
	for cls := owner; cls != ""; {
		if fn, ok := vm.natives[cls+"."+name+desc]; ok {
			return fn(args)
		}
		cf := vm.classes[cls]
		if cf == nil {
			break
		}
		if m := cf.Method(name, desc); m != nil && !m.Access.IsAbstract() {
			return vm.run(cf, m, args, static)
		}
		cls = cf.SuperClass
	}
	return nil, fmt.Errorf("no method %s.%s%s", owner, name, desc)
}

func (vm *VM) run(cf *classfile.ClassFile, m *classfile.Member, args []any, static bool) (any, error) {
	code, err := m.Code(cf.Pool)
	if err != nil {
		return nil, err
	}
	if code == nil {
		return nil, fmt.Errorf("%s.%s%s has no code", cf.ThisClass, m.Name, m.Descriptor)
	}
	mt, err := classfile.ParseMethodDescriptor(m.Descriptor)
	if err != nil {
		return nil, err
	}
	locals := make([]any, code.MaxLocals)
	slot := 0
	if !static {
		locals[0] = args[0]
		args = args[1:]
		slot = 1
	}
	for i, p := range mt.Params {
		locals[slot] = args[i]
		slot++
		if p.IsWide() {
			slot++
		}
	}

	insns, err := classfile.Decode(code.Bytecode)
	if err != nil {
		return nil, err
	}
	byOffset := make(map[int]int, len(insns))
	for i, in := range insns {
		byOffset[in.Offset] = i
	}

	var stack []any
	push := func(v any) { stack = append(stack, v) }
	pop := func() any {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v
	}
	for pc := 0; pc < len(insns); {
		in := insns[pc]
		pc++
		op := in.Op
		switch {
		case op == classfile.OpAconstNull:
			push(nil)
		case op >= classfile.OpIconstM1 && op <= classfile.OpIconst5:
			push(int32(op) - int32(classfile.OpIconst0))
		case op == classfile.OpLconst0:
			push(int64(0))
		case op == classfile.OpFconst0:
			push(float32(0))
		case op == classfile.OpDconst0:
			push(float64(0))
		case op >= classfile.OpIload && op <= classfile.OpAload:
			push(locals[in.Operands[0]])
		case op >= classfile.OpIload0 && op <= classfile.OpAload3:
			push(locals[(op-classfile.OpIload0)%4])
		case op >= classfile.OpIstore && op <= classfile.OpAstore:
			locals[in.Operands[0]] = pop()
		case op >= classfile.OpIstore0 && op <= classfile.OpAstore3:
			locals[(op-classfile.OpIstore0)%4] = pop()
		case op == classfile.OpLdc || op == classfile.OpLdcW:
			v, err := cf.Pool.Value(in.Index())
			if err != nil {
				return nil, err
			}
			push(v)
		case op == classfile.OpDup:
			v := pop()
			push(v)
			push(v)
		case op == classfile.OpPop:
			pop()
		case op == classfile.OpGetfield:
			_, field, _, err := cf.Pool.MemberRef(in.Index())
			if err != nil {
				return nil, err
			}
			push(pop().(*Object).Fields[field])
		case op == classfile.OpPutfield:
			_, field, _, err := cf.Pool.MemberRef(in.Index())
			if err != nil {
				return nil, err
			}
			v := pop()
			pop().(*Object).Fields[field] = v
		case op == classfile.OpInvokevirtual || op == classfile.OpInvokespecial || op == classfile.OpInvokestatic:
			owner, name, desc, err := cf.Pool.MemberRef(in.Index())
			if err != nil {
				return nil, err
			}
			callee, err := classfile.ParseMethodDescriptor(desc)
			if err != nil {
				return nil, err
			}
			n := len(callee.Params)
			isStatic := op == classfile.OpInvokestatic
			if !isStatic {
				n++
			}
			callArgs := make([]any, n)
			for i := n - 1; i >= 0; i-- {
				callArgs[i] = pop()
			}
			if op == classfile.OpInvokevirtual {
				recv, ok := callArgs[0].(*Object)
				if !ok {
					return nil, fmt.Errorf("invokevirtual %s on non-object %v", name, callArgs[0])
				}
				owner = recv.Class
			}
			ret, err := vm.call(owner, name, desc, callArgs, isStatic)
			if err != nil {
				return nil, err
			}
			if !callee.IsVoid() {
				push(ret)
			}
		case op == classfile.OpIfeq || op == classfile.OpIfne || op == classfile.OpIfnull || op == classfile.OpIfnonnull:
			v := pop()
			var zero bool
			switch x := v.(type) {
			case nil:
				zero = true
			case bool:
				zero = !x
			case int32:
				zero = x == 0
			}
			jump := zero
			if op == classfile.OpIfne || op == classfile.OpIfnonnull {
				jump = !zero
			}
			if jump {
				pc = byOffset[in.Branch()]
			}
		case op == classfile.OpGoto:
			pc = byOffset[in.Branch()]
		case op == classfile.OpReturn:
			return nil, nil
		case op >= classfile.OpIreturn && op <= classfile.OpAreturn:
			return pop(), nil
		default:
			return nil, fmt.Errorf("unsupported instruction %s at %d", op, in.Offset)
		}
	}
	return nil, fmt.Errorf("%s.%s fell off the end of its code", cf.ThisClass, m.Name)
}
