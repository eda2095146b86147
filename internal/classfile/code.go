package classfile

import "fmt"

// ExceptionHandler is one exception_table entry. CatchType is the internal
// name of the caught class, "" for finally blocks.
type ExceptionHandler struct {
	StartPC, EndPC, HandlerPC uint16
	CatchType                 string

	catchIdx uint16
}

// Code is a decoded Code attribute.
type Code struct {
	MaxStack   uint16
	MaxLocals  uint16
	Bytecode   []byte
	Handlers   []ExceptionHandler
	Attributes []*Attribute
}

// ParseCode decodes the payload of a Code attribute.
func ParseCode(data []byte, p *ConstantPool) (*Code, error) {
	r := &reader{buf: data}
	c := &Code{MaxStack: r.u2(), MaxLocals: r.u2()}
	c.Bytecode = r.bytes(int(r.u4()))
	n := int(r.u2())
	for i := 0; i < n; i++ {
		h := ExceptionHandler{StartPC: r.u2(), EndPC: r.u2(), HandlerPC: r.u2(), catchIdx: r.u2()}
		if r.err != nil {
			return nil, r.err
		}
		if h.catchIdx != 0 {
			name, err := p.ClassName(h.catchIdx)
			if err != nil {
				return nil, fmt.Errorf("exception handler %d: %w", i, err)
			}
			h.CatchType = name
		}
		c.Handlers = append(c.Handlers, h)
	}
	attrs, err := readAttributes(r, p)
	if err != nil {
		return nil, err
	}
	c.Attributes = attrs
	if !r.done() {
		return nil, fmt.Errorf("%w: trailing bytes in Code attribute", ErrMalformed)
	}
	return c, nil
}

// Code decodes the method's Code attribute; nil when the method is
// abstract or native.
func (m *Member) Code(p *ConstantPool) (*Code, error) {
	a := m.Attribute(AttrCode)
	if a == nil {
		return nil, nil
	}
	return ParseCode(a.Data, p)
}

// Encode renders the Code attribute payload, interning names in p.
func (c *Code) Encode(p *ConstantPool) []byte {
	w := &writer{}
	w.u2(c.MaxStack)
	w.u2(c.MaxLocals)
	w.u4(uint32(len(c.Bytecode)))
	w.raw(c.Bytecode)
	w.u2(uint16(len(c.Handlers)))
	for _, h := range c.Handlers {
		w.u2(h.StartPC)
		w.u2(h.EndPC)
		w.u2(h.HandlerPC)
		switch {
		case h.CatchType == "":
			w.u2(0)
		default:
			w.u2(classIndex(p, h.catchIdx, h.CatchType))
		}
	}
	writeAttributes(w, p, c.Attributes)
	return w.buf
}

// Instruction is one decoded bytecode instruction.
type Instruction struct {
	Offset   int
	Op       Opcode
	Operands []byte
}

// Index returns the u2 operand that most instructions with a constant
// pool reference carry in their first two operand bytes.
func (in Instruction) Index() uint16 {
	if in.Op == OpLdc {
		return uint16(in.Operands[0])
	}
	if len(in.Operands) < 2 {
		return 0
	}
	return uint16(in.Operands[0])<<8 | uint16(in.Operands[1])
}

// Branch returns the absolute target of a 16-bit branch instruction.
func (in Instruction) Branch() int {
	return in.Offset + int(int16(uint16(in.Operands[0])<<8|uint16(in.Operands[1])))
}

// Decode splits bytecode into instructions.
func Decode(code []byte) ([]Instruction, error) {
	var out []Instruction
	for pc := 0; pc < len(code); {
		op := Opcode(code[pc])
		n, err := operandLength(code, pc)
		if err != nil {
			return nil, err
		}
		if pc+1+n > len(code) {
			return nil, fmt.Errorf("%w: %s at %d overruns code", ErrMalformed, op, pc)
		}
		out = append(out, Instruction{Offset: pc, Op: op, Operands: code[pc+1 : pc+1+n]})
		pc += 1 + n
	}
	return out, nil
}

func operandLength(code []byte, pc int) (int, error) {
	op := Opcode(code[pc])
	switch op {
	case OpTableswitch, OpLookupswitch:
		pad := (4 - (pc+1)%4) % 4
		base := pc + 1 + pad
		if base+12 > len(code) {
			return 0, fmt.Errorf("%w: truncated switch at %d", ErrMalformed, pc)
		}
		if op == OpTableswitch {
			low := int32(be32(code[base+4:]))
			high := int32(be32(code[base+8:]))
			if high < low {
				return 0, fmt.Errorf("%w: tableswitch high < low at %d", ErrMalformed, pc)
			}
			return pad + 12 + int(high-low+1)*4, nil
		}
		npairs := int32(be32(code[base+4:]))
		if npairs < 0 {
			return 0, fmt.Errorf("%w: negative lookupswitch pairs at %d", ErrMalformed, pc)
		}
		return pad + 8 + int(npairs)*8, nil
	case OpWide:
		if pc+1 >= len(code) {
			return 0, fmt.Errorf("%w: truncated wide at %d", ErrMalformed, pc)
		}
		if Opcode(code[pc+1]) == OpIinc {
			return 5, nil
		}
		return 3, nil
	}
	n, ok := operandLengths[op]
	if !ok {
		return 0, fmt.Errorf("%w: unknown opcode %#x at %d", ErrMalformed, uint8(op), pc)
	}
	return n, nil
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
