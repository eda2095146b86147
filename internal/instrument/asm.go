package instrument

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/olehluchkiv/enhancer/internal/classfile"
)

type label int

type fixup struct {
	at     int // offset of the branch opcode
	target label
}

// assembler emits straight-line bytecode with forward or backward 16-bit
// branches, interning constants as it goes.
type assembler struct {
	pool   *classfile.ConstantPool
	code   []byte
	labels []int
	fixups []fixup
}

func newAssembler(pool *classfile.ConstantPool) *assembler {
	return &assembler{pool: pool}
}

func (a *assembler) op(ops ...classfile.Opcode) {
	for _, o := range ops {
		a.code = append(a.code, byte(o))
	}
}

func (a *assembler) u2(op classfile.Opcode, idx uint16) {
	a.code = append(a.code, byte(op))
	a.code = binary.BigEndian.AppendUint16(a.code, idx)
}

func (a *assembler) invoke(op classfile.Opcode, owner, name, desc string) {
	a.u2(op, a.pool.AddMethodref(owner, name, desc))
}

func (a *assembler) ldcString(s string) {
	idx := a.pool.AddString(s)
	if idx <= math.MaxUint8 {
		a.code = append(a.code, byte(classfile.OpLdc), byte(idx))
		return
	}
	a.u2(classfile.OpLdcW, idx)
}

func (a *assembler) newLabel() label {
	a.labels = append(a.labels, -1)
	return label(len(a.labels) - 1)
}

func (a *assembler) mark(l label) {
	a.labels[l] = len(a.code)
}

func (a *assembler) offset(l label) int {
	return a.labels[l]
}

func (a *assembler) branch(op classfile.Opcode, l label) {
	a.fixups = append(a.fixups, fixup{at: len(a.code), target: l})
	a.u2(op, 0)
}

func (a *assembler) bytes() ([]byte, error) {
	for _, f := range a.fixups {
		target := a.labels[f.target]
		if target < 0 {
			return nil, fmt.Errorf("branch at %d to unplaced label", f.at)
		}
		delta := target - f.at
		if delta < math.MinInt16 || delta > math.MaxInt16 {
			return nil, fmt.Errorf("branch at %d out of 16-bit range", f.at)
		}
		binary.BigEndian.PutUint16(a.code[f.at+1:], uint16(int16(delta)))
	}
	if err := a.pool.Err(); err != nil {
		return nil, err
	}
	return a.code, nil
}
