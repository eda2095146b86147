package classfile

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf16"
	"unicode/utf8"
)

// Tag identifies the kind of a constant pool entry.
type Tag uint8

const (
	TagUtf8               Tag = 1
	TagInteger            Tag = 3
	TagFloat              Tag = 4
	TagLong               Tag = 5
	TagDouble             Tag = 6
	TagClass              Tag = 7
	TagString             Tag = 8
	TagFieldref           Tag = 9
	TagMethodref          Tag = 10
	TagInterfaceMethodref Tag = 11
	TagNameAndType        Tag = 12
	TagMethodHandle       Tag = 15
	TagMethodType         Tag = 16
	TagDynamic            Tag = 17
	TagInvokeDynamic      Tag = 18
	TagModule             Tag = 19
	TagPackage            Tag = 20
)

// payloadSize is the fixed payload length of every tag except Utf8.
var payloadSize = map[Tag]int{
	TagInteger:            4,
	TagFloat:              4,
	TagLong:               8,
	TagDouble:             8,
	TagClass:              2,
	TagString:             2,
	TagFieldref:           4,
	TagMethodref:          4,
	TagInterfaceMethodref: 4,
	TagNameAndType:        4,
	TagMethodHandle:       3,
	TagMethodType:         2,
	TagDynamic:            4,
	TagInvokeDynamic:      4,
	TagModule:             2,
	TagPackage:            2,
}

// Constant is one raw constant pool entry. Data holds the payload that
// follows the tag byte (for Utf8, the modified UTF-8 bytes without the
// length prefix). The slot after a Long or Double has Tag 0.
type Constant struct {
	Tag  Tag
	Data []byte
}

func (c Constant) ref1() uint16 { return binary.BigEndian.Uint16(c.Data) }

func (c Constant) ref2() uint16 { return binary.BigEndian.Uint16(c.Data[2:]) }

// ConstantPool holds the entries of a class in file order. Entries are only
// ever appended, so indices held in raw attribute payloads stay valid.
type ConstantPool struct {
	entries []Constant
	index   map[string]uint16
	err     error
}

// NewConstantPool returns an empty pool (slot 0 reserved).
func NewConstantPool() *ConstantPool {
	return &ConstantPool{entries: make([]Constant, 1)}
}

// Len reports constant_pool_count: the number of slots including slot 0.
func (p *ConstantPool) Len() int { return len(p.entries) }

// Err reports whether an Add call overflowed the pool.
func (p *ConstantPool) Err() error { return p.err }

// At returns the entry at i.
func (p *ConstantPool) At(i uint16) (Constant, error) {
	if i == 0 || int(i) >= len(p.entries) || p.entries[i].Tag == 0 {
		return Constant{}, fmt.Errorf("%w: invalid constant pool index %d", ErrMalformed, i)
	}
	return p.entries[i], nil
}

func (p *ConstantPool) expect(i uint16, tag Tag) (Constant, error) {
	c, err := p.At(i)
	if err != nil {
		return c, err
	}
	if c.Tag != tag {
		return c, fmt.Errorf("%w: constant %d has tag %d, want %d", ErrMalformed, i, c.Tag, tag)
	}
	return c, nil
}

// Utf8 returns the decoded string of a CONSTANT_Utf8 entry.
func (p *ConstantPool) Utf8(i uint16) (string, error) {
	c, err := p.expect(i, TagUtf8)
	if err != nil {
		return "", err
	}
	return decodeModifiedUTF8(c.Data), nil
}

// ClassName returns the internal name referenced by a CONSTANT_Class entry.
func (p *ConstantPool) ClassName(i uint16) (string, error) {
	c, err := p.expect(i, TagClass)
	if err != nil {
		return "", err
	}
	return p.Utf8(c.ref1())
}

// MemberRef resolves a Fieldref, Methodref or InterfaceMethodref entry.
func (p *ConstantPool) MemberRef(i uint16) (class, name, descriptor string, err error) {
	c, err := p.At(i)
	if err != nil {
		return "", "", "", err
	}
	switch c.Tag {
	case TagFieldref, TagMethodref, TagInterfaceMethodref:
	default:
		return "", "", "", fmt.Errorf("%w: constant %d is not a member reference", ErrMalformed, i)
	}
	if class, err = p.ClassName(c.ref1()); err != nil {
		return "", "", "", err
	}
	nt, err := p.expect(c.ref2(), TagNameAndType)
	if err != nil {
		return "", "", "", err
	}
	if name, err = p.Utf8(nt.ref1()); err != nil {
		return "", "", "", err
	}
	descriptor, err = p.Utf8(nt.ref2())
	return class, name, descriptor, err
}

// StringValue returns the text of a CONSTANT_String entry.
func (p *ConstantPool) StringValue(i uint16) (string, error) {
	c, err := p.expect(i, TagString)
	if err != nil {
		return "", err
	}
	return p.Utf8(c.ref1())
}

// Value decodes a loadable numeric or string constant to a Go value:
// int32, int64, float32, float64 or string.
func (p *ConstantPool) Value(i uint16) (any, error) {
	c, err := p.At(i)
	if err != nil {
		return nil, err
	}
	switch c.Tag {
	case TagInteger:
		return int32(binary.BigEndian.Uint32(c.Data)), nil
	case TagFloat:
		return math.Float32frombits(binary.BigEndian.Uint32(c.Data)), nil
	case TagLong:
		return int64(binary.BigEndian.Uint64(c.Data)), nil
	case TagDouble:
		return math.Float64frombits(binary.BigEndian.Uint64(c.Data)), nil
	case TagUtf8:
		return decodeModifiedUTF8(c.Data), nil
	case TagString:
		return p.Utf8(c.ref1())
	}
	return nil, fmt.Errorf("%w: constant %d (tag %d) is not a value", ErrMalformed, i, c.Tag)
}

// AddUtf8 interns s and returns its index.
func (p *ConstantPool) AddUtf8(s string) uint16 {
	return p.add(TagUtf8, encodeModifiedUTF8(s))
}

// AddClass interns a CONSTANT_Class for an internal name (or an array
// descriptor).
func (p *ConstantPool) AddClass(internalName string) uint16 {
	return p.add(TagClass, u2bytes(p.AddUtf8(internalName)))
}

// AddString interns a CONSTANT_String.
func (p *ConstantPool) AddString(s string) uint16 {
	return p.add(TagString, u2bytes(p.AddUtf8(s)))
}

// AddNameAndType interns a CONSTANT_NameAndType.
func (p *ConstantPool) AddNameAndType(name, descriptor string) uint16 {
	return p.add(TagNameAndType, u2pair(p.AddUtf8(name), p.AddUtf8(descriptor)))
}

// AddMethodref interns a CONSTANT_Methodref.
func (p *ConstantPool) AddMethodref(class, name, descriptor string) uint16 {
	return p.add(TagMethodref, u2pair(p.AddClass(class), p.AddNameAndType(name, descriptor)))
}

// AddInterfaceMethodref interns a CONSTANT_InterfaceMethodref.
func (p *ConstantPool) AddInterfaceMethodref(class, name, descriptor string) uint16 {
	return p.add(TagInterfaceMethodref, u2pair(p.AddClass(class), p.AddNameAndType(name, descriptor)))
}

// AddFieldref interns a CONSTANT_Fieldref.
func (p *ConstantPool) AddFieldref(class, name, descriptor string) uint16 {
	return p.add(TagFieldref, u2pair(p.AddClass(class), p.AddNameAndType(name, descriptor)))
}

// AddInteger interns a CONSTANT_Integer.
func (p *ConstantPool) AddInteger(v int32) uint16 {
	return p.add(TagInteger, binary.BigEndian.AppendUint32(nil, uint32(v)))
}

func (p *ConstantPool) add(tag Tag, data []byte) uint16 {
	if p.err != nil {
		return 0
	}
	p.buildIndex()
	key := indexKey(tag, data)
	if i, ok := p.index[key]; ok {
		return i
	}
	slots := 1
	if tag == TagLong || tag == TagDouble {
		slots = 2
	}
	if len(p.entries)+slots > math.MaxUint16 {
		p.err = fmt.Errorf("constant pool overflow: more than %d entries", math.MaxUint16-1)
		return 0
	}
	i := uint16(len(p.entries))
	p.entries = append(p.entries, Constant{Tag: tag, Data: data})
	if slots == 2 {
		p.entries = append(p.entries, Constant{})
	}
	p.index[key] = i
	return i
}

// buildIndex maps existing entries so that interning reuses the first
// occurrence of an equal constant.
func (p *ConstantPool) buildIndex() {
	if p.index != nil {
		return
	}
	p.index = make(map[string]uint16, len(p.entries))
	for i, c := range p.entries {
		if c.Tag == 0 {
			continue
		}
		key := indexKey(c.Tag, c.Data)
		if _, ok := p.index[key]; !ok {
			p.index[key] = uint16(i)
		}
	}
}

func indexKey(tag Tag, data []byte) string {
	return string(rune(tag)) + string(data)
}

func readPool(r *reader) (*ConstantPool, error) {
	count := int(r.u2())
	if r.err != nil {
		return nil, r.err
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: constant_pool_count is 0", ErrMalformed)
	}
	p := &ConstantPool{entries: make([]Constant, 1, count)}
	for len(p.entries) < count {
		tag := Tag(r.u1())
		var data []byte
		if tag == TagUtf8 {
			data = r.bytes(int(r.u2()))
		} else {
			n, ok := payloadSize[tag]
			if !ok {
				if r.err != nil {
					return nil, r.err
				}
				return nil, fmt.Errorf("%w: unknown constant tag %d at index %d", ErrMalformed, tag, len(p.entries))
			}
			data = r.bytes(n)
		}
		if r.err != nil {
			return nil, r.err
		}
		p.entries = append(p.entries, Constant{Tag: tag, Data: data})
		if tag == TagLong || tag == TagDouble {
			p.entries = append(p.entries, Constant{})
		}
	}
	if len(p.entries) != count {
		return nil, fmt.Errorf("%w: 8-byte constant overruns constant_pool_count", ErrMalformed)
	}
	return p, nil
}

func (p *ConstantPool) write(w *writer) {
	w.u2(uint16(len(p.entries)))
	for _, c := range p.entries[1:] {
		if c.Tag == 0 {
			continue
		}
		w.u1(uint8(c.Tag))
		if c.Tag == TagUtf8 {
			w.u2(uint16(len(c.Data)))
		}
		w.raw(c.Data)
	}
}

func u2bytes(v uint16) []byte {
	return binary.BigEndian.AppendUint16(nil, v)
}

func u2pair(a, b uint16) []byte {
	return binary.BigEndian.AppendUint16(u2bytes(a), b)
}

// encodeModifiedUTF8 converts s to the JVM's modified UTF-8: NUL is two
// bytes and supplementary characters are encoded as surrogate pairs.
func encodeModifiedUTF8(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		switch {
		case r == 0:
			out = append(out, 0xC0, 0x80)
		case r < 0x80:
			out = append(out, byte(r))
		case r > 0xFFFF:
			hi, lo := utf16.EncodeRune(r)
			out = appendUnit(out, hi)
			out = appendUnit(out, lo)
		default:
			out = appendUnit(out, r)
		}
	}
	return out
}

func appendUnit(out []byte, r rune) []byte {
	if r < 0x800 {
		return append(out, byte(0xC0|r>>6), byte(0x80|r&0x3F))
	}
	return append(out, byte(0xE0|r>>12), byte(0x80|(r>>6)&0x3F), byte(0x80|r&0x3F))
}

func decodeModifiedUTF8(b []byte) string {
	ascii := true
	for _, c := range b {
		if c >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return string(b)
	}
	units := make([]uint16, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c < 0x80:
			units = append(units, uint16(c))
			i++
		case c&0xE0 == 0xC0 && i+1 < len(b):
			units = append(units, uint16(c&0x1F)<<6|uint16(b[i+1]&0x3F))
			i += 2
		case c&0xF0 == 0xE0 && i+2 < len(b):
			units = append(units, uint16(c&0x0F)<<12|uint16(b[i+1]&0x3F)<<6|uint16(b[i+2]&0x3F))
			i += 3
		default:
			units = append(units, utf8.RuneError)
			i++
		}
	}
	return string(utf16.Decode(units))
}
