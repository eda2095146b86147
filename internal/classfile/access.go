package classfile

import "strings"

// AccessFlags is the access_flags bit set of a class, field or method.
type AccessFlags uint16

const (
	AccPublic       AccessFlags = 0x0001
	AccPrivate      AccessFlags = 0x0002
	AccProtected    AccessFlags = 0x0004
	AccStatic       AccessFlags = 0x0008
	AccFinal        AccessFlags = 0x0010
	AccSynchronized AccessFlags = 0x0020
	AccSuper        AccessFlags = 0x0020
	AccVolatile     AccessFlags = 0x0040
	AccBridge       AccessFlags = 0x0040
	AccTransient    AccessFlags = 0x0080
	AccVarargs      AccessFlags = 0x0080
	AccNative       AccessFlags = 0x0100
	AccInterface    AccessFlags = 0x0200
	AccAbstract     AccessFlags = 0x0400
	AccStrict       AccessFlags = 0x0800
	AccSynthetic    AccessFlags = 0x1000
	AccAnnotation   AccessFlags = 0x2000
	AccEnum         AccessFlags = 0x4000

	visibilityMask = AccPublic | AccPrivate | AccProtected
)

func (f AccessFlags) Has(bits AccessFlags) bool { return f&bits == bits }

func (f AccessFlags) IsPublic() bool    { return f.Has(AccPublic) }
func (f AccessFlags) IsPrivate() bool   { return f.Has(AccPrivate) }
func (f AccessFlags) IsProtected() bool { return f.Has(AccProtected) }
func (f AccessFlags) IsStatic() bool    { return f.Has(AccStatic) }
func (f AccessFlags) IsAbstract() bool  { return f.Has(AccAbstract) }
func (f AccessFlags) IsNative() bool    { return f.Has(AccNative) }
func (f AccessFlags) IsSynthetic() bool { return f.Has(AccSynthetic) }

// IsBridge is only meaningful for methods; the bit means volatile on fields.
func (f AccessFlags) IsBridge() bool { return f.Has(AccBridge) }

// WithVisibility clears public/private/protected and sets v. A zero v
// yields package-private.
func (f AccessFlags) WithVisibility(v AccessFlags) AccessFlags {
	return f&^visibilityMask | v&visibilityMask
}

// Visibility returns the Java keyword for the visibility bits.
func (f AccessFlags) Visibility() string {
	switch {
	case f.IsPublic():
		return "public"
	case f.IsProtected():
		return "protected"
	case f.IsPrivate():
		return "private"
	}
	return "package"
}

// MethodString renders method modifiers in source order.
func (f AccessFlags) MethodString() string {
	var parts []string
	if v := f.Visibility(); v != "package" {
		parts = append(parts, v)
	}
	for _, m := range []struct {
		bit  AccessFlags
		name string
	}{
		{AccAbstract, "abstract"},
		{AccStatic, "static"},
		{AccFinal, "final"},
		{AccSynchronized, "synchronized"},
		{AccNative, "native"},
		{AccStrict, "strictfp"},
		{AccBridge, "bridge"},
		{AccSynthetic, "synthetic"},
	} {
		if f.Has(m.bit) {
			parts = append(parts, m.name)
		}
	}
	return strings.Join(parts, " ")
}
