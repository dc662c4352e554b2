package ast

import "testing"

func TestImmediateTruncation(t *testing.T) {
	imm := NewImmediateUint(Byte, 0x1FF)
	assert(t, imm.AsUint64() == 0xFF, "byte immediate should truncate, got %#x", imm.AsUint64())
}

func TestImmediateSignExtension(t *testing.T) {
	imm := NewImmediateUint(Byte, 0xFF)
	assert(t, imm.AsInt64() == -1, "0xFF as a signed byte should be -1, got %d", imm.AsInt64())
}

func TestImmediateFloatRoundTrip(t *testing.T) {
	imm := NewImmediateFloat(Float, 1.5)
	assert(t, imm.Size == Float, "should tag as Float")
	assert(t, imm.AsFloat64() == 1.5, "got %v", imm.AsFloat64())

	d := NewImmediateFloat(Double, 2.25)
	assert(t, d.AsFloat64() == 2.25, "got %v", d.AsFloat64())
}

func TestImmediateCoerceIntToInt(t *testing.T) {
	imm := NewImmediateInt(Qword, -1)
	coerced := imm.CoerceTo(Byte)
	assert(t, coerced.AsUint64() == 0xFF, "truncating -1 to a byte should give 0xFF, got %#x", coerced.AsUint64())
}

func TestImmediateCoerceIntToFloat(t *testing.T) {
	imm := NewImmediateInt(Dword, 4)
	coerced := imm.CoerceTo(Double)
	assert(t, coerced.AsFloat64() == 4.0, "got %v", coerced.AsFloat64())
}

func TestImmediateCoerceFloatToInt(t *testing.T) {
	imm := NewImmediateFloat(Double, 3.99)
	coerced := imm.CoerceTo(Dword)
	assert(t, coerced.AsInt64() == 3, "float-to-int coercion truncates toward zero, got %d", coerced.AsInt64())
}

func TestImmediateEqualsRequiresMatchingTag(t *testing.T) {
	a := NewImmediateUint(Dword, 4)
	b := NewImmediateUint(Qword, 4)
	assert(t, !a.Equals(b), "mismatched tags should never compare equal")

	c := NewImmediateUint(Dword, 4)
	assert(t, a.Equals(c), "matching tags and bits should compare equal")
}

func TestImmediateLessThanIsUnsigned(t *testing.T) {
	neg := NewImmediateInt(Byte, -1) // bit pattern 0xFF
	one := NewImmediateUint(Byte, 1)
	assert(t, !neg.LessThan(one), "unsigned comparison: 0xFF should not be less than 1")
	assert(t, one.LessThan(neg), "unsigned comparison: 1 should be less than 0xFF")
}

func TestImmediateBytesRoundTrip(t *testing.T) {
	imm := NewImmediateUint(Qword, 0x0102030405060708)
	buf := imm.Bytes()
	assert(t, len(buf) == 8, "qword should serialize to 8 bytes, got %d", len(buf))
	back := ImmediateFromBytes(Qword, buf)
	assert(t, back.AsUint64() == imm.AsUint64(), "round trip mismatch: got %#x", back.AsUint64())
}
