package isa

import (
	"fmt"
	"testing"
)

func assert(t *testing.T, cond bool, format string, args ...any) {
	t.Helper()
	if !cond {
		t.Fatalf(fmt.Sprintf("%v %s", cond, format), args...)
	}
}

func TestOpcodeStringMatchesMnemonic(t *testing.T) {
	cases := map[Opcode]string{
		OpNop:     "nop",
		OpHlt:     "hlt",
		OpCallEx:  "call_ex",
		OpShrRegRegImm: "shr_reg_reg_imm",
		OpNeg:     "neg",
	}
	for op, want := range cases {
		assert(t, op.String() == want, "opcode %d: got %q, want %q", op, op.String(), want)
	}
}

func TestOpcodeStringFallsBackForUnknownValues(t *testing.T) {
	bogus := Opcode(MaxOpcode + 1)
	assert(t, bogus.String() == fmt.Sprintf("opcode(%d)", byte(bogus)), "got %q", bogus.String())
}

func TestOpcodeValidRange(t *testing.T) {
	assert(t, OpNop.Valid(), "nop should be valid")
	assert(t, OpNeg.Valid(), "neg (the last defined opcode) should be valid")
	assert(t, Opcode(MaxOpcode).Valid(), "MaxOpcode should be valid")
	assert(t, !Opcode(MaxOpcode+1).Valid(), "one past MaxOpcode should be invalid")
}

func TestAddrVariantConstants(t *testing.T) {
	assert(t, AddrRegisterBase == 0x00, "register-base variant should be tag 0")
	assert(t, AddrImmediateBase == 0x01, "immediate-base variant should be tag 1")
}
