package asm

import (
	"encoding/binary"
	"fmt"
	"testing"

	"nyx/ast"
	"nyx/diag"
	"nyx/isa"
	"nyx/parser"
)

func assert(t *testing.T, cond bool, format string, args ...any) {
	t.Helper()
	if !cond {
		t.Fatalf(fmt.Sprintf("%v %s", cond, format), args...)
	}
}

func assembleSource(t *testing.T, src string) []byte {
	t.Helper()
	interner := ast.NewInterner()
	stmts, err := parser.ParseSource("t.nyx", src, interner)
	assert(t, err == nil, "unexpected parse error: %v", err)
	image, err := Assemble(stmts, interner, diag.NewReporter())
	assert(t, err == nil, "unexpected assemble error: %v", err)
	return image
}

func assembleSourceExpectError(t *testing.T, src string) error {
	t.Helper()
	interner := ast.NewInterner()
	stmts, err := parser.ParseSource("t.nyx", src, interner)
	assert(t, err == nil, "unexpected parse error: %v", err)
	_, err = Assemble(stmts, interner, diag.NewReporter())
	return err
}

func entryOf(image []byte) uint64 {
	return binary.LittleEndian.Uint64(image[:8])
}

func TestAssembleEntryDefaultsToStartLabel(t *testing.T) {
	image := assembleSource(t, "_start: nop\nhlt\n")
	assert(t, entryOf(image) == 0, "expected implicit _start entry to be 0, got %d", entryOf(image))
	body := image[8:]
	assert(t, body[0] == byte(isa.OpNop), "expected nop, got opcode %d", body[0])
	assert(t, body[1] == byte(isa.OpHlt), "expected hlt, got opcode %d", body[1])
}

func TestAssembleExplicitEntryLiteral(t *testing.T) {
	image := assembleSource(t, ".entry 4\nnop\nnop\nnop\nnop\nhlt\n")
	assert(t, entryOf(image) == 4, "expected explicit entry 4, got %d", entryOf(image))
}

func TestAssembleForwardLabelFixup(t *testing.T) {
	image := assembleSource(t, "jmp foo\nfoo: hlt\n")
	body := image[8:]
	assert(t, body[0] == byte(isa.OpJmpImm), "expected jmp_imm, got opcode %d", body[0])
	target := binary.LittleEndian.Uint64(body[1:9])
	assert(t, target == 9, "foo should resolve to offset 9 (1 opcode byte + 8-byte operand), got %d", target)
	assert(t, body[9] == byte(isa.OpHlt), "expected hlt at the fixed-up target, got opcode %d", body[9])
}

func TestAssembleDataLabelAddressIsBiasedByTextLength(t *testing.T) {
	image := assembleSource(t, ".section data\nfoo: dq 1\n.section text\n_start: nop\nhlt\n.entry foo\n")
	assert(t, entryOf(image) == 2, "expected foo to resolve to textLen(2)+0, got %d", entryOf(image))
}

func TestAssembleUndefinedLabelIsAnError(t *testing.T) {
	err := assembleSourceExpectError(t, "jmp missing\nhlt\n")
	assert(t, err != nil, "expected an error for an undefined label")
}

func TestAssembleBitwiseRejectsFloatRegister(t *testing.T) {
	err := assembleSourceExpectError(t, "and ff0, ff1, ff2\n")
	assert(t, err != nil, "expected bitwise op on float registers to be rejected")
}

func TestAssembleCallExternUsesCallEx(t *testing.T) {
	image := assembleSource(t, ".extern puts\ncall puts\n")
	body := image[8:]
	assert(t, body[0] == byte(isa.OpCallEx), "expected call_ex, got opcode %d", body[0])
	assert(t, string(body[1:5]) == "puts", "expected the extern name inline, got %q", body[1:5])
	assert(t, body[5] == 0, "expected a NUL terminator after the extern name")
}

func TestAssembleCallToInternalLabelUsesCallImm(t *testing.T) {
	image := assembleSource(t, "call target\nhlt\ntarget: ret\n")
	body := image[8:]
	assert(t, body[0] == byte(isa.OpCallImm), "expected call_imm for a non-extern label, got opcode %d", body[0])
}

func TestAssembleUnknownMnemonicIsAnError(t *testing.T) {
	err := assembleSourceExpectError(t, "bogus_op q0, q1\n")
	assert(t, err != nil, "expected an error for an unknown mnemonic")
}

func TestAssembleArithRegRegImmEncoding(t *testing.T) {
	image := assembleSource(t, "add q0, q1, 5\nhlt\n")
	body := image[8:]
	assert(t, body[0] == byte(isa.OpAddRegRegImm), "expected add_reg_reg_imm, got opcode %d", body[0])
	assert(t, ast.Register(body[1]) == ast.MakeRegister(0, ast.ViewQ), "expected dst q0")
	assert(t, ast.Register(body[2]) == ast.MakeRegister(1, ast.ViewQ), "expected src q1")
	imm := binary.LittleEndian.Uint64(body[3:11])
	assert(t, imm == 5, "expected immediate 5, got %d", imm)
}
