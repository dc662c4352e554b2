package parser

import (
	"fmt"
	"testing"

	"nyx/ast"
)

func assert(t *testing.T, cond bool, format string, args ...any) {
	t.Helper()
	if !cond {
		t.Fatalf(fmt.Sprintf("%v %s", cond, format), args...)
	}
}

func parseOne(t *testing.T, src string) []ast.Stmt {
	t.Helper()
	stmts, err := ParseSource("t.nyx", src, ast.NewInterner())
	assert(t, err == nil, "unexpected parse error: %v", err)
	return stmts
}

func TestParseLabelAndInstructionOnOneLine(t *testing.T) {
	stmts := parseOne(t, "_start: mov q0, 1\n")
	assert(t, len(stmts) == 2, "expected 2 statements, got %d", len(stmts))
	_, ok := stmts[0].(*ast.LabelStmt)
	assert(t, ok, "first statement should be a label")
	instr, ok := stmts[1].(*ast.InstrStmt)
	assert(t, ok, "second statement should be an instruction")
	assert(t, instr.Mnemonic == "mov", "got mnemonic %q", instr.Mnemonic)
	assert(t, len(instr.Operands) == 2, "expected 2 operands, got %d", len(instr.Operands))
}

func TestParseSectionDirective(t *testing.T) {
	stmts := parseOne(t, ".section text\n")
	sec, ok := stmts[0].(*ast.SectionStmt)
	assert(t, ok, "expected a section statement")
	assert(t, sec.Name == "text", "got %q", sec.Name)
}

func TestParseEntryDirectiveWithLabel(t *testing.T) {
	stmts := parseOne(t, ".entry _start\n")
	entry, ok := stmts[0].(*ast.EntryStmt)
	assert(t, ok, "expected an entry statement")
	_, isIdent := entry.Target.(*ast.Identifier)
	assert(t, isIdent, "entry target should be an identifier")
}

func TestParseDataDeclarations(t *testing.T) {
	stmts := parseOne(t, "dq 1, 2, 3\n")
	decl, ok := stmts[0].(*ast.DataDeclStmt)
	assert(t, ok, "expected a data declaration")
	assert(t, decl.Size == ast.Qword, "expected qword size, got %v", decl.Size)
	assert(t, len(decl.Values) == 3, "expected 3 values, got %d", len(decl.Values))
}

func TestParseAddressingRegisterBaseWithOffset(t *testing.T) {
	stmts := parseOne(t, "ldr q0, [bp+8]\n")
	instr := stmts[0].(*ast.InstrStmt)
	addr, ok := instr.Operands[1].(*ast.AddressExpr)
	assert(t, ok, "expected an address operand")
	reg, ok := addr.Base.(*ast.RegisterExpr)
	assert(t, ok, "expected the address base to be a register")
	assert(t, reg.Reg == ast.BP, "expected bp, got %v", reg.Reg)
	assert(t, addr.Offset != nil, "expected a non-nil offset")
}

func TestParseAddressingNegativeOffset(t *testing.T) {
	stmts := parseOne(t, "ldr q0, [bp-4]\n")
	instr := stmts[0].(*ast.InstrStmt)
	addr := instr.Operands[1].(*ast.AddressExpr)
	unary, ok := addr.Offset.(*ast.UnaryExpr)
	assert(t, ok, "expected the negative offset to parse as a unary expression")
	assert(t, unary.Op == "-", "got op %q", unary.Op)
}

func TestParseExternAndCall(t *testing.T) {
	stmts := parseOne(t, ".extern puts\ncall puts\n")
	_, ok := stmts[0].(*ast.ExternStmt)
	assert(t, ok, "expected an extern statement")
	instr := stmts[1].(*ast.InstrStmt)
	assert(t, instr.Mnemonic == "call", "got %q", instr.Mnemonic)
}

func TestParseBinaryExpressionChain(t *testing.T) {
	stmts := parseOne(t, "#define X 1+2+3\n")
	def := stmts[0].(*ast.DefineStmt)
	bin, ok := def.Value.(*ast.BinaryExpr)
	assert(t, ok, "expected a binary expression")
	assert(t, bin.Op == "+", "got op %q", bin.Op)
}

func TestParseUnknownDirectiveIsAnError(t *testing.T) {
	_, err := ParseSource("t.nyx", ".bogus\n", ast.NewInterner())
	assert(t, err != nil, "expected an error for an unknown directive")
}
