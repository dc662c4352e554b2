// Package isa is the stable wire contract shared by the assembler and the
// VM core: the one-byte opcode map and addressing-variant tag of spec.md
// section 6. Both nyx/asm (the producer) and nyx/vm (the consumer) import
// this package instead of one importing the other, mirroring how the
// teacher keeps its Bytecode enum and string tables
// (KTStephano-GVM/vm/bytecode.go) as the single source of truth shared by
// its compiler and its VM core within one package; Nyx splits compiler and
// VM into separate packages, so the shared enum gets its own package.
package isa

import "fmt"

// Opcode is the one-byte instruction tag of spec.md section 6.
type Opcode byte

const (
	OpNop Opcode = iota
	OpRet
	OpSyscall
	OpHlt
	OpLoadExternal
	OpMovRegReg
	OpMovRegImm
	OpLdr
	OpStr
	OpSti
	OpPushImm
	OpPushReg
	OpPushAddr
	OpPopReg
	OpPopAddr
	OpAddRegRegReg
	OpSubRegRegReg
	OpMulRegRegReg
	OpDivRegRegReg
	OpAddRegRegImm
	OpSubRegRegImm
	OpMulRegRegImm
	OpDivRegRegImm
	OpAndRegRegReg
	OpOrRegRegReg
	OpXorRegRegReg
	OpShlRegRegReg
	OpShrRegRegReg
	OpAndRegRegImm
	OpOrRegRegImm
	OpXorRegRegImm
	OpShlRegRegImm
	OpShrRegRegImm
	OpCmpRegReg
	OpCmpRegImm
	OpJmpImm
	OpJeqImm
	OpJneImm
	OpJltImm
	OpJgtImm
	OpJleImm
	OpJgeImm
	OpJmpReg
	OpJeqReg
	OpJneReg
	OpJltReg
	OpJgtReg
	OpJleReg
	OpJgeReg
	OpCallImm
	OpCallReg
	OpCallEx
	OpInc
	OpDec
	OpNeg
	opcodeCount
)

// MaxOpcode is the last defined opcode. spec.md section 4.6: "An opcode
// byte strictly greater than the last defined opcode is an invalid
// opcode."
const MaxOpcode = opcodeCount - 1

var opcodeNames = [...]string{
	"nop", "ret", "syscall", "hlt", "load_external",
	"mov_reg_reg", "mov_reg_imm", "ldr", "str", "sti",
	"push_imm", "push_reg", "push_addr", "pop_reg", "pop_addr",
	"add_reg_reg_reg", "sub_reg_reg_reg", "mul_reg_reg_reg", "div_reg_reg_reg",
	"add_reg_reg_imm", "sub_reg_reg_imm", "mul_reg_reg_imm", "div_reg_reg_imm",
	"and_reg_reg_reg", "or_reg_reg_reg", "xor_reg_reg_reg", "shl_reg_reg_reg", "shr_reg_reg_reg",
	"and_reg_reg_imm", "or_reg_reg_imm", "xor_reg_reg_imm", "shl_reg_reg_imm", "shr_reg_reg_imm",
	"cmp_reg_reg", "cmp_reg_imm",
	"jmp_imm", "jeq_imm", "jne_imm", "jlt_imm", "jgt_imm", "jle_imm", "jge_imm",
	"jmp_reg", "jeq_reg", "jne_reg", "jlt_reg", "jgt_reg", "jle_reg", "jge_reg",
	"call_imm", "call_reg", "call_ex",
	"inc", "dec", "neg",
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) {
		return opcodeNames[op]
	}
	return fmt.Sprintf("opcode(%d)", byte(op))
}

// Valid reports whether op names a defined instruction.
func (op Opcode) Valid() bool {
	return op <= MaxOpcode
}
